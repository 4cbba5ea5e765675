package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ridehub/accounts/internal/model"
)

const (
	usersCollection = "users"
	rolesCollection = "roles"

	// maxMutateRetries bounds optimistic retries when a concurrent writer bumps the version
	maxMutateRetries = 5
)

var (
	_ UserRepo = (*MongoStore)(nil)
	_ RoleRepo = mongoRoles{}
)

// ErrConcurrentUpdate is returned when Mutate loses every optimistic retry
var ErrConcurrentUpdate = errors.New("concurrent update")

type userDoc struct {
	ObjectID  primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"user_id"`
	Name      string             `bson:"name"`
	Email     string             `bson:"email"`
	Phone     string             `bson:"phone"`
	Gender    string             `bson:"gender,omitempty"`
	Password  string             `bson:"password"`
	RoleID    string             `bson:"role_id"`
	Status    string             `bson:"is_verified"`
	EmailOTP  string             `bson:"email_otp,omitempty"`
	PhoneOTP  string             `bson:"phone_otp,omitempty"`
	OTPExpiry *time.Time         `bson:"otp_expiry,omitempty"`
	Version   int64              `bson:"version"`
	CreatedAt time.Time          `bson:"create_datetime"`
	UpdatedAt time.Time          `bson:"update_datetime"`
}

type roleDoc struct {
	ID   primitive.ObjectID `bson:"_id,omitempty"`
	Name string             `bson:"name"`
}

// MongoStore is a MongoDB-backed account store and role resolver.
// Per-record atomicity comes from a version field checked on every replace.
type MongoStore struct {
	users *mongo.Collection
	roles *mongo.Collection
	// role reference data is immutable after seeding, so it is cached at startup
	roleList []model.Role
}

// NewMongoStore ensures indexes, seeds the roles and loads them
func NewMongoStore(ctx context.Context, database *mongo.Database) (*MongoStore, error) {
	s := &MongoStore{
		users: database.Collection(usersCollection),
		roles: database.Collection(rolesCollection),
	}

	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "phone", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user indexes: %w", err)
	}
	_, err = s.roles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create role index: %w", err)
	}

	for _, name := range []string{model.RoleRider, model.RoleDriver, model.RoleAdmin} {
		_, err := s.roles.UpdateOne(ctx,
			bson.M{"name": name},
			bson.M{"$setOnInsert": bson.M{"name": name}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to seed role %s: %w", name, err)
		}
	}

	cur, err := s.roles.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	var docs []roleDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode roles: %w", err)
	}
	for _, d := range docs {
		s.roleList = append(s.roleList, model.Role{ID: d.ID.Hex(), Name: d.Name})
	}
	return s, nil
}

// Roles returns the role resolver view of the store
func (s *MongoStore) Roles() RoleRepo {
	return mongoRoles{s}
}

func (s *MongoStore) roleName(id string) string {
	for _, r := range s.roleList {
		if r.ID == id {
			return r.Name
		}
	}
	return ""
}

func (s *MongoStore) toModel(d userDoc) model.User {
	return model.User{
		ID:           d.UserID,
		Name:         d.Name,
		Email:        d.Email,
		Phone:        d.Phone,
		Gender:       d.Gender,
		PasswordHash: d.Password,
		RoleID:       d.RoleID,
		RoleName:     s.roleName(d.RoleID),
		Status:       model.VerificationStatus(d.Status),
		EmailOTP:     d.EmailOTP,
		PhoneOTP:     d.PhoneOTP,
		OTPExpiresAt: d.OTPExpiry,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func toDoc(u model.User) userDoc {
	return userDoc{
		UserID:    u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Gender:    u.Gender,
		Password:  u.PasswordHash,
		RoleID:    u.RoleID,
		Status:    string(u.Status),
		EmailOTP:  u.EmailOTP,
		PhoneOTP:  u.PhoneOTP,
		OTPExpiry: u.OTPExpiresAt,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (userDoc, error) {
	var d userDoc
	err := s.users.FindOne(ctx, filter, opts...).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return userDoc{}, ErrNotFound
		}
		return userDoc{}, fmt.Errorf("failed to query user: %w", err)
	}
	return d, nil
}

// Create inserts a new user
func (s *MongoStore) Create(ctx context.Context, user model.User) (model.User, error) {
	d := toDoc(user)
	d.Version = 1
	if _, err := s.users.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.User{}, ErrDuplicate
		}
		return model.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	return s.toModel(d), nil
}

// GetByID retrieves a user by its stable identifier
func (s *MongoStore) GetByID(ctx context.Context, id string) (model.User, error) {
	d, err := s.findOne(ctx, bson.M{"user_id": id})
	if err != nil {
		return model.User{}, err
	}
	return s.toModel(d), nil
}

// GetByEmail retrieves a user by email
func (s *MongoStore) GetByEmail(ctx context.Context, email string) (model.User, error) {
	d, err := s.findOne(ctx, bson.M{"email": email})
	if err != nil {
		return model.User{}, err
	}
	return s.toModel(d), nil
}

// FindByContact retrieves the oldest user whose email or phone matches. Empty arguments never match.
func (s *MongoStore) FindByContact(ctx context.Context, email, phone string) (model.User, error) {
	or := bson.A{}
	if email != "" {
		or = append(or, bson.M{"email": email})
	}
	if phone != "" {
		or = append(or, bson.M{"phone": phone})
	}
	if len(or) == 0 {
		return model.User{}, ErrNotFound
	}
	d, err := s.findOne(ctx, bson.M{"$or": or},
		options.FindOne().SetSort(bson.D{{Key: "create_datetime", Value: 1}}))
	if err != nil {
		return model.User{}, err
	}
	return s.toModel(d), nil
}

// List returns all users ordered by creation time
func (s *MongoStore) List(ctx context.Context) ([]model.User, error) {
	cur, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "create_datetime", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	users := make([]model.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, s.toModel(d))
	}
	return users, nil
}

// Update merges the allow-listed patch fields and stamps update_datetime
func (s *MongoStore) Update(ctx context.Context, id string, patch model.UserPatch) (model.User, error) {
	set := bson.M{"update_datetime": time.Now().UTC()}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Email != nil {
		set["email"] = *patch.Email
	}
	if patch.Phone != nil {
		set["phone"] = *patch.Phone
	}
	if patch.Gender != nil {
		set["gender"] = *patch.Gender
	}

	var d userDoc
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"user_id": id},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.User{}, ErrNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return model.User{}, ErrDuplicate
		}
		return model.User{}, fmt.Errorf("failed to update user: %w", err)
	}
	return s.toModel(d), nil
}

// Mutate loads the user, applies fn and replaces the document only if no other
// writer changed it in between, retrying a bounded number of times.
func (s *MongoStore) Mutate(ctx context.Context, id string, fn func(u *model.User) error) (model.User, error) {
	for attempt := 0; attempt < maxMutateRetries; attempt++ {
		current, err := s.findOne(ctx, bson.M{"user_id": id})
		if err != nil {
			return model.User{}, err
		}

		u := s.toModel(current)
		if err := fn(&u); err != nil {
			return model.User{}, err
		}
		u.UpdatedAt = time.Now().UTC()

		next := toDoc(u)
		next.ObjectID = current.ObjectID
		next.Version = current.Version + 1

		res, err := s.users.ReplaceOne(ctx, bson.M{"user_id": id, "version": current.Version}, next)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return model.User{}, ErrDuplicate
			}
			return model.User{}, fmt.Errorf("failed to write user: %w", err)
		}
		if res.MatchedCount == 1 {
			return s.toModel(next), nil
		}
	}
	return model.User{}, ErrConcurrentUpdate
}

// Delete removes a user
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.users.DeleteOne(ctx, bson.M{"user_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpiredPending purges pending users whose challenge expired before now
func (s *MongoStore) DeleteExpiredPending(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.users.DeleteMany(ctx, bson.M{
		"is_verified": string(model.StatusPending),
		"otp_expiry":  bson.M{"$lt": now},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired users: %w", err)
	}
	return res.DeletedCount, nil
}

type mongoRoles struct {
	s *MongoStore
}

func (r mongoRoles) GetByName(_ context.Context, name string) (model.Role, error) {
	for _, role := range r.s.roleList {
		if role.Name == name {
			return role, nil
		}
	}
	return model.Role{}, ErrNotFound
}

func (r mongoRoles) GetByID(_ context.Context, id string) (model.Role, error) {
	for _, role := range r.s.roleList {
		if role.ID == id {
			return role, nil
		}
	}
	return model.Role{}, ErrNotFound
}

func (r mongoRoles) List(_ context.Context) ([]model.Role, error) {
	roles := make([]model.Role, len(r.s.roleList))
	copy(roles, r.s.roleList)
	return roles, nil
}
