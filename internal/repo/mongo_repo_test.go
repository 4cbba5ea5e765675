package repo

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ridehub/accounts/internal/model"
)

func newMongoStore(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set; skipping mongo store test")
	}

	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	database := client.Database("accounts_test_" + uuid.NewString()[:8])
	t.Cleanup(func() { _ = database.Drop(context.Background()) })

	s, err := NewMongoStore(ctx, database)
	require.NoError(t, err)
	return s
}

func newMongoUser(t *testing.T, s *MongoStore, email, phone string) model.User {
	t.Helper()
	role, err := s.Roles().GetByName(context.Background(), model.RoleDriver)
	require.NoError(t, err)
	now := time.Now().UTC().Truncate(time.Millisecond)
	exp := now.Add(10 * time.Minute)
	return model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Phone:        phone,
		PasswordHash: "hash",
		RoleID:       role.ID,
		Status:       model.StatusPending,
		EmailOTP:     "e-digest",
		PhoneOTP:     "p-digest",
		OTPExpiresAt: &exp,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestMongoStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := newMongoStore(t)

	created, err := s.Create(ctx, newMongoUser(t, s, "a@x.com", "555-0100"))
	require.NoError(t, err)
	assert.Equal(t, model.RoleDriver, created.RoleName)

	_, err = s.Create(ctx, newMongoUser(t, s, "a@x.com", "555-0101"))
	assert.ErrorIs(t, err, ErrDuplicate)

	found, err := s.FindByContact(ctx, "", "555-0100")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	verified, err := s.Mutate(ctx, created.ID, func(u *model.User) error {
		u.Status = model.StatusVerified
		u.ClearChallenge()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusVerified, verified.Status)

	reloaded, err := s.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Empty(t, reloaded.EmailOTP)
	assert.Empty(t, reloaded.PhoneOTP)
	assert.Nil(t, reloaded.OTPExpiresAt)

	name := "Alice"
	updated, err := s.Update(ctx, created.ID, model.UserPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.Name)

	users, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, s.Delete(ctx, created.ID))
	assert.ErrorIs(t, s.Delete(ctx, created.ID), ErrNotFound)
}

func TestMongoStore_MutateSerializesWriters(t *testing.T) {
	ctx := context.Background()
	s := newMongoStore(t)

	created, err := s.Create(ctx, newMongoUser(t, s, "a@x.com", "555-0100"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Mutate(ctx, created.ID, func(u *model.User) error {
				u.Name += "x"
				return nil
			})
		}()
	}
	wg.Wait()

	got, err := s.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "xxx", got.Name)
}

func TestMongoStore_DeleteExpiredPending(t *testing.T) {
	ctx := context.Background()
	s := newMongoStore(t)

	u := newMongoUser(t, s, "old@x.com", "555-0001")
	past := time.Now().Add(-time.Minute)
	u.OTPExpiresAt = &past
	_, err := s.Create(ctx, u)
	require.NoError(t, err)
	_, err = s.Create(ctx, newMongoUser(t, s, "new@x.com", "555-0002"))
	require.NoError(t, err)

	n, err := s.DeleteExpiredPending(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
