package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ridehub/accounts/internal/db"
	"github.com/ridehub/accounts/internal/model"
)

var (
	// ErrNotFound is returned when no record matches the lookup
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a write collides with a unique email or phone
	ErrDuplicate = errors.New("duplicate email or phone")
)

// UserRepo defines the interface for account store operations. Every method is
// atomic per record; Mutate additionally holds the record for the duration of fn.
type UserRepo interface {
	Create(ctx context.Context, user model.User) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	FindByContact(ctx context.Context, email, phone string) (model.User, error)
	List(ctx context.Context) ([]model.User, error)
	Update(ctx context.Context, id string, patch model.UserPatch) (model.User, error)
	Mutate(ctx context.Context, id string, fn func(u *model.User) error) (model.User, error)
	Delete(ctx context.Context, id string) error
	DeleteExpiredPending(ctx context.Context, now time.Time) (int64, error)
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new Postgres-backed UserRepo instance
func NewUserRepo(database *sql.DB) UserRepo {
	return &userRepo{db: database}
}

const selectUser = `
	SELECT u.id, u.name, u.email, u.phone, u.gender, u.password_hash, u.role_id, r.name,
	       u.status, u.email_otp, u.phone_otp, u.otp_expires_at, u.created_at, u.updated_at
	FROM users u
	JOIN roles r ON r.id = u.role_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		user     model.User
		status   string
		emailOTP sql.NullString
		phoneOTP sql.NullString
	)
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Phone,
		&user.Gender,
		&user.PasswordHash,
		&user.RoleID,
		&user.RoleName,
		&status,
		&emailOTP,
		&phoneOTP,
		&user.OTPExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return model.User{}, err
	}
	user.Status = model.VerificationStatus(status)
	user.EmailOTP = emailOTP.String
	user.PhoneOTP = phoneOTP.String
	return user, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func queryOne(ctx context.Context, q db.DBTX, where string, args ...any) (model.User, error) {
	user, err := scanUser(q.QueryRowContext(ctx, selectUser+where, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

// Create inserts a new user. The caller assigns the identifier.
func (r *userRepo) Create(ctx context.Context, user model.User) (model.User, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, phone, gender, password_hash, role_id, status,
		                   email_otp, phone_otp, otp_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		user.ID, user.Name, user.Email, user.Phone, user.Gender, user.PasswordHash, user.RoleID,
		string(user.Status), nullString(user.EmailOTP), nullString(user.PhoneOTP), user.OTPExpiresAt,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return model.User{}, ErrDuplicate
		}
		return model.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	return r.GetByID(ctx, user.ID)
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	return queryOne(ctx, r.db, `WHERE u.id::text = $1`, id)
}

// GetByEmail retrieves a user by email
func (r *userRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return queryOne(ctx, r.db, `WHERE u.email = $1`, email)
}

// FindByContact retrieves the first user whose email or phone matches. Empty arguments never match.
func (r *userRepo) FindByContact(ctx context.Context, email, phone string) (model.User, error) {
	return queryOne(ctx, r.db, `
		WHERE ($1 <> '' AND u.email = $1) OR ($2 <> '' AND u.phone = $2)
		ORDER BY u.created_at
		LIMIT 1
	`, email, phone)
}

// List returns all users ordered by creation time
func (r *userRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx, selectUser+` ORDER BY u.created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// Update merges the allow-listed patch fields and stamps updated_at
func (r *userRepo) Update(ctx context.Context, id string, patch model.UserPatch) (model.User, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET name = COALESCE($2, name),
		    email = COALESCE($3, email),
		    phone = COALESCE($4, phone),
		    gender = COALESCE($5, gender),
		    updated_at = now()
		WHERE id::text = $1
	`, id, patch.Name, patch.Email, patch.Phone, patch.Gender)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return model.User{}, ErrDuplicate
		}
		return model.User{}, fmt.Errorf("failed to update user: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return model.User{}, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// Mutate locks the user row, lets fn modify the loaded record and writes it back
// in the same transaction. If fn returns an error nothing is written.
func (r *userRepo) Mutate(ctx context.Context, id string, fn func(u *model.User) error) (model.User, error) {
	var updated model.User
	err := db.WithTx(ctx, r.db, func(ctx context.Context, tx db.DBTX) error {
		user, err := queryOne(ctx, tx, `WHERE u.id::text = $1 FOR UPDATE OF u`, id)
		if err != nil {
			return err
		}
		if err := fn(&user); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE users
			SET name = $2, email = $3, phone = $4, gender = $5, password_hash = $6, role_id = $7,
			    status = $8, email_otp = $9, phone_otp = $10, otp_expires_at = $11, updated_at = now()
			WHERE id::text = $1
		`,
			id, user.Name, user.Email, user.Phone, user.Gender, user.PasswordHash, user.RoleID,
			string(user.Status), nullString(user.EmailOTP), nullString(user.PhoneOTP), user.OTPExpiresAt,
		)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to write user: %w", err)
		}

		updated, err = queryOne(ctx, tx, `WHERE u.id::text = $1`, id)
		return err
	})
	if err != nil {
		return model.User{}, err
	}
	return updated, nil
}

// Delete removes a user
func (r *userRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id::text = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpiredPending purges pending users whose challenge expired before now
func (r *userRepo) DeleteExpiredPending(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM users
		WHERE status = 'pending' AND otp_expires_at IS NOT NULL AND otp_expires_at < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired users: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
