package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ridehub/accounts/internal/model"
)

var (
	_ UserRepo = (*MemoryStore)(nil)
	_ RoleRepo = memoryRoles{}
)

// MemoryStore is an in-process account store and role resolver for local runs and tests.
// A single mutex serializes all access, which gives per-record atomicity trivially.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]model.User
	roles []model.Role
}

// NewMemoryStore creates a store seeded with the rider, driver and admin roles
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{users: make(map[string]model.User)}
	for _, name := range []string{model.RoleAdmin, model.RoleDriver, model.RoleRider} {
		s.roles = append(s.roles, model.Role{ID: uuid.NewString(), Name: name})
	}
	return s
}

// Roles returns the role resolver view of the store
func (s *MemoryStore) Roles() RoleRepo {
	return memoryRoles{s}
}

func copyUser(u model.User) model.User {
	if u.OTPExpiresAt != nil {
		t := *u.OTPExpiresAt
		u.OTPExpiresAt = &t
	}
	return u
}

func (s *MemoryStore) roleName(id string) string {
	for _, r := range s.roles {
		if r.ID == id {
			return r.Name
		}
	}
	return ""
}

func (s *MemoryStore) out(u model.User) model.User {
	u = copyUser(u)
	u.RoleName = s.roleName(u.RoleID)
	return u
}

// conflicts reports whether another user already holds email or phone
func (s *MemoryStore) conflicts(id, email, phone string) bool {
	for _, u := range s.users {
		if u.ID == id {
			continue
		}
		if (email != "" && u.Email == email) || (phone != "" && u.Phone == phone) {
			return true
		}
	}
	return false
}

// Create inserts a new user
func (s *MemoryStore) Create(_ context.Context, user model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists || s.conflicts(user.ID, user.Email, user.Phone) {
		return model.User{}, ErrDuplicate
	}
	user.RoleName = ""
	s.users[user.ID] = copyUser(user)
	return s.out(user), nil
}

// GetByID retrieves a user by ID
func (s *MemoryStore) GetByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return s.out(u), nil
}

// GetByEmail retrieves a user by email
func (s *MemoryStore) GetByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return s.out(u), nil
		}
	}
	return model.User{}, ErrNotFound
}

// FindByContact retrieves the oldest user whose email or phone matches. Empty arguments never match.
func (s *MemoryStore) FindByContact(_ context.Context, email, phone string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		found model.User
		ok    bool
	)
	for _, u := range s.users {
		if (email != "" && u.Email == email) || (phone != "" && u.Phone == phone) {
			if !ok || u.CreatedAt.Before(found.CreatedAt) {
				found, ok = u, true
			}
		}
	}
	if !ok {
		return model.User{}, ErrNotFound
	}
	return s.out(found), nil
}

// List returns all users ordered by creation time
func (s *MemoryStore) List(_ context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, s.out(u))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

// Update merges the allow-listed patch fields and stamps UpdatedAt
func (s *MemoryStore) Update(_ context.Context, id string, patch model.UserPatch) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	patch.Apply(&u)
	if s.conflicts(id, u.Email, u.Phone) {
		return model.User{}, ErrDuplicate
	}
	u.UpdatedAt = time.Now()
	s.users[id] = u
	return s.out(u), nil
}

// Mutate applies fn to a copy of the user and stores it if fn succeeds
func (s *MemoryStore) Mutate(_ context.Context, id string, fn func(u *model.User) error) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	u := s.out(stored)
	if err := fn(&u); err != nil {
		return model.User{}, err
	}
	if s.conflicts(id, u.Email, u.Phone) {
		return model.User{}, ErrDuplicate
	}
	u.UpdatedAt = time.Now()
	s.users[id] = copyUser(u)
	return s.out(u), nil
}

// Delete removes a user
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// DeleteExpiredPending purges pending users whose challenge expired before now
func (s *MemoryStore) DeleteExpiredPending(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, u := range s.users {
		if u.Status == model.StatusPending && u.OTPExpiresAt != nil && u.OTPExpiresAt.Before(now) {
			delete(s.users, id)
			n++
		}
	}
	return n, nil
}

type memoryRoles struct {
	s *MemoryStore
}

func (r memoryRoles) GetByName(_ context.Context, name string) (model.Role, error) {
	for _, role := range r.s.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return model.Role{}, ErrNotFound
}

func (r memoryRoles) GetByID(_ context.Context, id string) (model.Role, error) {
	for _, role := range r.s.roles {
		if role.ID == id {
			return role, nil
		}
	}
	return model.Role{}, ErrNotFound
}

func (r memoryRoles) List(_ context.Context) ([]model.Role, error) {
	roles := make([]model.Role, len(r.s.roles))
	copy(roles, r.s.roles)
	return roles, nil
}
