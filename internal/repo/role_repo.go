package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ridehub/accounts/internal/model"
)

// RoleRepo resolves the read-only role reference data
type RoleRepo interface {
	GetByName(ctx context.Context, name string) (model.Role, error)
	GetByID(ctx context.Context, id string) (model.Role, error)
	List(ctx context.Context) ([]model.Role, error)
}

type roleRepo struct {
	db *sql.DB
}

// NewRoleRepo creates a new Postgres-backed RoleRepo instance
func NewRoleRepo(database *sql.DB) RoleRepo {
	return &roleRepo{db: database}
}

func (r *roleRepo) getOne(ctx context.Context, where string, arg string) (model.Role, error) {
	var role model.Role
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM roles `+where, arg).Scan(&role.ID, &role.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Role{}, ErrNotFound
		}
		return model.Role{}, fmt.Errorf("failed to query role: %w", err)
	}
	return role, nil
}

// GetByName retrieves a role by its unique name
func (r *roleRepo) GetByName(ctx context.Context, name string) (model.Role, error) {
	return r.getOne(ctx, `WHERE name = $1`, name)
}

// GetByID retrieves a role by ID
func (r *roleRepo) GetByID(ctx context.Context, id string) (model.Role, error) {
	return r.getOne(ctx, `WHERE id::text = $1`, id)
}

// List returns all roles ordered by name
func (r *roleRepo) List(ctx context.Context) ([]model.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := make([]model.Role, 0, 3)
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}
	return roles, nil
}
