// Package tests holds integration tests that run against a real PostgreSQL
// database. They are skipped unless DATABASE_URL is set.
package tests

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/ridehub/accounts/internal/db"
)

// RunMigrations applies the embedded migrations.
func RunMigrations(ctx context.Context, database *sql.DB) error {
	if err := db.Migrate(ctx, database); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// TruncateUsers removes all accounts for a clean test state. Seeded roles are kept.
func TruncateUsers(ctx context.Context, database *sql.DB) error {
	_, err := database.ExecContext(ctx, "TRUNCATE TABLE users")
	if err != nil {
		return fmt.Errorf("truncate users: %w", err)
	}
	return nil
}

// CodeSink records the last code sent to each address or number
type CodeSink struct {
	mu    sync.Mutex
	codes map[string]string
}

// NewCodeSink creates an empty sink
func NewCodeSink() *CodeSink {
	return &CodeSink{codes: make(map[string]string)}
}

func (s *CodeSink) SendEmailCode(_ context.Context, address, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[address] = code
	return nil
}

func (s *CodeSink) SendTextCode(_ context.Context, number, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[number] = code
	return nil
}

// Code returns the last code delivered to contact
func (s *CodeSink) Code(contact string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[contact]
}
