package auth

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/flora-iot/flora-core/internal/infrastructure/database"
	_ "github.com/flora-iot/flora-core/migrations"
)

const testSecret = "test-secret-that-is-at-least-32-characters"

// testDB opens an in-memory database with the real schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db.DB
}

// createTestUser inserts an active user with a cheaply hashed password.
func createTestUser(t *testing.T, repo UserRepository, username, password string) *User {
	t.Helper()

	hash, err := hashWith(password, cheapParams)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	user := &User{Username: username, PasswordHash: hash, IsActive: true}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("creating user %q: %v", username, err)
	}
	return user
}

func testService(t *testing.T, allowSignup bool) (*Service, *SQLiteUserRepository, *SQLiteTokenRepository) {
	t.Helper()

	db := testDB(t)
	users := NewUserRepository(db)
	tokens := NewTokenRepository(db)
	svc, err := NewService(users, tokens, ServiceConfig{
		Secret:      testSecret,
		AccessTTL:   15 * time.Minute,
		RefreshTTL:  time.Hour,
		AllowSignup: allowSignup,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc, users, tokens
}
