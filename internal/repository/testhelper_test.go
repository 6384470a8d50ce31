package repository

import (
	"database/sql"
	"testing"

	"github.com/guidely/guidely-api/internal/database/migrations"
	_ "github.com/tursodatabase/go-libsql"
)

// setupTestDB creates an in-memory SQLite database for testing.
// It runs migrations and returns a database connection that will be cleaned up
// when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db := setupTestDB(t)
	return NewRepositories(db, nil)
}

// insertTestSession inserts a session row directly.
func insertTestSession(t *testing.T, db *sql.DB, id, userEmail, title, model string) {
	t.Helper()
	query := `
		INSERT INTO chat_sessions (id, user_email, title, model, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, datetime('now'), datetime('now'))
	`
	if _, err := db.Exec(query, id, userEmail, title, model); err != nil {
		t.Fatalf("failed to insert test session: %v", err)
	}
}
