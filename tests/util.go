package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/tutorhub/core"
	"github.com/trezcool/tutorhub/core/provision"
	"github.com/trezcool/tutorhub/storage/database"
)

const dbURLEnv = "TEST_DATABASE_URL"

// PrepareDB opens and migrates the test database, and empties the profile table.
// The test is skipped when TEST_DATABASE_URL is not set.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dbURL := os.Getenv(dbURLEnv)
	if dbURL == "" {
		t.Skipf("%s is not set", dbURLEnv)
	}

	conf := &core.Config{Database: core.DatabaseConfig{URL: dbURL, Engine: "postgres"}}
	ctx := context.Background()

	db, err := database.Open(ctx, conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(ctx, db.DB); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	if _, err = db.ExecContext(ctx, "TRUNCATE TABLE user_profiles RESTART IDENTITY"); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

// CreateProfiles inserts legacy rows. Empty UniqueID and UserType are stored as NULL.
func CreateProfiles(t *testing.T, db core.DBQuerier, profiles ...provision.LegacyUser) {
	t.Helper()

	for _, p := range profiles {
		_, err := db.ExecContext(
			context.Background(),
			"INSERT INTO user_profiles (email, unique_id, user_type) VALUES ($1, NULLIF($2, ''), NULLIF($3, ''))",
			p.Email, p.UniqueID, p.UserType,
		)
		if err != nil {
			t.Fatalf("CreateProfiles() failed: %v", err)
		}
	}
}

// CreateNullEmailProfile inserts a legacy row without email.
func CreateNullEmailProfile(t *testing.T, db core.DBQuerier, uniqueID string) {
	t.Helper()

	if _, err := db.ExecContext(context.Background(), "INSERT INTO user_profiles (unique_id) VALUES ($1)", uniqueID); err != nil {
		t.Fatalf("CreateNullEmailProfile() failed: %v", err)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// NewLogger returns a core.Logger that drops everything.
func NewLogger() core.Logger {
	return nopLogger{}
}
