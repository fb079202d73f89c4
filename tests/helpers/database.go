package helpers

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// GetTestDatabasePool creates a database connection pool for testing
func GetTestDatabasePool(ctx context.Context) (*pgxpool.Pool, error) {
	databaseURL := buildDatabaseURL()

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// buildDatabaseURL constructs the database URL from environment variables
func buildDatabaseURL() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "publication-governor-db-rw.social-automation.svc"
	}

	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}

	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "postgres"
	}

	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		password = "postgres"
	}

	dbname := os.Getenv("POSTGRES_DB")
	if dbname == "" {
		dbname = "publication_governor"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=prefer",
		user, password, host, port, dbname)
}

// TestDatabase provides database utilities for testing
type TestDatabase struct {
	Pool *pgxpool.Pool
	ctx  context.Context
}

// NewTestDatabase creates a new test database instance
func NewTestDatabase(t *testing.T) *TestDatabase {
	ctx := context.Background()

	pool, err := GetTestDatabasePool(ctx)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	return &TestDatabase{
		Pool: pool,
		ctx:  ctx,
	}
}

// Close closes the database connection
func (db *TestDatabase) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// CleanupTables removes test data from the governor tables. Order
// matters only for readability; none of the tables reference each
// other by foreign key.
func (db *TestDatabase) CleanupTables(t *testing.T) {
	tables := []string{
		"safety_audit",
		"experiments",
		"blacklist_terms",
		"agent_flags",
		"operators",
	}

	for _, table := range tables {
		_, err := db.Pool.Exec(db.ctx, fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			t.Logf("Warning: Failed to cleanup table %s: %v", table, err)
		}
	}
}

// CreateTestOperator creates an operator with the given bcrypt-hashed
// password and returns the operator ID.
func (db *TestDatabase) CreateTestOperator(t *testing.T, email, hashedPassword string) string {
	var operatorID string
	err := db.Pool.QueryRow(db.ctx, `
		INSERT INTO operators (name, email, hashed_password, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id
	`, "Test Operator", email, hashedPassword).Scan(&operatorID)

	if err != nil {
		t.Fatalf("Failed to create test operator: %v", err)
	}

	return operatorID
}

// CreateTestExperimentRecord inserts a minimal completed experiment row
// and returns its ID.
func (db *TestDatabase) CreateTestExperimentRecord(t *testing.T, campaignID, status string) string {
	experimentID := uuid.New().String()
	_, err := db.Pool.Exec(db.ctx, `
		INSERT INTO experiments (id, campaign_id, status, variants, metrics, scores, started_at)
		VALUES ($1, $2, $3, '[]'::jsonb, '{}'::jsonb, '{}'::jsonb, $4)
	`, experimentID, campaignID, status, time.Now().UTC())

	if err != nil {
		t.Fatalf("Failed to create test experiment: %v", err)
	}

	return experimentID
}

// GetExperimentCount returns the number of experiments for a campaign
func (db *TestDatabase) GetExperimentCount(t *testing.T, campaignID string) int {
	var count int
	err := db.Pool.QueryRow(db.ctx,
		"SELECT COUNT(*) FROM experiments WHERE campaign_id = $1", campaignID).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to get experiment count: %v", err)
	}
	return count
}

// GetAuditCount returns the number of safety audit entries
func (db *TestDatabase) GetAuditCount(t *testing.T) int {
	var count int
	err := db.Pool.QueryRow(db.ctx, "SELECT COUNT(*) FROM safety_audit").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to get audit count: %v", err)
	}
	return count
}

// GetOperatorCount returns the number of operators in the database
func (db *TestDatabase) GetOperatorCount(t *testing.T) int {
	var count int
	err := db.Pool.QueryRow(db.ctx, "SELECT COUNT(*) FROM operators").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to get operator count: %v", err)
	}
	return count
}

// HashPassword hashes a password using bcrypt for testing
func (db *TestDatabase) HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// WaitForDatabase waits for database to be ready
func WaitForDatabase(ctx context.Context, maxAttempts int) error {
	for i := 0; i < maxAttempts; i++ {
		pool, err := GetTestDatabasePool(ctx)
		if err == nil {
			pool.Close()
			return nil
		}

		if i < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}

	return fmt.Errorf("database not ready after %d attempts", maxAttempts)
}
