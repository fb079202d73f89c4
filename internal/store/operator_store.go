package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brandworks/social-automation/publication-governor/internal/models"
)

// ErrOperatorNotFound is returned for unknown operator emails.
var ErrOperatorNotFound = errors.New("operator not found")

// OperatorStore looks up operator accounts for login.
type OperatorStore interface {
	GetByEmail(ctx context.Context, email string) (*models.Operator, error)
}

// PostgresOperatorStore reads operators from the operators table.
type PostgresOperatorStore struct {
	pool *pgxpool.Pool
}

// NewPostgresOperatorStore creates an operator store backed by the
// given pool.
func NewPostgresOperatorStore(pool *pgxpool.Pool) *PostgresOperatorStore {
	return &PostgresOperatorStore{pool: pool}
}

func (s *PostgresOperatorStore) GetByEmail(ctx context.Context, email string) (*models.Operator, error) {
	var op models.Operator

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, hashed_password, created_at, updated_at
		 FROM operators
		 WHERE email = $1`,
		email,
	).Scan(&op.ID, &op.Name, &op.Email, &op.HashedPassword, &op.CreatedAt, &op.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOperatorNotFound
		}
		return nil, fmt.Errorf("failed to get operator: %w", err)
	}

	return &op, nil
}

// MemoryOperatorStore holds operators in memory for development mode.
type MemoryOperatorStore struct {
	mu        sync.RWMutex
	operators map[string]models.Operator
}

// NewMemoryOperatorStore creates an empty in-memory operator store.
func NewMemoryOperatorStore() *MemoryOperatorStore {
	return &MemoryOperatorStore{operators: make(map[string]models.Operator)}
}

// Put adds or replaces an operator, keyed by lowercased email.
func (s *MemoryOperatorStore) Put(op models.Operator) {
	s.mu.Lock()
	s.operators[strings.ToLower(op.Email)] = op
	s.mu.Unlock()
}

func (s *MemoryOperatorStore) GetByEmail(ctx context.Context, email string) (*models.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.operators[strings.ToLower(email)]
	if !ok {
		return nil, ErrOperatorNotFound
	}
	return &op, nil
}
