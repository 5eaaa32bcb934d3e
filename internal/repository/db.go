package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert hits a unique constraint
	ErrDuplicate = errors.New("duplicate")
	// ErrStaleState is returned when a conditional update matched no row
	ErrStaleState = errors.New("row changed concurrently")
)

const uniqueViolation = "23505"

// DBTX is the subset of pgx used by repositories. *pgxpool.Pool, pgx.Tx and
// pgxmock all satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store groups the repositories over one database handle
type Store struct {
	db DBTX
}

// NewStore creates a store over a pool or transaction
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// Users returns the user repository
func (s *Store) Users() *UserRepository {
	return NewUserRepository(s.db)
}

// Profiles returns the profile repository
func (s *Store) Profiles() *ProfileRepository {
	return NewProfileRepository(s.db)
}

// Applications returns the application repository
func (s *Store) Applications() *ApplicationRepository {
	return NewApplicationRepository(s.db)
}

// InTx runs fn inside a transaction, committing when fn returns nil
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(NewStore(tx))
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFoundOr(err error, wrap func(error) error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return wrap(err)
}
