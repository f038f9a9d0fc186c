// Package postgres implements repository.Repository backed by PostgreSQL.
//
// Rotation runs in a transaction: a conditional UPDATE guarded by
// state = 'active' (rows-affected check) followed by the successor INSERT.
// The row-level lock taken by the UPDATE serializes concurrent rotations of
// the same token, so exactly one of them commits.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sessiongate/internal/session/domain"
	"sessiongate/internal/session/repository"
)

// Store implements repository.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ repository.Repository = (*Store)(nil)

// NewStore returns a Store backed by the given pgx connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewStoreFromDSN creates a connection pool from a DSN string and returns a
// new Store. The schema is managed by cmd/migrate, not here.
func NewStoreFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return NewStore(pool), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Get(ctx context.Context, tokenID string) (*domain.Record, error) {
	var (
		rec       domain.Record
		successor *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT token_id, family_id, subject_id, issued_at, expires_at, state, successor_token_id
		 FROM refresh_tokens WHERE token_id = $1`,
		tokenID).Scan(
		&rec.TokenID, &rec.FamilyID, &rec.SubjectID, &rec.IssuedAt, &rec.ExpiresAt, &rec.State, &successor)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if successor != nil {
		rec.SuccessorTokenID = *successor
	}
	return &rec, nil
}

func (s *Store) Create(ctx context.Context, rec *domain.Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (token_id, family_id, subject_id, issued_at, expires_at, state)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.TokenID, rec.FamilyID, rec.SubjectID, rec.IssuedAt, rec.ExpiresAt, rec.State)
	if isUniqueViolation(err) {
		return repository.ErrDuplicateToken
	}
	return err
}

func (s *Store) Rotate(ctx context.Context, tokenID string, successor *domain.Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE refresh_tokens SET state = $1, successor_token_id = $2
		 WHERE token_id = $3 AND state = $4`,
		domain.StateRotated, successor.TokenID, tokenID, domain.StateActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotActive
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO refresh_tokens (token_id, family_id, subject_id, issued_at, expires_at, state)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		successor.TokenID, successor.FamilyID, successor.SubjectID,
		successor.IssuedAt, successor.ExpiresAt, successor.State)
	if isUniqueViolation(err) {
		return repository.ErrDuplicateToken
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) RevokeToken(ctx context.Context, tokenID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET state = $1 WHERE token_id = $2`,
		domain.StateRevoked, tokenID)
	return err
}

func (s *Store) RevokeFamily(ctx context.Context, familyID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET state = $1 WHERE family_id = $2`,
		domain.StateRevoked, familyID)
	return err
}

func (s *Store) RevokeAllBySubject(ctx context.Context, subjectID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET state = $1 WHERE subject_id = $2`,
		domain.StateRevoked, subjectID)
	return err
}

func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
