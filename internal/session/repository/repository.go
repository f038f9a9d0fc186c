// Package repository defines persistence for refresh token records.
package repository

import (
	"context"
	"errors"
	"time"

	"sessiongate/internal/session/domain"
)

// ErrNotActive is returned by Rotate when the record is missing or its state
// is no longer active at commit time. The caller re-reads the record to
// classify the failure (rotated means reuse, revoked means a dead session).
var ErrNotActive = errors.New("record is not active")

// ErrDuplicateToken is returned by Create when a record with the same token id
// already exists.
var ErrDuplicateToken = errors.New("token id already exists")

// Repository defines persistence for refresh token records. The record keyed
// by token id is the only shared mutable state in the system; implementations
// must make Rotate a single atomic operation and must not cache records
// across calls.
type Repository interface {
	// Get returns the record for tokenID, or nil if not found. It returns an
	// error only for storage failures, not for missing records.
	Get(ctx context.Context, tokenID string) (*domain.Record, error)

	// Create persists a new record. The record must be in state active.
	Create(ctx context.Context, r *domain.Record) error

	// Rotate atomically marks the record for tokenID as rotated, points its
	// successor reference at successor.TokenID, and inserts the successor in
	// state active. The whole operation commits only if the predecessor's
	// state is still active; otherwise nothing is written and ErrNotActive is
	// returned. Concurrent Rotate calls on one tokenID yield exactly one
	// success.
	Rotate(ctx context.Context, tokenID string, successor *domain.Record) error

	// RevokeToken marks the single record for tokenID as revoked. Idempotent;
	// revoking a missing or already-revoked record is not an error.
	RevokeToken(ctx context.Context, tokenID string) error

	// RevokeFamily marks every record sharing familyID as revoked, regardless
	// of current state. Idempotent and safe to call concurrently.
	RevokeFamily(ctx context.Context, familyID string) error

	// RevokeAllBySubject marks every record belonging to subjectID as revoked.
	// Idempotent.
	RevokeAllBySubject(ctx context.Context, subjectID string) error

	// DeleteExpired removes records whose expiry is before the given time.
	// Housekeeping only; correctness never depends on it. Returns the number
	// of records removed.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
