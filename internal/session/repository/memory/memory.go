// Package memory provides a thread-safe in-memory implementation of
// repository.Repository. Suitable for tests and single-process use.
package memory

import (
	"context"
	"sync"
	"time"

	"sessiongate/internal/session/domain"
	"sessiongate/internal/session/repository"
)

// Repository is a mutex-guarded in-memory record store.
type Repository struct {
	mu      sync.Mutex
	records map[string]*domain.Record
}

var _ repository.Repository = (*Repository)(nil)

// NewRepository creates an empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{records: make(map[string]*domain.Record)}
}

func (r *Repository) Get(ctx context.Context, tokenID string) (*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[tokenID].Clone(), nil
}

func (r *Repository) Create(ctx context.Context, rec *domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.TokenID]; ok {
		return repository.ErrDuplicateToken
	}
	r.records[rec.TokenID] = rec.Clone()
	return nil
}

func (r *Repository) Rotate(ctx context.Context, tokenID string, successor *domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.records[tokenID]
	if !ok || prev.State != domain.StateActive {
		return repository.ErrNotActive
	}
	if _, ok := r.records[successor.TokenID]; ok {
		return repository.ErrDuplicateToken
	}
	prev.State = domain.StateRotated
	prev.SuccessorTokenID = successor.TokenID
	r.records[successor.TokenID] = successor.Clone()
	return nil
}

func (r *Repository) RevokeToken(ctx context.Context, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[tokenID]; ok {
		rec.State = domain.StateRevoked
	}
	return nil
}

func (r *Repository) RevokeFamily(ctx context.Context, familyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.FamilyID == familyID {
			rec.State = domain.StateRevoked
		}
	}
	return nil
}

func (r *Repository) RevokeAllBySubject(ctx context.Context, subjectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.SubjectID == subjectID {
			rec.State = domain.StateRevoked
		}
	}
	return nil
}

func (r *Repository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, rec := range r.records {
		if rec.ExpiresAt.Before(before) {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}
