// Package storetest holds a behavioral test suite that every
// repository.Repository implementation must pass. Backend test packages call
// Run with a factory for a fresh, empty store.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessiongate/internal/session/domain"
	"sessiongate/internal/session/repository"
)

// Factory returns a fresh, empty repository for one test.
type Factory func(t *testing.T) repository.Repository

// Run executes the shared repository contract suite against the backend
// produced by the factory.
func Run(t *testing.T, factory Factory) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, factory(t)) })
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, factory(t)) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, factory(t)) })
	t.Run("Rotate", func(t *testing.T) { testRotate(t, factory(t)) })
	t.Run("RotateNotActive", func(t *testing.T) { testRotateNotActive(t, factory(t)) })
	t.Run("RotateConcurrent", func(t *testing.T) { testRotateConcurrent(t, factory(t)) })
	t.Run("RevokeTokenIdempotent", func(t *testing.T) { testRevokeTokenIdempotent(t, factory(t)) })
	t.Run("RevokeFamily", func(t *testing.T) { testRevokeFamily(t, factory(t)) })
	t.Run("RevokeAllBySubject", func(t *testing.T) { testRevokeAllBySubject(t, factory(t)) })
	t.Run("DeleteExpired", func(t *testing.T) { testDeleteExpired(t, factory(t)) })
}

func newRecord(tokenID, familyID, subjectID string, ttl time.Duration) *domain.Record {
	now := time.Now().UTC()
	return &domain.Record{
		TokenID:   tokenID,
		FamilyID:  familyID,
		SubjectID: subjectID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		State:     domain.StateActive,
	}
}

func testGetMissing(t *testing.T, repo repository.Repository) {
	rec, err := repo.Get(context.Background(), "no-such-token")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func testCreateAndGet(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	in := newRecord("t1", "f1", "s1", time.Hour)
	require.NoError(t, repo.Create(ctx, in))

	got, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "f1", got.FamilyID)
	assert.Equal(t, "s1", got.SubjectID)
	assert.Equal(t, domain.StateActive, got.State)
	assert.Empty(t, got.SuccessorTokenID)
}

func testCreateDuplicate(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newRecord("t1", "f1", "s1", time.Hour)))
	err := repo.Create(ctx, newRecord("t1", "f2", "s2", time.Hour))
	assert.ErrorIs(t, err, repository.ErrDuplicateToken)
}

func testRotate(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newRecord("t1", "f1", "s1", time.Hour)))

	require.NoError(t, repo.Rotate(ctx, "t1", newRecord("t2", "f1", "s1", time.Hour)))

	prev, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, domain.StateRotated, prev.State)
	assert.Equal(t, "t2", prev.SuccessorTokenID)

	succ, err := repo.Get(ctx, "t2")
	require.NoError(t, err)
	require.NotNil(t, succ)
	assert.Equal(t, domain.StateActive, succ.State)
	assert.Equal(t, "f1", succ.FamilyID)
}

func testRotateNotActive(t *testing.T, repo repository.Repository) {
	ctx := context.Background()

	err := repo.Rotate(ctx, "missing", newRecord("t9", "f1", "s1", time.Hour))
	assert.ErrorIs(t, err, repository.ErrNotActive)

	require.NoError(t, repo.Create(ctx, newRecord("t1", "f1", "s1", time.Hour)))
	require.NoError(t, repo.Rotate(ctx, "t1", newRecord("t2", "f1", "s1", time.Hour)))

	err = repo.Rotate(ctx, "t1", newRecord("t3", "f1", "s1", time.Hour))
	assert.ErrorIs(t, err, repository.ErrNotActive)

	require.NoError(t, repo.RevokeToken(ctx, "t2"))
	err = repo.Rotate(ctx, "t2", newRecord("t4", "f1", "s1", time.Hour))
	assert.ErrorIs(t, err, repository.ErrNotActive)
}

func testRotateConcurrent(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newRecord("t1", "f1", "s1", time.Hour)))

	const n = 50
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			succ := newRecord(fmt.Sprintf("succ-%d", i), "f1", "s1", time.Hour)
			errs[i] = repo.Rotate(ctx, "t1", succ)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, repository.ErrNotActive)
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent rotation must win")

	prev, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, domain.StateRotated, prev.State)

	// The winner's successor record, and only it, exists.
	existing := 0
	for i := 0; i < n; i++ {
		succ, err := repo.Get(ctx, fmt.Sprintf("succ-%d", i))
		require.NoError(t, err)
		if succ != nil {
			existing++
			assert.Equal(t, succ.TokenID, prev.SuccessorTokenID)
		}
	}
	assert.Equal(t, 1, existing, "exactly one successor record must exist")
}

func testRevokeTokenIdempotent(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newRecord("t1", "f1", "s1", time.Hour)))

	require.NoError(t, repo.RevokeToken(ctx, "t1"))
	require.NoError(t, repo.RevokeToken(ctx, "t1"))
	require.NoError(t, repo.RevokeToken(ctx, "missing"))

	got, err := repo.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateRevoked, got.State)
}

func testRevokeFamily(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newRecord("t1", "f1", "s1", time.Hour)))
	require.NoError(t, repo.Rotate(ctx, "t1", newRecord("t2", "f1", "s1", time.Hour)))
	require.NoError(t, repo.Create(ctx, newRecord("other", "f2", "s1", time.Hour)))

	require.NoError(t, repo.RevokeFamily(ctx, "f1"))
	require.NoError(t, repo.RevokeFamily(ctx, "f1")) // idempotent

	for _, id := range []string{"t1", "t2"} {
		got, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StateRevoked, got.State, "token %s", id)
	}

	// Records outside the family are untouched.
	other, err := repo.Get(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, other.State)
}

func testRevokeAllBySubject(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newRecord("t1", "f1", "s1", time.Hour)))
	require.NoError(t, repo.Create(ctx, newRecord("t2", "f2", "s1", time.Hour)))
	require.NoError(t, repo.Create(ctx, newRecord("t3", "f3", "s2", time.Hour)))

	require.NoError(t, repo.RevokeAllBySubject(ctx, "s1"))
	require.NoError(t, repo.RevokeAllBySubject(ctx, "s1")) // idempotent

	for _, id := range []string{"t1", "t2"} {
		got, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StateRevoked, got.State, "token %s", id)
	}
	got, err := repo.Get(ctx, "t3")
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, got.State)
}

func testDeleteExpired(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newRecord("old", "f1", "s1", -time.Hour)))
	require.NoError(t, repo.Create(ctx, newRecord("fresh", "f2", "s1", time.Hour)))

	n, err := repo.DeleteExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	gone, err := repo.Get(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := repo.Get(ctx, "fresh")
	require.NoError(t, err)
	require.NotNil(t, kept)
}
