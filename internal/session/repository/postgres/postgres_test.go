package postgres

import (
	"context"
	"os"
	"testing"

	"sessiongate/internal/session/repository"
	"sessiongate/internal/session/repository/storetest"
)

// TestStore runs the shared contract suite against a real database. It is
// skipped unless DATABASE_URL is set; the schema must already be migrated
// (go run ./cmd/migrate).
func TestStore(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	storetest.Run(t, func(t *testing.T) repository.Repository {
		ctx := context.Background()
		s, err := NewStoreFromDSN(ctx, dsn)
		if err != nil {
			t.Skipf("database connection failed: %v", err)
		}
		if _, err := s.pool.Exec(ctx, "TRUNCATE refresh_tokens"); err != nil {
			s.Close()
			t.Fatalf("truncate: %v", err)
		}
		t.Cleanup(s.Close)
		return s
	})
}
