package bbolt

import (
	"path/filepath"
	"testing"

	"sessiongate/internal/session/repository"
	"sessiongate/internal/session/repository/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Repository {
		path := filepath.Join(t.TempDir(), "sessions.db")
		s, err := NewStoreFromFile(path, nil)
		if err != nil {
			t.Fatalf("NewStoreFromFile: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
