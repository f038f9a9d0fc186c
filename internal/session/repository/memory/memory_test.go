package memory

import (
	"testing"

	"sessiongate/internal/session/repository"
	"sessiongate/internal/session/repository/storetest"
)

func TestRepository(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Repository {
		return NewRepository()
	})
}
