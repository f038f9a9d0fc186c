// Worker sweeps expired refresh token records from the session store.
// Expired tokens are already unusable; the sweep only reclaims storage, so
// the interval (GC_INTERVAL) can be generous.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sessiongate/internal/config"
	"sessiongate/internal/session/repository"
	bboltstore "sessiongate/internal/session/repository/bbolt"
	pgstore "sessiongate/internal/session/repository/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("worker: shutting down...")
		cancel()
	}()

	repo, closeRepo, err := newRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("worker: store: %v", err)
	}
	defer closeRepo()

	interval := cfg.GCInterval()
	log.Printf("worker: sweeping expired records every %s (store: %s)", interval, cfg.StoreBackend)

	sweep(ctx, repo)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("worker: stopped")
			return
		case <-ticker.C:
			sweep(ctx, repo)
		}
	}
}

func sweep(ctx context.Context, repo repository.Repository) {
	sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	deleted, err := repo.DeleteExpired(sweepCtx, time.Now().UTC())
	if err != nil {
		log.Printf("worker: sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("worker: deleted %d expired records", deleted)
	}
}

// newRepository builds the store to sweep. The memory backend is per-process
// and has nothing durable to reclaim, so the worker rejects it.
func newRepository(ctx context.Context, cfg *config.Config) (repository.Repository, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreBBolt:
		store, err := bboltstore.NewStoreFromFile(cfg.BBoltPath, nil)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.StorePostgres:
		store, err := pgstore.NewStoreFromDSN(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		log.Fatalf("worker: STORE_BACKEND must be bbolt or postgres, got %q", cfg.StoreBackend)
		return nil, nil, nil
	}
}
