// server runs the HTTP session service: login, refresh token rotation with
// reuse detection, and logout.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"

	"sessiongate/internal/config"
	"sessiongate/internal/security"
	"sessiongate/internal/session/events"
	"sessiongate/internal/session/handler"
	"sessiongate/internal/session/repository"
	bboltstore "sessiongate/internal/session/repository/bbolt"
	"sessiongate/internal/session/repository/memory"
	pgstore "sessiongate/internal/session/repository/postgres"
	"sessiongate/internal/session/service"
	"sessiongate/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	providers, err := telemetry.NewProviders(ctx, cfg.OTLPEndpoint, "sessiongate", false)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	repo, closeRepo, err := newRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeRepo()

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("JWT_PRIVATE_KEY: %v", err)
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("JWT_PUBLIC_KEY: %v", err)
	}
	codec := security.NewCodec(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())

	publisher, closePublisher, err := newPublisher(cfg)
	if err != nil {
		log.Fatalf("publisher: %v", err)
	}
	defer closePublisher()

	sessions := service.NewService(repo, codec, publisher, cfg.RefreshTTL())
	router := handler.SetupRouter(sessions)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s (store: %s)", cfg.HTTPAddr, cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}

// newRepository builds the session store selected by STORE_BACKEND. The
// returned close function releases the backing resources.
func newRepository(ctx context.Context, cfg *config.Config) (repository.Repository, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		return memory.NewRepository(), func() {}, nil
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
		return nil, nil, errors.New("unknown store backend " + cfg.StoreBackend)
	}
}

// newPublisher builds the revocation event publisher. Publishing is disabled
// (nil Publisher) when REDIS_ADDR is unset.
func newPublisher(cfg *config.Config) (service.Publisher, func(), error) {
	if cfg.RedisAddr == "" {
		return nil, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pub, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: client},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	closeFn := func() {
		if err := pub.Close(); err != nil {
			log.Printf("publisher close: %v", err)
		}
		_ = client.Close()
	}
	return events.NewWatermillPublisher(pub), closeFn, nil
}
