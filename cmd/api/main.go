package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/bryanwahyu/automaton-evidence/internal/application"
	appevaluation "github.com/bryanwahyu/automaton-evidence/internal/application/evaluation"
	appevidence "github.com/bryanwahyu/automaton-evidence/internal/application/evidence"
	"github.com/bryanwahyu/automaton-evidence/internal/config"
	domain "github.com/bryanwahyu/automaton-evidence/internal/domain/evidence"
	"github.com/bryanwahyu/automaton-evidence/internal/infra/backend"
	"github.com/bryanwahyu/automaton-evidence/internal/infra/crypto"
	"github.com/bryanwahyu/automaton-evidence/internal/infra/db"
	"github.com/bryanwahyu/automaton-evidence/internal/infra/httpserver"
	"github.com/bryanwahyu/automaton-evidence/internal/infra/storage"
	"github.com/bryanwahyu/automaton-evidence/internal/logging"
	"github.com/bryanwahyu/automaton-evidence/internal/middleware"
)

type blobStore interface {
	domain.BlobStore
	middleware.HealthChecker
}

func main() {
	// load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	flush, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging init error: %v\n", err)
		os.Exit(1)
	}
	defer flush()

	if err := run(cfg); err != nil {
		zap.L().Error("server exited", zap.Error(err))
		flush()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	ctx := context.Background()

	// connect database
	store, err := db.Open(ctx, cfg.Database.Driver, cfg.DSN())
	if err != nil {
		return err
	}
	defer store.Close()

	// init blob store
	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return err
	}

	codec, err := crypto.NewCodec(cfg.Crypto.URLSecret, cfg.Crypto.PreviousSecrets...)
	if err != nil {
		return fmt.Errorf("url codec: %w", err)
	}

	evaluator := backend.NewClient(cfg.Backend.BaseURL, codec,
		backend.WithTimeouts(cfg.Backend.ContextTimeout, cfg.Backend.EvaluateTimeout))

	// init services
	files := &appevidence.Service{
		Repo:          store.Evidence,
		Blobs:         blobs,
		URLs:          codec,
		Clock:         application.SystemClock{},
		KeyScheme:     domain.KeyScheme(cfg.Upload.KeyScheme),
		MaxBytes:      cfg.Upload.MaxBytes,
		RejectSecrets: cfg.Upload.RejectSecrets,
	}
	evals := &appevaluation.Service{
		Files:            files,
		Evaluator:        evaluator,
		Runs:             store.Runs,
		Clock:            application.SystemClock{},
		DefaultThreshold: &cfg.Backend.DefaultThreshold,
		DefaultFileType:  cfg.Backend.DefaultFileType,
	}

	// init router
	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	mux.Mount("/", httpserver.NewRouter(httpserver.Deps{
		Files:       files,
		Evaluations: evals,
		Auth:        middleware.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Health: map[string]middleware.HealthChecker{
			"database": store,
			"blobs":    blobs,
		},
		MaxBodyBytes: cfg.MaxRequestBytes(),
		MaxFiles:     cfg.Upload.MaxFiles,
		RateCapacity: cfg.RateLimit.Capacity,
		RateRefill:   cfg.RateLimit.RefillRate,
	}))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		// evaluate-all waits on the slowest backend call
		WriteTimeout: cfg.Backend.EvaluateTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server listening",
			zap.String("addr", addr),
			zap.String("db", store.Driver),
			zap.String("blobs", cfg.Blob.Driver),
			zap.String("backend", cfg.Backend.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}
	zap.L().Info("shutting down server")

	ctx2, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openBlobs(ctx context.Context, cfg *config.Config) (blobStore, error) {
	switch cfg.Blob.Driver {
	case "minio":
		s, err := storage.New(ctx, storage.Options{
			Endpoint:   cfg.Minio.Endpoint,
			Region:     cfg.Minio.Region,
			Bucket:     cfg.Minio.BucketName,
			AccessKey:  cfg.Minio.AccessKey,
			SecretKey:  cfg.Minio.SecretKey,
			UseSSL:     cfg.Minio.UseSSL,
			PresignTTL: cfg.Minio.PresignTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("minio init: %w", err)
		}
		return s, nil
	default:
		s, err := storage.NewFSStore(cfg.Blob.BasePath)
		if err != nil {
			return nil, fmt.Errorf("fs blob store: %w", err)
		}
		return s, nil
	}
}
