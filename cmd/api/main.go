package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/app"
	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/config"
	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/gallery"
	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/generation"
	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/logging"
	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/stablediffusion"
	"github.com/illimit3/jiagu-ai-drawing-website-db/internal/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()
	log := logging.New(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer store.Close()

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise upload storage")
	}

	if cfg.StableDiffusionAPIKey == "" {
		log.Warn().Msg("STABLE_DIFFUSION_API_KEY is not set, generation requests will be rejected")
	}
	client := stablediffusion.NewClient(cfg.StableDiffusionURL, nil, log)
	proxy := generation.NewProxy(client, generation.Options{
		APIKey:       cfg.StableDiffusionAPIKey,
		AllowedHosts: cfg.FetchHostAllowlist,
		Timeout:      cfg.UpstreamTimeout,
	}, log)

	appInstance := app.New(cfg, gallery.NewService(store, blobs, log), proxy, log)
	defer appInstance.Close()

	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      appInstance.Router(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Address).Str("storage", cfg.StorageDriver).Msg("gallery API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
		}
		return
	case <-ctx.Done():
	}

	log.Info().Msg("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("shutdown completed")
}

func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (gallery.Store, error) {
	if cfg.DatabaseURL != "" {
		store, err := gallery.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("using postgres store")
		return store, nil
	}
	log.Warn().Str("snapshot", cfg.SnapshotPath).Msg("DATABASE_URL not set, using in-memory store")
	return gallery.NewMemoryStore(cfg.SnapshotPath)
}

func openBlobStore(ctx context.Context, cfg config.Config) (gallery.BlobStore, error) {
	if cfg.StorageDriver == "r2" {
		return storage.NewR2Store(ctx, storage.R2Options{
			Endpoint:        cfg.R2Endpoint,
			Bucket:          cfg.R2Bucket,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2SecretAccessKey,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
	}
	return storage.NewFileStore(cfg.UploadDir, "/uploads")
}
