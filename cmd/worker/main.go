// SPDX-License-Identifier: MIT

// Command worker consumes the post-production queues: it assembles uploaded
// fMP4 segments, extracts audio with ffmpeg and transcribes it to WebVTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/henteko/maycast-recorder-sub002/internal/chunkstore"
	"github.com/henteko/maycast-recorder-sub002/internal/config"
	"github.com/henteko/maycast-recorder-sub002/internal/log"
	"github.com/henteko/maycast-recorder-sub002/internal/queue"
	"github.com/henteko/maycast-recorder-sub002/internal/store"
	"github.com/henteko/maycast-recorder-sub002/internal/transcribe"
	"github.com/henteko/maycast-recorder-sub002/internal/worker"
)

func main() {
	if err := run(); err != nil {
		base := log.Base()
		base.Error().Err(err).Msg("worker exited with error")
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.Redis.Enabled() {
		return errors.New("REDIS_HOST is required for the worker")
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "maycast-worker"})
	logger := log.WithComponent("worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect metadata store: %w", err)
	}
	defer st.Close()

	chunks, err := newChunkStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init chunk store: %w", err)
	}

	ffmpeg, err := worker.NewFFmpeg()
	if err != nil {
		return err
	}

	enqueuer, err := queue.NewClient(ctx, cfg.Redis.Addr())
	if err != nil {
		return fmt.Errorf("connect job queue: %w", err)
	}
	defer enqueuer.Close()

	var transcription *worker.TranscriptionHandler
	provider, err := transcribe.FromConfig(cfg.Transcription)
	switch {
	case err == nil:
		logger.Info().Str("provider", provider.Name()).Msg("transcription enabled")
		transcription = worker.NewTranscriptionHandler(st, chunks, provider)
	case errors.Is(err, transcribe.ErrNotConfigured):
		logger.Warn().Msg("no transcription provider configured, transcription disabled")
	default:
		return fmt.Errorf("init transcription provider: %w", err)
	}

	extraction := worker.NewExtractionHandler(
		st, chunks, ffmpeg, enqueuer, cfg.Worker.TempDir, transcription != nil)

	srv := worker.NewServer(cfg.Redis.Addr(), cfg.Worker.Concurrency, extraction, transcription)

	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		srv.Shutdown()
	}()

	logger.Info().Int("concurrency", cfg.Worker.Concurrency).
		Str("storage", string(cfg.Storage.Backend)).
		Msg("worker consuming jobs")
	return srv.Run()
}

func newChunkStore(ctx context.Context, cfg config.StorageConfig) (chunkstore.Store, error) {
	switch cfg.Backend {
	case config.StorageS3:
		return chunkstore.NewS3(ctx, chunkstore.S3Options{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKeyID:    cfg.S3.AccessKeyID,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
	default:
		return chunkstore.NewLocal(cfg.Path)
	}
}
