// SPDX-License-Identifier: MIT

// Command server runs the recording platform API: room and recording
// management over HTTP plus the realtime WebSocket fabric.
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

	"github.com/joho/godotenv"

	"github.com/henteko/maycast-recorder-sub002/internal/api"
	"github.com/henteko/maycast-recorder-sub002/internal/chunkstore"
	"github.com/henteko/maycast-recorder-sub002/internal/config"
	"github.com/henteko/maycast-recorder-sub002/internal/log"
	"github.com/henteko/maycast-recorder-sub002/internal/queue"
	"github.com/henteko/maycast-recorder-sub002/internal/realtime"
	"github.com/henteko/maycast-recorder-sub002/internal/service"
	"github.com/henteko/maycast-recorder-sub002/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		base := log.Base()
		base.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "maycast-server"})
	logger := log.WithComponent("server")

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

	var enqueuer queue.Enqueuer
	if cfg.Redis.Enabled() {
		client, err := queue.NewClient(ctx, cfg.Redis.Addr())
		if err != nil {
			return fmt.Errorf("connect job queue: %w", err)
		}
		enqueuer = client
	} else {
		logger.Warn().Msg("REDIS_HOST not set, post-production jobs disabled")
		enqueuer = queue.NewDisabled()
	}
	defer enqueuer.Close()

	// The coordinator callbacks need the rooms service and the rooms service
	// needs the coordinator, so the callbacks close over a late-bound pointer.
	hub := realtime.NewHub()
	var rooms *service.Rooms
	coord := realtime.NewCoordinator(hub, realtime.Callbacks{
		AllSynced: func(ctx context.Context, roomID string) {
			rooms.HandleAllSynced(ctx, roomID)
		},
		RecordingLinked: func(ctx context.Context, roomID, recordingID, guestName string) {
			rooms.HandleRecordingLinked(ctx, roomID, recordingID, guestName)
		},
	})
	rooms = service.NewRooms(st, coord, hub, enqueuer)
	recordings := service.NewRecordings(st, chunks)

	wsHandler := realtime.NewHandler(coord, hub, originPatterns(cfg.CORSOrigin))
	server := api.NewServer(rooms, recordings, wsHandler, cfg.CORSOrigin)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Port).
			Str("storage", string(cfg.Storage.Backend)).
			Bool("queue", cfg.Redis.Enabled()).
			Msg("server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
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

func originPatterns(corsOrigin string) []string {
	if corsOrigin == "" || corsOrigin == "*" {
		return []string{"*"}
	}
	return []string{corsOrigin}
}
