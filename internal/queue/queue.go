// SPDX-License-Identifier: MIT

package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/henteko/maycast-recorder-sub002/internal/log"
)

// Enqueuer dispatches post-production jobs. The room transitions never fail
// because of queue problems: post-production is optional infrastructure.
type Enqueuer interface {
	EnqueueAudioExtraction(ctx context.Context, job AudioExtractionJob) error
	EnqueueTranscription(ctx context.Context, job TranscriptionJob) error
	Close() error
}

// Client is the Redis-backed Enqueuer.
type Client struct {
	client *asynq.Client
	logger zerolog.Logger
}

var _ Enqueuer = (*Client)(nil)

// NewClient pings Redis first so misconfiguration surfaces at startup, then
// constructs the asynq client.
func NewClient(ctx context.Context, addr string) (*Client, error) {
	probe := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	defer probe.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := probe.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}

	logger := log.WithComponent("queue")
	logger.Info().Str("addr", addr).Msg("connected to job-queue backend")

	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: addr}),
		logger: logger,
	}, nil
}

func (c *Client) EnqueueAudioExtraction(ctx context.Context, job AudioExtractionJob) error {
	task, err := NewAudioExtractionTask(job)
	if err != nil {
		return err
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return err
	}
	c.logger.Info().
		Str("task_id", info.ID).
		Str("room_id", job.RoomID).
		Int("recordings", len(job.RecordingIDs)).
		Msg("enqueued audio-extraction job")
	return nil
}

func (c *Client) EnqueueTranscription(ctx context.Context, job TranscriptionJob) error {
	task, err := NewTranscriptionTask(job)
	if err != nil {
		return err
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return err
	}
	c.logger.Info().
		Str("task_id", info.ID).
		Str("recording_id", job.RecordingID).
		Msg("enqueued transcription job")
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Disabled is the Enqueuer used when no Redis backend is configured. Every
// enqueue is skipped silently; the room still finishes.
type Disabled struct {
	logger zerolog.Logger
}

var _ Enqueuer = Disabled{}

// NewDisabled returns the no-op Enqueuer.
func NewDisabled() Disabled {
	return Disabled{logger: log.WithComponent("queue")}
}

func (d Disabled) EnqueueAudioExtraction(_ context.Context, job AudioExtractionJob) error {
	d.logger.Debug().Str("room_id", job.RoomID).Msg("no job queue configured, skipping audio-extraction job")
	return nil
}

func (d Disabled) EnqueueTranscription(_ context.Context, job TranscriptionJob) error {
	d.logger.Debug().Str("recording_id", job.RecordingID).Msg("no job queue configured, skipping transcription job")
	return nil
}

func (d Disabled) Close() error { return nil }
