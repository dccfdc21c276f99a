// SPDX-License-Identifier: MIT

package worker

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/henteko/maycast-recorder-sub002/internal/log"
	"github.com/henteko/maycast-recorder-sub002/internal/queue"
)

// Server consumes the post-production queues. Audio extraction gets twice the
// weight of transcription so finished rooms surface quickly.
type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

// NewServer builds the queue consumer. transcription may be nil when no
// provider is configured; the transcription queue then has no handler and
// those jobs stay pending.
func NewServer(redisAddr string, concurrency int, extraction *ExtractionHandler, transcription *TranscriptionHandler) *Server {
	logger := log.WithComponent("worker")

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				queue.QueueAudioExtraction: 2,
				queue.QueueTranscription:   1,
			},
			RetryDelayFunc: queue.RetryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
				logger.Error().Err(err).Str("type", task.Type()).Msg("job failed")
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeAudioExtraction, func(ctx context.Context, t *asynq.Task) error {
		return extraction.Handle(ctx, t.Payload())
	})
	if transcription != nil {
		mux.HandleFunc(queue.TypeTranscription, func(ctx context.Context, t *asynq.Task) error {
			return transcription.Handle(ctx, t.Payload())
		})
	}

	return &Server{srv: srv, mux: mux}
}

// Run blocks until Shutdown.
func (s *Server) Run() error {
	return s.srv.Run(s.mux)
}

// Shutdown drains in-flight jobs and stops the consumer.
func (s *Server) Shutdown() {
	s.srv.Shutdown()
}
