// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"slices"
	"sync"

	"github.com/henteko/maycast-recorder-sub002/internal/queue"
)

// fakeBroadcaster records broadcast events per room.
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
	data   map[string]any
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{data: make(map[string]any)}
}

func (b *fakeBroadcaster) Broadcast(_, event string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	b.data[event] = data
}

func (b *fakeBroadcaster) has(event string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Contains(b.events, event)
}

// fakeQueue records enqueued jobs.
type fakeQueue struct {
	mu          sync.Mutex
	extraction  []queue.AudioExtractionJob
	failEnqueue bool
}

func (q *fakeQueue) EnqueueAudioExtraction(_ context.Context, job queue.AudioExtractionJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failEnqueue {
		return context.DeadlineExceeded
	}
	q.extraction = append(q.extraction, job)
	return nil
}

func (q *fakeQueue) EnqueueTranscription(context.Context, queue.TranscriptionJob) error {
	return nil
}

func (q *fakeQueue) Close() error { return nil }

// fakePresence stubs the coordinator.
type fakePresence struct {
	mu         sync.Mutex
	allSynced  bool
	resetCount int
}

func (p *fakePresence) AllSynced(string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allSynced
}

func (p *fakePresence) ResetSyncLatch(string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetCount++
}
