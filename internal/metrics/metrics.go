// SPDX-License-Identifier: MIT

// Package metrics provides Prometheus metrics for the recording platform.
// Labels stay low-cardinality: no room, recording or guest ids.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration observes request latency by method, route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maycast_http_request_duration_seconds",
		Help:    "HTTP request latency, by method, route pattern and status class.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// ChunkUploadTotal counts chunk ingests by outcome.
	ChunkUploadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maycast_chunk_upload_total",
		Help: "Total number of chunk upload requests, by outcome.",
	}, []string{"outcome"})

	// ChunkUploadBytes counts ingested payload bytes.
	ChunkUploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maycast_chunk_upload_bytes_total",
		Help: "Total number of chunk payload bytes accepted.",
	})

	// WSEventTotal counts WebSocket events by event name and direction.
	WSEventTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maycast_ws_event_total",
		Help: "Total number of WebSocket events, by event name and direction.",
	}, []string{"event", "direction"})

	// WSConnections gauges currently open WebSocket connections.
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "maycast_ws_connections",
		Help: "Currently open WebSocket connections.",
	})

	// WSDroppedBroadcasts counts broadcasts dropped on backpressure.
	WSDroppedBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maycast_ws_dropped_broadcasts_total",
		Help: "Broadcast messages dropped because a connection send queue was full.",
	})

	// JobTotal counts worker job executions by queue and outcome.
	JobTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maycast_job_total",
		Help: "Total number of processed jobs, by queue and outcome.",
	}, []string{"queue", "outcome"})

	// JobDuration observes job processing time by queue.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maycast_job_duration_seconds",
		Help:    "Job processing time, by queue.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"queue"})

	// RoomTransitionTotal counts room state transitions by target state.
	RoomTransitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maycast_room_transition_total",
		Help: "Total number of room state transitions, by target state.",
	}, []string{"to"})
)
