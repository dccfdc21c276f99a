// SPDX-License-Identifier: MIT

// Package chunkstore persists opaque fMP4 segments keyed by recording and
// chunk index. Two backends exist behind one contract: a local filesystem
// store and an S3-compatible object store that can additionally issue
// presigned upload/download URLs.
package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// DefaultURLTTL is the presigned URL lifetime when the caller does not
// specify one.
const DefaultURLTTL = 3600 * time.Second

// ErrPresignNotSupported is returned by backends that cannot issue presigned
// URLs. The application core falls back to the proxy upload/download path.
var ErrPresignNotSupported = errors.New("presigned URLs not supported by this backend")

// Ref addresses all objects of one recording. RoomID is empty for standalone
// recordings and selects the key-layout arm.
type Ref struct {
	RecordingID string
	RoomID      string
}

// Prefix returns the object key prefix for every segment of the recording.
//
//	rooms/<roomId>/<recordingId>/   (room-scoped)
//	<recordingId>/                  (standalone)
func (r Ref) Prefix() string {
	if r.RoomID != "" {
		return fmt.Sprintf("rooms/%s/%s/", r.RoomID, r.RecordingID)
	}
	return r.RecordingID + "/"
}

// InitKey returns the object key of the init segment.
func (r Ref) InitKey() string {
	return r.Prefix() + "init.fmp4"
}

// ChunkKey returns the object key of chunk n.
func (r Ref) ChunkKey(n uint64) string {
	return fmt.Sprintf("%s%d.fmp4", r.Prefix(), n)
}

// OutputKey returns the key of a post-production artifact such as
// "output.mp4", "audio.m4a" or "subtitle.vtt".
func (r Ref) OutputKey(name string) string {
	return r.Prefix() + name
}

// ChunkURL pairs a presigned GET URL with its chunk index.
type ChunkURL struct {
	ChunkID uint64 `json:"chunkId"`
	URL     string `json:"url"`
}

// DownloadURLs is the ordered set of presigned GET URLs for one recording.
type DownloadURLs struct {
	InitSegment string
	Chunks      []ChunkURL
	M4A         string // empty when no extracted audio exists
	ExpiresIn   time.Duration
}

// Store is the chunk persistence contract shared by both backends. All
// writes are overwrite-permitted and idempotent; chunk payloads must be
// non-empty.
type Store interface {
	SaveInit(ctx context.Context, ref Ref, data []byte) error
	SaveChunk(ctx context.Context, ref Ref, n uint64, data []byte) error
	GetInit(ctx context.Context, ref Ref) ([]byte, error)
	GetChunk(ctx context.Context, ref Ref, n uint64) ([]byte, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte) error
	ObjectExists(ctx context.Context, key string) (bool, error)

	// ListChunkIDs returns the ascending, distinct chunk indices currently
	// stored. The init segment and non-numeric names are excluded.
	ListChunkIDs(ctx context.Context, ref Ref) ([]uint64, error)

	// DeleteAll removes every object under the recording prefix.
	DeleteAll(ctx context.Context, ref Ref) error

	// Assemble streams the init segment followed by every chunk in ascending
	// numeric order.
	Assemble(ctx context.Context, ref Ref, w io.Writer) error

	// SupportsPresign reports whether the presign methods are usable.
	SupportsPresign() bool

	PresignUploadInit(ctx context.Context, ref Ref, ttl time.Duration) (string, error)
	PresignUploadChunk(ctx context.Context, ref Ref, n uint64, ttl time.Duration) (string, error)
	PresignDownloads(ctx context.Context, ref Ref, ttl time.Duration) (DownloadURLs, error)
}
