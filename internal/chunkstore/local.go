// SPDX-License-Identifier: MIT

package chunkstore

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/henteko/maycast-recorder-sub002/internal/domain"
	"github.com/henteko/maycast-recorder-sub002/internal/log"
)

// Local is the filesystem-backed chunk store rooted at a single directory.
// Object keys map directly onto relative paths below the root. Writes go
// through renameio so concurrent overwrites of the same key are atomic.
type Local struct {
	root   string
	logger zerolog.Logger
}

var _ Store = (*Local)(nil)

// NewLocal creates the root directory if needed and returns the store.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, domain.ErrInvalidArgument{Field: "root", Reason: "storage path must not be empty"}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, domain.ErrStorageUnavailable{Op: "mkdir", Cause: err}
	}
	return &Local{
		root:   abs,
		logger: log.WithComponent("chunkstore.local"),
	}, nil
}

func (l *Local) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

func (l *Local) put(key string, data []byte) error {
	p := l.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return domain.ErrStorageUnavailable{Op: "mkdir", Cause: err}
	}
	if err := renameio.WriteFile(p, data, 0o600); err != nil {
		return domain.ErrStorageUnavailable{Op: "write", Cause: err}
	}
	return nil
}

func (l *Local) get(key string) ([]byte, error) {
	data, err := os.ReadFile(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNotFound{Kind: "chunk", ID: key}
	}
	if err != nil {
		return nil, domain.ErrStorageUnavailable{Op: "read", Cause: err}
	}
	return data, nil
}

// SaveInit stores the init segment, overwriting any previous one.
func (l *Local) SaveInit(_ context.Context, ref Ref, data []byte) error {
	if len(data) == 0 {
		return domain.ErrInvalidArgument{Field: "data", Reason: "init segment must not be empty"}
	}
	return l.put(ref.InitKey(), data)
}

// SaveChunk stores chunk n, overwriting any previous payload for the index.
func (l *Local) SaveChunk(_ context.Context, ref Ref, n uint64, data []byte) error {
	if len(data) == 0 {
		return domain.ErrInvalidArgument{Field: "data", Reason: "chunk must not be empty"}
	}
	return l.put(ref.ChunkKey(n), data)
}

func (l *Local) GetInit(_ context.Context, ref Ref) ([]byte, error) {
	return l.get(ref.InitKey())
}

func (l *Local) GetChunk(_ context.Context, ref Ref, n uint64) ([]byte, error) {
	return l.get(ref.ChunkKey(n))
}

func (l *Local) GetObject(_ context.Context, key string) ([]byte, error) {
	return l.get(key)
}

func (l *Local) PutObject(_ context.Context, key string, data []byte) error {
	if len(data) == 0 {
		return domain.ErrInvalidArgument{Field: "data", Reason: "object must not be empty"}
	}
	return l.put(key, data)
}

func (l *Local) ObjectExists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, domain.ErrStorageUnavailable{Op: "stat", Cause: err}
	}
	return true, nil
}

// ListChunkIDs scans the recording directory for "<N>.fmp4" entries. The init
// segment, non-.fmp4 files and non-numeric names are excluded.
func (l *Local) ListChunkIDs(_ context.Context, ref Ref) ([]uint64, error) {
	dir := filepath.Dir(l.path(ref.InitKey()))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []uint64{}, nil
	}
	if err != nil {
		return nil, domain.ErrStorageUnavailable{Op: "list", Cause: err}
	}

	ids := make([]uint64, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := parseChunkName(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// parseChunkName extracts the numeric chunk index from "<N>.fmp4".
func parseChunkName(name string) (uint64, bool) {
	base, ok := strings.CutSuffix(name, ".fmp4")
	if !ok || base == "init" {
		return 0, false
	}
	id, err := strconv.ParseUint(base, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// DeleteAll removes the recording directory and everything below it.
func (l *Local) DeleteAll(_ context.Context, ref Ref) error {
	dir := filepath.Dir(l.path(ref.InitKey()))
	if err := os.RemoveAll(dir); err != nil {
		return domain.ErrStorageUnavailable{Op: "delete", Cause: err}
	}
	l.logger.Debug().Str("recording_id", ref.RecordingID).Msg("deleted recording objects")
	return nil
}

// Assemble streams init followed by every chunk in ascending order.
func (l *Local) Assemble(ctx context.Context, ref Ref, w io.Writer) error {
	init, err := l.GetInit(ctx, ref)
	if err != nil {
		return err
	}
	if _, err := w.Write(init); err != nil {
		return err
	}

	ids, err := l.ListChunkIDs(ctx, ref)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := os.Open(l.path(ref.ChunkKey(id)))
		if err != nil {
			return domain.ErrStorageUnavailable{Op: "read", Cause: err}
		}
		_, err = io.Copy(w, f)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// SupportsPresign is false: clients must proxy uploads and downloads through
// the application server.
func (l *Local) SupportsPresign() bool { return false }

func (l *Local) PresignUploadInit(context.Context, Ref, time.Duration) (string, error) {
	return "", ErrPresignNotSupported
}

func (l *Local) PresignUploadChunk(context.Context, Ref, uint64, time.Duration) (string, error) {
	return "", ErrPresignNotSupported
}

func (l *Local) PresignDownloads(context.Context, Ref, time.Duration) (DownloadURLs, error) {
	return DownloadURLs{}, ErrPresignNotSupported
}
