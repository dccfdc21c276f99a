// SPDX-License-Identifier: MIT

package worker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// ffmpegTimeout bounds a single extraction run.
const ffmpegTimeout = 5 * time.Minute

// FFmpeg shells out to the ffmpeg binary for audio extraction. The audio
// stream is copied, never re-encoded.
type FFmpeg struct {
	binary string
}

var _ Extractor = (*FFmpeg)(nil)

// NewFFmpeg resolves the ffmpeg binary on PATH.
func NewFFmpeg() (*FFmpeg, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found on PATH: %w", err)
	}
	return &FFmpeg{binary: path}, nil
}

// ExtractAudio writes the audio track of inputPath to outputPath.
func (f *FFmpeg) ExtractAudio(ctx context.Context, inputPath, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, ffmpegTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.binary,
		"-y",
		"-i", inputPath,
		"-vn",
		"-acodec", "copy",
		outputPath,
	)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("ffmpeg timed out after %s", ffmpegTimeout)
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, truncate(stderr.String(), 512))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
