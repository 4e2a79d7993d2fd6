// Package audio converts uploaded voice clips into a format the transcriber
// accepts.
package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"travel-companion/internal/config"
	"travel-companion/internal/domain/media"
	"travel-companion/internal/infrastructure/metrics"
)

// Transcoder shells out to ffmpeg for containers the transcriber rejects.
type Transcoder struct {
	ffmpeg    string
	transcode map[string]bool
	bitrate   string
	log       zerolog.Logger
}

// NewTranscoder creates a transcoder for the given extensions.
func NewTranscoder(ffmpegPath string, exts []string, log zerolog.Logger) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	set := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return &Transcoder{
		ffmpeg:    ffmpegPath,
		transcode: set,
		bitrate:   "320k",
		log:       log.With().Str("component", "audio-transcoder").Logger(),
	}
}

// NewTranscoderFromConfig reads the ffmpeg path and extension set.
func NewTranscoderFromConfig(cfg *config.Config, log zerolog.Logger) *Transcoder {
	return NewTranscoder(cfg.FFmpegPath, cfg.AudioTranscodeExts, log)
}

// PrepareAudio returns an mp3 copy of clips in the transcode set and the
// input path for everything else. Missing files and ffmpeg failures return
// media.ErrUnusableAudio.
func (t *Transcoder) PrepareAudio(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		metrics.RecordMediaPreprocess("audio", "missing")
		return "", fmt.Errorf("%w: %v", media.ErrUnusableAudio, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !t.transcode[ext] {
		metrics.RecordMediaPreprocess("audio", "passthrough")
		return path, nil
	}

	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".mp3"
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.ffmpeg,
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", path,
		"-vn", "-codec:a", "libmp3lame", "-b:a", t.bitrate,
		out,
	)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.log.Warn().Err(err).Str("path", path).Str("stderr", strings.TrimSpace(stderr.String())).Msg("ffmpeg transcode failed")
		metrics.RecordMediaPreprocess("audio", "transcode_error")
		return "", fmt.Errorf("%w: ffmpeg: %v", media.ErrUnusableAudio, err)
	}
	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		metrics.RecordMediaPreprocess("audio", "transcode_error")
		return "", fmt.Errorf("%w: ffmpeg produced no output", media.ErrUnusableAudio)
	}

	t.log.Debug().Str("from", path).Str("to", out).Msg("audio transcoded")
	metrics.RecordMediaPreprocess("audio", "transcoded")
	return out, nil
}
