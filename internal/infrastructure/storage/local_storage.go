// Package storage persists uploaded media and synthesized replies.
package storage

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"travel-companion/internal/config"
)

// Kind classifies stored media.
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
	KindOther Kind = "other"
)

// Stored describes a file written to the upload folder.
type Stored struct {
	Path     string
	Name     string
	Original string
	MIME     string
	Kind     Kind
	Size     int64
}

// Archiver copies a finished file to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, path, contentType string) error
}

var (
	entropyOnce sync.Once
	entropyMu   sync.Mutex
	entropy     *ulid.MonotonicEntropy
)

func newID(now time.Time) string {
	entropyOnce.Do(func() {
		source := rand.NewSource(time.Now().UnixNano())
		entropy = ulid.Monotonic(rand.New(source), 0)
	})
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(now), entropy).String())
}

// KindOf maps a MIME type, or a file extension when the type is generic, to
// a media kind.
func KindOf(mime, name string) Kind {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.HasPrefix(mime, "audio/"), strings.HasPrefix(mime, "video/"):
		return KindAudio
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".heic":
		return KindImage
	case ".mp3", ".wav", ".ogg", ".m4a", ".aac", ".amr", ".3gp", ".caf", ".webm", ".flac":
		return KindAudio
	}
	return KindOther
}

// LocalStorage writes uploads into a folder under unique names and forwards
// them to an optional archiver.
type LocalStorage struct {
	basePath string
	archiver Archiver
	now      func() time.Time
	log      zerolog.Logger
}

// NewLocalStorage creates the upload folder if needed.
func NewLocalStorage(basePath string, archiver Archiver, log zerolog.Logger) (*LocalStorage, error) {
	logger := log.With().Str("component", "local-storage").Logger()
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		basePath = "uploads"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create upload folder: %w", err)
	}
	logger.Info().Str("path", basePath).Bool("archive", archiver != nil).Msg("local storage initialized")
	return &LocalStorage{basePath: basePath, archiver: archiver, now: time.Now, log: logger}, nil
}

// NewLocalStorageFromConfig wires the upload folder and the archive backend.
func NewLocalStorageFromConfig(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*LocalStorage, error) {
	var archiver Archiver
	if strings.EqualFold(cfg.StorageBackend, "s3") {
		s3, err := NewS3Archive(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		archiver = s3
	}
	return NewLocalStorage(cfg.UploadFolder, archiver, log)
}

// Save writes body as <prefix>_<id><ext>. The extension comes from the
// original name, or from the sniffed content when the name has none.
func (l *LocalStorage) Save(ctx context.Context, prefix, originalName string, body io.Reader) (*Stored, error) {
	id := newID(l.now())
	tmp, err := os.CreateTemp(l.basePath, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	tmpPath := tmp.Name()
	written, err := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("write upload file: %w", err)
	}

	mt, err := mimetype.DetectFile(tmpPath)
	mimeType := "application/octet-stream"
	if err == nil {
		mimeType = mt.String()
	}

	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	if ext == "" && mt != nil {
		ext = mt.Extension()
	}
	name := fmt.Sprintf("%s_%s%s", prefix, id, ext)
	finalPath := filepath.Join(l.basePath, name)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("rename upload file: %w", err)
	}

	stored := &Stored{
		Path:     finalPath,
		Name:     name,
		Original: originalName,
		MIME:     mimeType,
		Kind:     KindOf(mimeType, name),
		Size:     written,
	}
	l.log.Debug().
		Str("path", finalPath).
		Str("original", originalName).
		Str("mime", mimeType).
		Int64("bytes", written).
		Msg("upload stored")

	l.Archive(ctx, finalPath)
	return stored, nil
}

// Archive forwards a finished file to the archiver. Failures are logged and
// never reach the caller.
func (l *LocalStorage) Archive(ctx context.Context, path string) {
	if l.archiver == nil || path == "" {
		return
	}
	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(path); err == nil {
		contentType = mt.String()
	}
	if err := l.archiver.Archive(ctx, path, contentType); err != nil {
		l.log.Warn().Err(err).Str("path", path).Msg("archive upload failed")
	}
}

// Path returns the folder uploads are written to.
func (l *LocalStorage) Path() string {
	return l.basePath
}
