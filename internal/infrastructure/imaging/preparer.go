// Package imaging shrinks uploaded photos under the generation size cap.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"travel-companion/internal/infrastructure/metrics"
)

const (
	startQuality    = 85
	qualityStep     = 10
	minQuality      = 40
	resetQuality    = 75
	floorQuality    = 20
	minWidth        = 300
	scaleFactor     = 0.8
	maxIterations   = 10
	eagerScaleRatio = 1.5
)

// Preparer re-encodes images until they fit under a byte cap.
type Preparer struct {
	log zerolog.Logger
}

// NewPreparer creates an image preparer.
func NewPreparer(log zerolog.Logger) *Preparer {
	return &Preparer{log: log.With().Str("component", "image-preparer").Logger()}
}

// ResizedPath returns the output path used for a shrunk copy of path.
func ResizedPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_resized" + ext
}

// PrepareImage returns path unchanged when the file is already under
// maxBytes. Otherwise it lowers JPEG quality step by step, downscaling once
// quality drops too far, and writes the best result it reached. Lossless
// formats ignore quality, so every step downscales them. Decode failures
// return the input path.
func (p *Preparer) PrepareImage(ctx context.Context, path string, maxBytes int64) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat image: %w", err)
	}
	if maxBytes <= 0 || info.Size() <= maxBytes {
		metrics.RecordMediaPreprocess("image", "passthrough")
		return path, nil
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		p.log.Warn().Err(err).Str("path", path).Msg("cannot decode image, using original")
		metrics.RecordMediaPreprocess("image", "decode_error")
		return path, nil
	}

	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		format = imaging.JPEG
	}
	lossy := format == imaging.JPEG

	current := img
	if float64(info.Size()) > float64(maxBytes)*eagerScaleRatio {
		current = scale(current)
	}

	quality := startQuality
	var encoded []byte
	for i := 0; i < maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		encoded, err = encode(current, format, quality)
		if err != nil {
			p.log.Warn().Err(err).Str("path", path).Msg("cannot encode image, using original")
			metrics.RecordMediaPreprocess("image", "encode_error")
			return path, nil
		}
		p.log.Debug().
			Int("iteration", i+1).
			Int("width", current.Bounds().Dx()).
			Int("quality", quality).
			Int("bytes", len(encoded)).
			Msg("image re-encoded")
		if int64(len(encoded)) <= maxBytes {
			break
		}

		if lossy {
			quality -= qualityStep
		}
		if !lossy || quality < minQuality {
			current = scale(current)
			quality = resetQuality
		}
		if current.Bounds().Dx() < minWidth || quality < floorQuality {
			p.log.Warn().Int("bytes", len(encoded)).Msg("image reached minimum size, keeping best effort")
			break
		}
	}

	out := ResizedPath(path)
	if err := os.WriteFile(out, encoded, 0o644); err != nil {
		return "", fmt.Errorf("write resized image: %w", err)
	}
	p.log.Info().
		Int64("from_bytes", info.Size()).
		Int("to_bytes", len(encoded)).
		Str("path", out).
		Msg("image resized")
	metrics.RecordMediaPreprocess("image", "resized")
	return out, nil
}

func scale(img image.Image) image.Image {
	b := img.Bounds()
	w := int(float64(b.Dx()) * scaleFactor)
	h := int(float64(b.Dy()) * scaleFactor)
	if w < 1 || h < 1 {
		return img
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

func encode(img image.Image, format imaging.Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	err := imaging.Encode(&buf, img, format,
		imaging.JPEGQuality(quality),
		imaging.PNGCompressionLevel(png.BestCompression),
	)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
