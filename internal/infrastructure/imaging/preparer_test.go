package imaging_test

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travel-companion/internal/infrastructure/imaging"
)

func noise(w, h int) *image.RGBA {
	rng := rand.New(rand.NewPCG(1, 2))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.IntN(256)), uint8(rng.IntN(256)), uint8(rng.IntN(256)), 255})
		}
	}
	return img
}

func writeNoisyPNG(t *testing.T, w, h int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "screenshot.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, noise(w, h)))
	require.NoError(t, f.Close())
	return path
}

func writeNoisyJPEG(t *testing.T, w, h int) string {
	t.Helper()
	img := noise(w, h)
	path := filepath.Join(t.TempDir(), "photo.jpg")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 100}))
	require.NoError(t, f.Close())
	return path
}

func TestResizedPath(t *testing.T) {
	assert.Equal(t, "uploads/a_resized.jpg", imaging.ResizedPath("uploads/a.jpg"))
	assert.Equal(t, "noext_resized", imaging.ResizedPath("noext"))
}

func TestPrepareImage_UnderCapIsUnchanged(t *testing.T) {
	path := writeNoisyJPEG(t, 64, 64)
	p := imaging.NewPreparer(zerolog.Nop())

	out, err := p.PrepareImage(context.Background(), path, 10<<20)
	require.NoError(t, err)
	assert.Equal(t, path, out)

	again, err := p.PrepareImage(context.Background(), out, 10<<20)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestPrepareImage_ShrinksOversizedImage(t *testing.T) {
	path := writeNoisyJPEG(t, 800, 600)
	info, err := os.Stat(path)
	require.NoError(t, err)

	p := imaging.NewPreparer(zerolog.Nop())
	limit := info.Size() / 2
	out, err := p.PrepareImage(context.Background(), path, limit)
	require.NoError(t, err)
	assert.Equal(t, imaging.ResizedPath(path), out)

	resized, err := os.Stat(out)
	require.NoError(t, err)
	assert.LessOrEqual(t, resized.Size(), limit)

	again, err := p.PrepareImage(context.Background(), out, limit)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestPrepareImage_LosslessFormatDownscalesEveryStep(t *testing.T) {
	path := writeNoisyPNG(t, 800, 600)
	info, err := os.Stat(path)
	require.NoError(t, err)

	limit := info.Size() / 5
	out, err := imaging.NewPreparer(zerolog.Nop()).PrepareImage(context.Background(), path, limit)
	require.NoError(t, err)
	assert.Equal(t, imaging.ResizedPath(path), out)

	resized, err := os.Stat(out)
	require.NoError(t, err)
	assert.LessOrEqual(t, resized.Size(), limit)
}

func TestPrepareImage_UnreachableCapTerminates(t *testing.T) {
	path := writeNoisyJPEG(t, 640, 480)
	p := imaging.NewPreparer(zerolog.Nop())

	out, err := p.PrepareImage(context.Background(), path, 1)
	require.NoError(t, err)
	assert.Equal(t, imaging.ResizedPath(path), out)
	assert.FileExists(t, out)
}

func TestPrepareImage_UndecodableReturnsInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a jpeg, just some bytes"), 0o644))

	out, err := imaging.NewPreparer(zerolog.Nop()).PrepareImage(context.Background(), path, 4)
	require.NoError(t, err)
	assert.Equal(t, path, out)
}

func TestPrepareImage_MissingFile(t *testing.T) {
	_, err := imaging.NewPreparer(zerolog.Nop()).PrepareImage(context.Background(), "/nonexistent/x.jpg", 10)
	assert.Error(t, err)
}
