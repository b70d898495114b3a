package extractor

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"image-compressor-go/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	img.Set(1, 1, color.RGBA{G: 200, A: 255})
	return img
}

func TestInspect_PNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))

	info, err := NewEXIFExtractor(logger.Discard()).Inspect(buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, "png", info.Format)
	assert.Equal(t, 40, info.Width)
	assert.Equal(t, 30, info.Height)
	assert.False(t, info.HasEXIF())
}

func TestInspect_JPEGWithoutEXIF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(), nil))

	info, err := NewEXIFExtractor(logger.Discard()).Inspect(buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, "jpeg", info.Format)
	assert.Nil(t, info.TakenAt)
}

func TestInspect_Garbage(t *testing.T) {
	_, err := NewEXIFExtractor(logger.Discard()).Inspect([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestParseEXIFDateTime(t *testing.T) {
	d := parseEXIFDateTime("2024:12:25 15:30:45")
	require.NotNil(t, d)
	assert.Equal(t, 2024, d.Year())
	assert.Equal(t, 15, d.Hour())

	assert.Nil(t, parseEXIFDateTime(""))
	assert.Nil(t, parseEXIFDateTime("yesterday"))
}

func TestInspectFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.png")
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	report, err := InspectFile(path, logger.Discard())
	require.NoError(t, err)

	assert.Equal(t, int64(buf.Len()), report.Size)
	assert.Equal(t, 40, report.Info.Width)
}
