package compressor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"image-compressor-go/internal/config"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputName(t *testing.T) {
	tests := map[string]string{
		"photo.png":      "photo_ai.png",
		"cat.jpg":        "cat_ai.jpg",
		"archive.tar.gz": "archive.tar_ai.gz",
		"noext":          "noext_ai",
		".hidden":        ".hidden_ai",
	}
	for in, want := range tests {
		assert.Equal(t, want, OutputName(in, "_ai"), in)
	}
}

func TestReduction(t *testing.T) {
	assert.InDelta(t, 65.0, Reduction(2_000_000, 700_000), 1e-9)
	assert.Equal(t, 0.0, Reduction(0, 10))
	assert.Equal(t, 0.0, Reduction(100, 100))
}

func TestSimulatedSize(t *testing.T) {
	assert.Equal(t, int64(700_000), SimulatedSize(2_000_000, 0.7))
	assert.Equal(t, int64(1024), SimulatedSize(4000, 0.1))
	assert.Equal(t, int64(999), SimulatedSize(1000, 0.7), "clamped below original")
	assert.Equal(t, int64(0), SimulatedSize(1, 1))

	for _, size := range []int64{2, 1023, 1024, 1025, 5000, 20 << 20} {
		for q := 10; q <= 100; q += 15 {
			got := SimulatedSize(size, float64(q)/100)
			assert.Less(t, got, size)
			bound := max(int64(1024), int64(float64(size)*float64(q)/100*0.5+1e-6))
			assert.LessOrEqual(t, got, bound)
		}
	}
}

func TestSimulated_Compress(t *testing.T) {
	c := NewSimulated(0, 0, time.Millisecond)
	src := Source{Name: "cat.jpg", MIMEType: "image/jpeg", Data: make([]byte, 2_000_000)}

	var mu sync.Mutex
	var last float64
	out, err := c.Compress(context.Background(), src, Options{
		Quality: 0.7,
		Progress: func(f float64) {
			mu.Lock()
			last = f
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(700_000), out.Size())
	assert.Equal(t, "image/jpeg", out.MIMEType)
	assert.Equal(t, ActionSimulated, out.Action)
	assert.Equal(t, 1.0, last)
}

func TestSimulated_ReportsProgressWhileWaiting(t *testing.T) {
	c := NewSimulated(30*time.Millisecond, 0, 5*time.Millisecond)
	src := Source{Name: "a.png", MIMEType: "image/png", Data: make([]byte, 4096)}

	var mu sync.Mutex
	var calls int
	_, err := c.Compress(context.Background(), src, Options{Quality: 0.5, Progress: func(float64) {
		mu.Lock()
		calls++
		mu.Unlock()
	}})
	require.NoError(t, err)
	assert.Greater(t, calls, 1)
}

func TestSimulated_Canceled(t *testing.T) {
	c := NewSimulated(time.Second, 0, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Compress(ctx, Source{Data: []byte{1, 2, 3}}, Options{Quality: 0.7})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidateOptions(t *testing.T) {
	c := NewSimulated(0, 0, 0)

	_, err := c.Compress(context.Background(), Source{}, Options{Quality: 0.7})
	assert.ErrorIs(t, err, ErrEmptySource)

	_, err = c.Compress(context.Background(), Source{Data: []byte{1}}, Options{Quality: 1.5})
	assert.ErrorIs(t, err, ErrInvalidQuality)
}

func noisyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 13), B: uint8((x ^ y) * 3), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h, quality int) []byte {
	t.Helper()
	img, err := imaging.Decode(bytes.NewReader(noisyPNG(t, w, h)))
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)))
	return buf.Bytes()
}

func TestImaging_CompressJPEG(t *testing.T) {
	data := jpegBytes(t, 128, 128, 100)
	c := NewImaging()

	out, err := c.Compress(context.Background(), Source{Name: "x.jpg", MIMEType: "image/jpeg", Data: data}, Options{Quality: 0.3})
	require.NoError(t, err)

	assert.Equal(t, ActionCompressed, out.Action)
	assert.Less(t, out.Size(), int64(len(data)))
	_, format, err := image.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestImaging_KeepsOriginalWhenNotSmaller(t *testing.T) {
	data := jpegBytes(t, 32, 32, 10)
	c := NewImaging()

	out, err := c.Compress(context.Background(), Source{Name: "x.jpg", MIMEType: "image/jpeg", Data: data}, Options{Quality: 1})
	require.NoError(t, err)

	assert.Equal(t, ActionOriginal, out.Action)
	assert.Equal(t, data, out.Data)
}

func TestImaging_Errors(t *testing.T) {
	c := NewImaging()

	_, err := c.Compress(context.Background(), Source{Name: "x.webp", MIMEType: "image/webp", Data: []byte("RIFF")}, Options{Quality: 0.7})
	assert.ErrorIs(t, err, ErrFormatNotEncodable)

	_, err = c.Compress(context.Background(), Source{Name: "x.png", MIMEType: "image/png", Data: []byte("not a png")}, Options{Quality: 0.7})
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	cfg := config.DefaultConfig().Compressor

	cfg.Backend = "simulated"
	c, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "simulated", c.Name())

	cfg.Backend = "auto"
	c, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "imaging+simulated", c.Name())

	cfg.Backend = "magic"
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestCompressFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), noisyPNG(t, 64, 64), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.jpg"), jpegBytes(t, 64, 64, 95), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0644))
	outDir := filepath.Join(dir, "out")

	results, err := CompressFiles(context.Background(), NewSimulated(0, 0, 0), BatchParams{
		InputPaths: []string{dir},
		TargetDir:  outDir,
		Quality:    70,
		Marker:     "_ai",
		Formats:    []string{"png", ".jpg"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, r := range results {
		assert.True(t, r.Success, r.Message)
		assert.FileExists(t, r.OutputPath)
		assert.Less(t, r.CompressedSize, r.OriginalSize)
	}
	assert.FileExists(t, filepath.Join(outDir, "a_ai.png"))
	assert.FileExists(t, filepath.Join(outDir, "b_ai.jpg"))
}

func TestCompressFiles_KeepsExistingOutputs(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "cat.jpg")
	require.NoError(t, os.WriteFile(input, jpegBytes(t, 32, 32, 95), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cat_ai.jpg"), []byte("previous run"), 0644))

	params := BatchParams{InputPaths: []string{input}, Quality: 70, Marker: "_ai"}
	results, err := CompressFiles(context.Background(), NewSimulated(0, 0, 0), params)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, filepath.Join(dir, "cat_ai_1.jpg"), results[0].OutputPath)

	params.Overwrite = true
	results, err = CompressFiles(context.Background(), NewSimulated(0, 0, 0), params)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cat_ai.jpg"), results[0].OutputPath)

	previous, err := os.ReadFile(filepath.Join(dir, "cat_ai.jpg"))
	require.NoError(t, err)
	assert.NotEqual(t, "previous run", string(previous))
}

func TestFallback_RoutesByFormat(t *testing.T) {
	c := NewFallback(NewImaging(), NewSimulated(0, 0, 0))

	webp := Source{Name: "pic.webp", MIMEType: "image/webp", Data: append([]byte("RIFF\x00\x00\x00\x00WEBPVP8 "), make([]byte, 4096)...)}
	out, err := c.Compress(context.Background(), webp, Options{Quality: 0.7})
	require.NoError(t, err)
	assert.Equal(t, ActionSimulated, out.Action)
	assert.Equal(t, "image/webp", out.MIMEType)
	assert.Less(t, out.Size(), webp.Size())

	jpeg := Source{Name: "cat.jpg", MIMEType: "image/jpeg", Data: jpegBytes(t, 128, 128, 100)}
	out, err = c.Compress(context.Background(), jpeg, Options{Quality: 0.5})
	require.NoError(t, err)
	assert.Equal(t, ActionCompressed, out.Action)

	assert.True(t, CanEncode("image/png"))
	assert.False(t, CanEncode("image/webp"))
}
