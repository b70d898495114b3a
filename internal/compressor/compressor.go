package compressor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"image-compressor-go/internal/config"
)

var (
	// ErrEmptySource is returned when there is nothing to compress.
	ErrEmptySource = errors.New("source image is empty")
	// ErrInvalidQuality is returned when the quality fraction is outside (0, 1].
	ErrInvalidQuality = errors.New("quality must be within (0, 1]")
	// ErrFormatNotEncodable is returned when the source format can be read but not written back.
	ErrFormatNotEncodable = errors.New("format cannot be re-encoded")
)

// Action values reported in Output.Action.
const (
	ActionCompressed = "compressed"
	ActionOriginal   = "original"
	ActionSimulated  = "simulated"
)

// Source is the file-like input handed to a Compressor.
type Source struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Size returns the source size in bytes.
func (s Source) Size() int64 {
	return int64(len(s.Data))
}

// ProgressFunc receives a best-effort completion fraction in [0, 1].
type ProgressFunc func(fraction float64)

// Options parameterizes a single compression.
type Options struct {
	// Quality is a fraction in (0, 1].
	Quality  float64
	Progress ProgressFunc
}

// Output is the file-like result of a compression.
type Output struct {
	MIMEType string
	Data     []byte
	Action   string
}

// Size returns the output size in bytes.
func (o *Output) Size() int64 {
	return int64(len(o.Data))
}

// Compressor is the image compression capability. Compress either returns an
// output or an error, never both.
type Compressor interface {
	Compress(ctx context.Context, src Source, opts Options) (*Output, error)
	Name() string
}

// New selects a Compressor for the configured backend. "auto" probes the
// imaging encoder and falls back to the simulated stand-in if it is unusable;
// when usable, formats it cannot write still go to the stand-in.
func New(cfg config.CompressorConfig) (Compressor, error) {
	simulated := func() Compressor {
		return NewSimulated(cfg.SimulatedDelay, cfg.SimulatedJitter, cfg.ProgressEvery)
	}

	switch strings.ToLower(cfg.Backend) {
	case "imaging":
		return NewImaging(), nil
	case "simulated":
		return simulated(), nil
	case "", "auto":
		if err := probeImaging(); err != nil {
			return simulated(), nil
		}
		return NewFallback(NewImaging(), simulated()), nil
	default:
		return nil, fmt.Errorf("unknown compressor backend %q", cfg.Backend)
	}
}

// OutputName inserts marker before the last extension segment of name:
// "photo.png" becomes "photo_ai.png", "photo" becomes "photo_ai".
func OutputName(name, marker string) string {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		return name + marker
	}
	return name[:idx] + marker + name[idx:]
}

// Reduction returns the percentage saved, 100 × (1 − compressed/original).
func Reduction(originalSize, compressedSize int64) float64 {
	if originalSize <= 0 {
		return 0
	}
	return 100 * (1 - float64(compressedSize)/float64(originalSize))
}

func validateOptions(src Source, opts Options) error {
	if len(src.Data) == 0 {
		return ErrEmptySource
	}
	if opts.Quality <= 0 || opts.Quality > 1 {
		return fmt.Errorf("%w: got %.2f", ErrInvalidQuality, opts.Quality)
	}
	return nil
}

func report(opts Options, fraction float64) {
	if opts.Progress != nil {
		opts.Progress(fraction)
	}
}
