package compressor

import (
	"context"
)

// Fallback sends every source the imaging encoder can write to Imaging and
// the rest (webp) to the stand-in.
type Fallback struct {
	imaging  *Imaging
	fallback Compressor
}

// NewFallback creates a Fallback over the given stand-in.
func NewFallback(imaging *Imaging, fallback Compressor) *Fallback {
	return &Fallback{imaging: imaging, fallback: fallback}
}

// Name implements Compressor.
func (c *Fallback) Name() string {
	return c.imaging.Name() + "+" + c.fallback.Name()
}

// Compress implements Compressor.
func (c *Fallback) Compress(ctx context.Context, src Source, opts Options) (*Output, error) {
	if !CanEncode(src.MIMEType) {
		return c.fallback.Compress(ctx, src, opts)
	}
	return c.imaging.Compress(ctx, src, opts)
}

// CanEncode reports whether the imaging encoder can write mimeType.
func CanEncode(mimeType string) bool {
	_, err := formatFromMIME(mimeType)
	return err == nil
}
