package compressor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Imaging re-encodes images with disintegration/imaging.
type Imaging struct{}

// NewImaging creates a new Imaging compressor.
func NewImaging() *Imaging {
	return &Imaging{}
}

// Name implements Compressor.
func (c *Imaging) Name() string {
	return "imaging"
}

// Compress decodes the source, applies EXIF orientation and re-encodes it in
// its own format. When the re-encoded image is not smaller the original bytes
// are returned with ActionOriginal.
func (c *Imaging) Compress(ctx context.Context, src Source, opts Options) (*Output, error) {
	if err := validateOptions(src, opts); err != nil {
		return nil, err
	}

	format, err := formatFromMIME(src.MIMEType)
	if err != nil {
		return nil, err
	}
	report(opts, 0.1)

	img, err := imaging.Decode(bytes.NewReader(src.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", src.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report(opts, 0.5)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, encodeOptions(format, opts.Quality)...); err != nil {
		return nil, fmt.Errorf("encode %s: %w", src.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report(opts, 1)

	if buf.Len() >= len(src.Data) {
		return &Output{
			MIMEType: src.MIMEType,
			Data:     bytes.Clone(src.Data),
			Action:   ActionOriginal,
		}, nil
	}

	return &Output{
		MIMEType: src.MIMEType,
		Data:     buf.Bytes(),
		Action:   ActionCompressed,
	}, nil
}

func formatFromMIME(mimeType string) (imaging.Format, error) {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return imaging.JPEG, nil
	case "image/png":
		return imaging.PNG, nil
	case "image/gif":
		return imaging.GIF, nil
	case "image/bmp":
		return imaging.BMP, nil
	case "image/tiff":
		return imaging.TIFF, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrFormatNotEncodable, mimeType)
	}
}

func encodeOptions(format imaging.Format, quality float64) []imaging.EncodeOption {
	switch format {
	case imaging.JPEG:
		return []imaging.EncodeOption{imaging.JPEGQuality(int(quality*100 + 0.5))}
	case imaging.PNG:
		level := png.BestCompression
		if quality >= 0.9 {
			level = png.DefaultCompression
		}
		return []imaging.EncodeOption{imaging.PNGCompressionLevel(level)}
	case imaging.GIF:
		colors := int(256 * quality)
		if colors < 2 {
			colors = 2
		}
		if colors > 256 {
			colors = 256
		}
		return []imaging.EncodeOption{imaging.GIFNumColors(colors)}
	default:
		return nil
	}
}

// probeImaging round-trips a tiny image to check the encoder is usable.
func probeImaging() error {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(70)); err != nil {
		return err
	}
	_, err := imaging.Decode(&buf)
	return err
}
