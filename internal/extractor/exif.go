package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnknownFormat is returned when the payload is not a decodable image.
var ErrUnknownFormat = errors.New("unknown image format")

// EXIFExtractor reads dimensions and EXIF metadata from image payloads.
type EXIFExtractor struct {
	logger logrus.FieldLogger
}

// NewEXIFExtractor returns a new EXIFExtractor.
func NewEXIFExtractor(logger logrus.FieldLogger) *EXIFExtractor {
	return &EXIFExtractor{logger: logger}
}

// Inspect returns the format and dimensions of data plus any EXIF fields.
// Missing EXIF is not an error.
func (e *EXIFExtractor) Inspect(data []byte) (*ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, err)
	}

	info := &ImageInfo{
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}

	if format == "jpeg" || format == "tiff" {
		if err := e.readEXIF(data, info); err != nil {
			e.logger.Debugf("No EXIF data in %s image: %v", format, err)
		}
	}

	return info, nil
}

// readEXIF fills the EXIF fields of info using the rwcarlsen/goexif library.
func (e *EXIFExtractor) readEXIF(data []byte, info *ImageInfo) error {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode EXIF: %w", err)
	}

	info.CameraMake = stringTag(x, exif.Make)
	info.CameraModel = stringTag(x, exif.Model)
	info.Software = stringTag(x, exif.Software)

	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			info.Orientation = v
		}
	}

	if tm, err := x.DateTime(); err == nil {
		info.TakenAt = &tm
		info.Source = DateSourceEXIFDateTime
		return nil
	}

	sources := []struct {
		field  exif.FieldName
		source DateSource
	}{
		{exif.DateTimeOriginal, DateSourceEXIFDateTimeOriginal},
		{exif.DateTimeDigitized, DateSourceEXIFDateTimeDigitized},
	}
	for _, s := range sources {
		if date := parseEXIFDateTime(stringTag(x, s.field)); date != nil {
			info.TakenAt = date
			info.Source = s.source
			return nil
		}
	}

	return nil
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	val, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(val, "\x00"))
}

// parseEXIFDateTime parses an EXIF date time string.
// Returns nil if parsing fails.
func parseEXIFDateTime(dateStr string) *time.Time {
	if dateStr == "" {
		return nil
	}

	formats := []string{
		"2006:01:02 15:04:05",
		"2006-01-02 15:04:05",
		"2006:01:02",
		"2006-01-02",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if date, err := time.Parse(format, dateStr); err == nil {
			return &date
		}
	}
	return nil
}
