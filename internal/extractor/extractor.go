package extractor

import (
	"time"
)

// Inspector extracts image information from an in-memory payload.
type Inspector interface {
	Inspect(data []byte) (*ImageInfo, error)
}

// ImageInfo is the best-effort description shown next to a selection.
type ImageInfo struct {
	Format      string     `json:"format"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	CameraMake  string     `json:"camera_make,omitempty"`
	CameraModel string     `json:"camera_model,omitempty"`
	Software    string     `json:"software,omitempty"`
	Orientation int        `json:"orientation,omitempty"`
	TakenAt     *time.Time `json:"taken_at,omitempty"`
	Source      DateSource `json:"-"`
}

// DateSource represents where TakenAt came from.
type DateSource int

const (
	DateSourceUnknown DateSource = iota
	DateSourceEXIFDateTime
	DateSourceEXIFDateTimeOriginal
	DateSourceEXIFDateTimeDigitized
	DateSourceExiftool
)

// String returns a human-readable description of the date source.
func (ds DateSource) String() string {
	switch ds {
	case DateSourceEXIFDateTime:
		return "EXIF DateTime"
	case DateSourceEXIFDateTimeOriginal:
		return "EXIF DateTimeOriginal"
	case DateSourceEXIFDateTimeDigitized:
		return "EXIF DateTimeDigitized"
	case DateSourceExiftool:
		return "exiftool"
	default:
		return "Unknown"
	}
}

// HasEXIF reports whether any EXIF field was found.
func (i *ImageInfo) HasEXIF() bool {
	return i.CameraMake != "" || i.CameraModel != "" || i.Software != "" || i.TakenAt != nil || i.Orientation != 0
}
