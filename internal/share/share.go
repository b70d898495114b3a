// Package share implements the optional share capability for compressed images.
package share

import (
	"context"
	"errors"
)

var (
	// ErrCanceled is returned when the user abandons a share.
	ErrCanceled = errors.New("share canceled")
	// ErrUnsupported is returned by sharers that are not available.
	ErrUnsupported = errors.New("sharing is not supported")
)

// File is a named payload to share.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Result describes a completed share.
type Result struct {
	URL string `json:"url,omitempty"`
}

// Sharer publishes a file. Callers must check Available before Share.
type Sharer interface {
	Available() bool
	Share(ctx context.Context, file File, title, text string) (*Result, error)
}

// Unsupported is the Sharer used when no share target is configured.
type Unsupported struct{}

// Available implements Sharer.
func (Unsupported) Available() bool { return false }

// Share implements Sharer.
func (Unsupported) Share(context.Context, File, string, string) (*Result, error) {
	return nil, ErrUnsupported
}

// IsCanceled reports whether err means the share was abandoned rather than failed.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}
