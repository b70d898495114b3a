package session

import "errors"

// ErrNoFile is returned when an upload carries no file
var ErrNoFile = errors.New("no file selected")

// ErrUnsupportedType is returned when the file is not an allowed image type
var ErrUnsupportedType = errors.New("unsupported file type")

// ErrFileTooLarge is returned when the file exceeds the upload ceiling
var ErrFileTooLarge = errors.New("file too large")

// ErrNoSelection is returned when compression is triggered without a selection
var ErrNoSelection = errors.New("no image selected")

// ErrBusy is returned while a compression is in flight
var ErrBusy = errors.New("compression already in progress")

// ErrEntryNotFound is returned for unknown history entries
var ErrEntryNotFound = errors.New("history entry not found")

// ErrSessionNotFound is returned for unknown or expired sessions
var ErrSessionNotFound = errors.New("session not found")

// rejectReason maps validation errors to a short label for statistics.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNoFile):
		return "no_file"
	case errors.Is(err, ErrUnsupportedType):
		return "unsupported_type"
	case errors.Is(err, ErrFileTooLarge):
		return "too_large"
	case errors.Is(err, ErrBusy):
		return "busy"
	default:
		return "other"
	}
}
