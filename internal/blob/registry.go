// Package blob keeps transient, revocable references to in-memory payloads,
// in the manner of browser object URLs.
package blob

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const scheme = "blob:"

// ErrRevoked is returned when a reference was never created or has been revoked.
var ErrRevoked = errors.New("blob reference revoked")

// Blob is a payload with its MIME type.
type Blob struct {
	MIMEType string
	Data     []byte
}

// Registry maps references to payloads until they are revoked.
type Registry struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{blobs: make(map[string]Blob)}
}

// Create registers b and returns its reference.
func (r *Registry) Create(b Blob) string {
	ref := scheme + uuid.NewString()
	r.mu.Lock()
	r.blobs[ref] = b
	r.mu.Unlock()
	return ref
}

// Resolve returns the payload behind ref.
func (r *Registry) Resolve(ref string) (Blob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[ref]
	if !ok {
		return Blob{}, ErrRevoked
	}
	return b, nil
}

// Revoke releases ref. Revoking an unknown or empty reference is a no-op.
func (r *Registry) Revoke(ref string) {
	if !strings.HasPrefix(ref, scheme) {
		return
	}
	r.mu.Lock()
	delete(r.blobs, ref)
	r.mu.Unlock()
}

// RevokeAll releases every live reference.
func (r *Registry) RevokeAll() {
	r.mu.Lock()
	r.blobs = make(map[string]Blob)
	r.mu.Unlock()
}

// Len returns the number of live references.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}
