package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"image-compressor-go/internal/config"
	"image-compressor-go/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsupported(t *testing.T) {
	var s Sharer = Unsupported{}

	assert.False(t, s.Available())
	_, err := s.Share(context.Background(), File{Name: "a.png"}, "t", "x")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestIsCanceled(t *testing.T) {
	assert.True(t, IsCanceled(ErrCanceled))
	assert.True(t, IsCanceled(fmt.Errorf("upload: %w", context.Canceled)))
	assert.False(t, IsCanceled(errors.New("boom")))
	assert.False(t, IsCanceled(nil))
}

// fakeS3 answers just enough of the S3 API for bucket checks and uploads.
func fakeS3(t *testing.T, uploads map[string]string) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Query().Has("location"):
			w.Header().Set("Content-Type", "application/xml")
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+
				`<LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">us-east-1</LocationConstraint>`)
		case r.Method == http.MethodPut:
			_, _ = io.Copy(io.Discard, r.Body)
			mu.Lock()
			uploads[r.URL.Path] = r.Header.Get("Content-Type")
			mu.Unlock()
			w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestMinio_Share(t *testing.T) {
	uploads := make(map[string]string)
	ts := fakeS3(t, uploads)

	cfg := config.DefaultConfig().Share
	cfg.Endpoint = strings.TrimPrefix(ts.URL, "http://")
	cfg.AccessKey = "minioadmin"
	cfg.SecretKey = "minioadmin"

	m, err := NewMinio(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	assert.True(t, m.Available())

	res, err := m.Share(context.Background(), File{Name: "cat_ai.jpg", MIMEType: "image/jpeg", Data: []byte("jpeg")}, "Compressed image", "cat_ai.jpg, 65.0% smaller")
	require.NoError(t, err)

	assert.Contains(t, res.URL, "/shared-images/")
	assert.Contains(t, res.URL, "/cat_ai.jpg")
	assert.Contains(t, res.URL, "X-Amz-Signature=")

	require.Len(t, uploads, 1)
	for key, contentType := range uploads {
		assert.True(t, strings.HasSuffix(key, "/cat_ai.jpg"), key)
		assert.Equal(t, "image/jpeg", contentType)
	}
}
