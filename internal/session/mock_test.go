package session

import (
	"context"
	"sync"
	"time"

	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/share"

	"github.com/stretchr/testify/mock"
)

// MockCompressor is a mock implementation of compressor.Compressor
type MockCompressor struct {
	mock.Mock
}

func (m *MockCompressor) Compress(ctx context.Context, src compressor.Source, opts compressor.Options) (*compressor.Output, error) {
	args := m.Called(ctx, src, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*compressor.Output), args.Error(1)
}

func (m *MockCompressor) Name() string {
	return "mock"
}

// MockSharer is a mock implementation of share.Sharer
type MockSharer struct {
	mock.Mock
}

func (m *MockSharer) Available() bool {
	return m.Called().Bool(0)
}

func (m *MockSharer) Share(ctx context.Context, file share.File, title, text string) (*share.Result, error) {
	args := m.Called(ctx, file, title, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*share.Result), args.Error(1)
}

// blockingCompressor holds every call until release is closed.
type blockingCompressor struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingCompressor() *blockingCompressor {
	return &blockingCompressor{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingCompressor) Compress(ctx context.Context, src compressor.Source, opts compressor.Options) (*compressor.Output, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &compressor.Output{MIMEType: src.MIMEType, Data: make([]byte, len(src.Data)/2), Action: compressor.ActionCompressed}, nil
}

func (b *blockingCompressor) Name() string {
	return "blocking"
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
