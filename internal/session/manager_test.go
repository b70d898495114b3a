package session

import (
	"context"
	"testing"
	"time"

	"image-compressor-go/internal/statistics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() (*Manager, *fakeClock, *statistics.Statistics) {
	clock := &fakeClock{now: t0}
	stats := statistics.NewStatistics()
	m := NewManager(Deps{
		Limits:     testLimits(),
		Compressor: new(MockCompressor),
		Stats:      stats,
		Now:        clock.Now,
	}, 30*time.Minute)
	return m, clock, stats
}

func TestManager_CreateGetDelete(t *testing.T) {
	m, _, stats := newTestManager()

	s := m.Create()
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, int64(1), stats.SessionsCreated)

	got, err := m.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	other := m.Create()
	assert.NotEqual(t, s.ID(), other.ID())

	assert.True(t, m.Delete(s.ID()))
	assert.False(t, m.Delete(s.ID()))

	_, err = m.Get(s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 1, m.Len())
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	m, _, _ := newTestManager()

	a := m.Create()
	b := m.Create()
	_, err := a.Select(catUpload())
	require.NoError(t, err)
	b.SetQuality(20)

	assert.NotNil(t, a.Snapshot().Selection)
	assert.Nil(t, b.Snapshot().Selection)
	assert.Equal(t, 70, a.Snapshot().Quality)
	assert.Equal(t, 20, b.Snapshot().Quality)
}

func TestManager_Sweep(t *testing.T) {
	m, clock, stats := newTestManager()

	idle := m.Create()
	_, err := idle.Select(catUpload())
	require.NoError(t, err)
	active := m.Create()

	clock.Advance(20 * time.Minute)
	_, err = m.Get(active.ID())
	require.NoError(t, err)

	clock.Advance(15 * time.Minute)
	assert.Equal(t, 1, m.Sweep())

	assert.Equal(t, 1, m.Len())
	_, err = m.Get(idle.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, idle.LiveReferences())
	assert.Equal(t, int64(1), stats.SessionsExpired)

	assert.Equal(t, 0, m.Sweep())
}

func TestManager_SweepKeepsSubscribedSessions(t *testing.T) {
	m, clock, stats := newTestManager()

	watched := m.Create()
	_, unsubscribe := watched.Subscribe(1)

	clock.Advance(31 * time.Minute)
	assert.Equal(t, 0, m.Sweep())
	got, err := m.Get(watched.ID())
	require.NoError(t, err)
	assert.Same(t, watched, got)
	assert.Equal(t, int64(0), stats.SessionsExpired)

	unsubscribe()
	assert.Equal(t, 0, watched.Subscribers())
	clock.Advance(31 * time.Minute)
	assert.Equal(t, 1, m.Sweep())
	_, err = m.Get(watched.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSession_TouchDefersSweep(t *testing.T) {
	m, clock, _ := newTestManager()

	s := m.Create()
	clock.Advance(25 * time.Minute)
	s.Touch()
	clock.Advance(25 * time.Minute)
	assert.Equal(t, 0, m.Sweep())
	assert.Equal(t, 1, m.Len())
}

func TestManager_RunStopsWithContext(t *testing.T) {
	m, _, _ := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestManager_Close(t *testing.T) {
	m, _, _ := newTestManager()
	s := m.Create()
	_, err := s.Select(catUpload())
	require.NoError(t, err)

	m.Close()
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 0, s.LiveReferences())
}
