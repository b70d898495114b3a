package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"image-compressor-go/internal/blob"
	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/extractor"
	"image-compressor-go/internal/logger"
	"image-compressor-go/internal/share"
	"image-compressor-go/internal/statistics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Event types published to session subscribers.
const (
	EventProgress = "progress"
	EventNotice   = "notice"
	EventState    = "state"
)

// Event is pushed to subscribers when the session changes.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Limits     Limits
	Compressor compressor.Compressor
	Sharer     share.Sharer
	Inspector  extractor.Inspector
	Stats      *statistics.Statistics
	Logger     logrus.FieldLogger
	Now        func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Sharer == nil {
		d.Sharer = share.Unsupported{}
	}
	if d.Stats == nil {
		d.Stats = statistics.NewStatistics()
	}
	if d.Logger == nil {
		d.Logger = logger.Discard()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Session owns the state of one loaded page and sequences every mutation.
type Session struct {
	id   string
	deps Deps
	log  *logrus.Entry

	mu       sync.Mutex
	state    *State
	blobs    *blob.Registry
	lastSeen time.Time

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// New creates a session with a fresh state.
func New(id string, deps Deps) *Session {
	deps = deps.withDefaults()
	return &Session{
		id:       id,
		deps:     deps,
		log:      logger.WithSession(deps.Logger, id),
		state:    NewState(deps.Limits),
		blobs:    blob.NewRegistry(),
		lastSeen: deps.Now(),
		subs:     make(map[int]chan Event),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Snapshot returns the current renderable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Snapshot(s.deps.Now())
}

// Select validates up and, if it passes, makes it the selection.
func (s *Session) Select(up Upload) (*Selection, error) {
	s.mu.Lock()
	now := s.deps.Now()

	if s.state.Compressing {
		s.state.Reject(fmt.Errorf("%w: wait for it to finish", ErrBusy), now)
		s.mu.Unlock()
		s.afterChange()
		return nil, ErrBusy
	}

	mimeType, err := s.state.Validate(up)
	if err != nil {
		s.state.Reject(err, now)
		s.mu.Unlock()
		s.deps.Stats.IncrementUploadsRejected(rejectReason(err))
		s.log.WithError(err).WithField("file", up.Name).Info("Upload rejected")
		s.afterChange()
		return nil, err
	}

	sel := Selection{
		Name:     up.Name,
		Size:     int64(len(up.Data)),
		MIMEType: mimeType,
		Data:     up.Data,
	}
	if s.deps.Inspector != nil {
		if info, err := s.deps.Inspector.Inspect(up.Data); err == nil {
			sel.Info = info
		} else {
			s.log.WithError(err).Debug("Could not inspect selection")
		}
	}
	sel.PreviewURL = s.blobs.Create(blob.Blob{MIMEType: mimeType, Data: up.Data})

	released := s.state.Accept(sel, now)
	s.blobs.Revoke(released)
	accepted := *s.state.Selection
	s.mu.Unlock()

	s.deps.Stats.IncrementUploadsAccepted()
	logger.WithFileOperation(s.log, sel.Name, "select").
		WithField("size", sel.Size).WithField("mime_type", mimeType).Info("Image selected")
	s.afterChange()
	return &accepted, nil
}

// SetQuality stores the clamped quality and returns it.
func (s *Session) SetQuality(q int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SetQuality(q)
}

// Preview resolves the current selection preview.
func (s *Session) Preview() (blob.Blob, error) {
	s.mu.Lock()
	var ref string
	if s.state.Selection != nil {
		ref = s.state.Selection.PreviewURL
	}
	s.mu.Unlock()

	if ref == "" {
		return blob.Blob{}, ErrNoSelection
	}
	return s.blobs.Resolve(ref)
}

// Compress runs the compressor once over the selection. Only one compression
// may be in flight; a second call fails with ErrBusy.
func (s *Session) Compress(ctx context.Context) (*HistoryEntry, error) {
	s.mu.Lock()
	req, err := s.state.BeginCompress(s.deps.Now())
	s.mu.Unlock()
	if err != nil {
		s.afterChange()
		return nil, err
	}

	s.deps.Stats.IncrementCompressionsStarted()
	log := logger.WithFileOperation(s.log, req.Selection.Name, "compress").WithField("quality", req.Quality)
	log.Debugf("Compressing with %s backend", s.deps.Compressor.Name())
	s.afterChange()

	out, err := s.deps.Compressor.Compress(ctx, compressor.Source{
		Name:     req.Selection.Name,
		MIMEType: req.Selection.MIMEType,
		Data:     req.Selection.Data,
	}, compressor.Options{
		Quality:  req.Fraction(),
		Progress: s.publishProgress,
	})

	s.mu.Lock()
	now := s.deps.Now()
	if err != nil {
		s.state.FailCompress(err, now)
		s.mu.Unlock()
		s.deps.Stats.IncrementCompressionsFailed()
		s.deps.Stats.AddError(req.Selection.Name, "compress", err.Error())
		log.WithError(err).Warn("Compression failed")
		s.afterChange()
		return nil, err
	}

	entry, released := s.state.CompleteCompress(req, out, uuid.NewString(), now)
	s.blobs.Revoke(released)
	s.mu.Unlock()

	s.deps.Stats.RecordCompression(entry.Result.OriginalSize, entry.Result.OutputSize)
	log.WithFields(logrus.Fields{
		"original_size": entry.Result.OriginalSize,
		"output_size":   entry.Result.OutputSize,
		"reduction":     entry.Reduction,
		"action":        entry.Result.Action,
	}).Info("Image compressed")
	s.afterChange()
	return &entry, nil
}

// History returns the entries, newest first.
func (s *Session) History() []HistoryEntry {
	return s.Snapshot().History
}

// ClearHistory empties the history.
func (s *Session) ClearHistory() int {
	s.mu.Lock()
	n := s.state.ClearHistory(s.deps.Now())
	s.mu.Unlock()

	s.deps.Stats.IncrementHistoryCleared()
	s.log.WithField("entries", n).Debug("History cleared")
	s.afterChange()
	return n
}

// Download hands the payload of entry id to fn through a transient blob
// reference that is revoked as soon as fn returns.
func (s *Session) Download(id string, fn func(name, mimeType string, data []byte) error) error {
	s.mu.Lock()
	entry, ok := s.state.Entry(id)
	s.mu.Unlock()
	if !ok {
		return ErrEntryNotFound
	}

	ref := s.blobs.Create(blob.Blob{MIMEType: entry.Result.MIMEType, Data: entry.Result.Data})
	defer s.blobs.Revoke(ref)

	b, err := s.blobs.Resolve(ref)
	if err != nil {
		return err
	}
	if err := fn(entry.Result.OutputName, b.MIMEType, b.Data); err != nil {
		return err
	}

	s.deps.Stats.IncrementDownloads()
	return nil
}

// Share publishes entry id through the share capability. A canceled share
// yields an info notice; other failures an error notice.
func (s *Session) Share(ctx context.Context, id string) (*share.Result, error) {
	if !s.deps.Sharer.Available() {
		s.notify(LevelInfo, "Sharing is not supported here. Download the image instead.")
		return nil, share.ErrUnsupported
	}

	s.mu.Lock()
	entry, ok := s.state.Entry(id)
	s.mu.Unlock()
	if !ok {
		return nil, ErrEntryNotFound
	}

	res, err := s.deps.Sharer.Share(ctx, share.File{
		Name:     entry.Result.OutputName,
		MIMEType: entry.Result.MIMEType,
		Data:     entry.Result.Data,
	}, "Compressed image", fmt.Sprintf("%s, %.1f%% smaller", entry.Result.OutputName, entry.Reduction))

	switch {
	case err == nil:
		s.deps.Stats.IncrementSharesOK()
		s.notify(LevelSuccess, "Image shared")
		return res, nil
	case share.IsCanceled(err):
		s.deps.Stats.IncrementSharesCanceled()
		s.notify(LevelInfo, "Sharing canceled")
		return nil, err
	default:
		s.deps.Stats.IncrementSharesFailed()
		s.log.WithError(err).Warn("Share failed")
		s.notify(LevelError, fmt.Sprintf("Sharing failed: %v", err))
		return nil, err
	}
}

// ReportAdBlock records the result of the page's ad-blocker probe.
func (s *Session) ReportAdBlock(blocked bool) bool {
	s.mu.Lock()
	shown := s.state.ReportAdBlock(blocked, s.deps.Now())
	s.mu.Unlock()
	if shown {
		s.afterChange()
	}
	return shown
}

// SetPrivacy opens or closes the privacy notice.
func (s *Session) SetPrivacy(open bool) {
	s.mu.Lock()
	s.state.SetPrivacy(open)
	s.mu.Unlock()
	s.afterChange()
}

// Subscribe returns a channel of session events and a function that ends the
// subscription. Slow subscribers miss events rather than block the session.
func (s *Session) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
			s.subMu.Unlock()
		})
	}
}

// Close releases every transient reference and ends all subscriptions.
func (s *Session) Close() {
	s.blobs.RevokeAll()

	s.subMu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.subMu.Unlock()
}

// LiveReferences returns the number of unreleased blob references.
func (s *Session) LiveReferences() int {
	return s.blobs.Len()
}

// Subscribers returns the number of open subscriptions.
func (s *Session) Subscribers() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs)
}

// Touch marks the session as in use.
func (s *Session) Touch() {
	s.touch(s.deps.Now())
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) notify(level Level, text string) {
	s.mu.Lock()
	s.state.Notify(level, text, s.deps.Now())
	s.mu.Unlock()
	s.afterChange()
}

func (s *Session) publishProgress(fraction float64) {
	s.publish(Event{Type: EventProgress, Data: fraction})
}

// afterChange pushes the current notice and state to subscribers.
func (s *Session) afterChange() {
	snap := s.Snapshot()
	if snap.Notice != nil {
		s.publish(Event{Type: EventNotice, Data: snap.Notice})
	}
	s.publish(Event{Type: EventState, Data: snap})
}

func (s *Session) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
