package session

import (
	"fmt"
	"math"
	"strings"
	"time"

	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/config"
	"image-compressor-go/internal/extractor"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"
)

// Limits are the page rules a State enforces.
type Limits struct {
	MaxSize        int64
	AllowedTypes   []string
	DefaultQuality int
	MinQuality     int
	MaxQuality     int
	OutputMarker   string
	NoticeTTL      time.Duration
}

// LimitsFromConfig builds Limits from the application configuration.
func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		MaxSize:        cfg.Upload.MaxSize,
		AllowedTypes:   cfg.Upload.AllowedMIMETypes,
		DefaultQuality: cfg.Compressor.DefaultQuality,
		MinQuality:     cfg.Compressor.MinQuality,
		MaxQuality:     cfg.Compressor.MaxQuality,
		OutputMarker:   cfg.Compressor.OutputMarker,
		NoticeTTL:      cfg.Session.NoticeTTL,
	}
}

// Upload is a file offered through the picker or a drop.
type Upload struct {
	Name         string
	DeclaredType string
	// Size is the size reported by the client; zero means len(Data).
	Size int64
	Data []byte
}

func (u Upload) size() int64 {
	if u.Size > 0 {
		return u.Size
	}
	return int64(len(u.Data))
}

// Selection is the chosen, not yet compressed image.
type Selection struct {
	Name       string               `json:"name"`
	Size       int64                `json:"size"`
	MIMEType   string               `json:"mime_type"`
	Data       []byte               `json:"-"`
	PreviewURL string               `json:"preview_url"`
	Info       *extractor.ImageInfo `json:"info,omitempty"`
	SelectedAt time.Time            `json:"selected_at"`
}

// CompressionRequest pairs the selection with the quality at trigger time.
type CompressionRequest struct {
	Selection Selection
	Quality   int
}

// Fraction returns the quality normalised to (0, 1].
func (r CompressionRequest) Fraction() float64 {
	return float64(r.Quality) / 100
}

// CompressionResult is immutable once created.
type CompressionResult struct {
	OriginalName string `json:"original_name"`
	OriginalSize int64  `json:"original_size"`
	OutputName   string `json:"output_name"`
	OutputSize   int64  `json:"output_size"`
	MIMEType     string `json:"mime_type"`
	Action       string `json:"action"`
	Data         []byte `json:"-"`
}

// HistoryEntry is one completed compression retained for the session.
type HistoryEntry struct {
	ID        string            `json:"id"`
	Seq       int64             `json:"seq"`
	Result    CompressionResult `json:"result"`
	Reduction float64           `json:"reduction"`
	CreatedAt time.Time         `json:"created_at"`
}

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is the single transient user-facing message.
type Notification struct {
	Seq       int64     `json:"seq"`
	Level     Level     `json:"level"`
	Text      string    `json:"text"`
	ExpiresAt time.Time `json:"expires_at"`
}

// State is the page-level state bundle. Its methods are pure transitions:
// they never perform I/O and take the current time as an argument.
type State struct {
	Selection      *Selection
	Quality        int
	Compressing    bool
	History        []HistoryEntry
	Notice         *Notification
	PrivacyOpen    bool
	AdBlockNoticed bool

	limits    Limits
	entrySeq  int64
	noticeSeq int64
}

// NewState returns the state of a freshly loaded page.
func NewState(limits Limits) *State {
	return &State{
		Quality: limits.DefaultQuality,
		limits:  limits,
	}
}

// DetectType returns the upload MIME type, preferring content sniffing over
// the client-declared type when the sniffer recognises the payload.
func DetectType(up Upload) string {
	declared := baseType(up.DeclaredType)
	if len(up.Data) == 0 {
		return declared
	}
	detected := mimetype.Detect(up.Data)
	if detected.Is("application/octet-stream") {
		return declared
	}
	return baseType(detected.String())
}

func baseType(t string) string {
	t, _, _ = strings.Cut(t, ";")
	return strings.ToLower(strings.TrimSpace(t))
}

// Validate checks an upload against the limits and returns its MIME type.
func (st *State) Validate(up Upload) (string, error) {
	if len(up.Data) == 0 && up.Size == 0 {
		return "", ErrNoFile
	}

	mimeType := DetectType(up)
	if !lo.Contains(st.limits.AllowedTypes, mimeType) {
		shown := mimeType
		if shown == "" {
			shown = "unknown"
		}
		return mimeType, fmt.Errorf("%w %q: allowed types are %s",
			ErrUnsupportedType, shown, strings.Join(st.limits.AllowedTypes, ", "))
	}

	if size := up.size(); size > st.limits.MaxSize {
		return mimeType, fmt.Errorf("%w: %s exceeds the %s limit",
			ErrFileTooLarge, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(st.limits.MaxSize)))
	}

	return mimeType, nil
}

// Reject reports a refused upload; the selection is left untouched.
func (st *State) Reject(err error, now time.Time) {
	st.notify(LevelError, err.Error(), now)
}

// Accept replaces the selection, resets quality and clears history. It
// returns the preview reference that is no longer in use.
func (st *State) Accept(sel Selection, now time.Time) (released string) {
	if st.Selection != nil {
		released = st.Selection.PreviewURL
	}
	sel.SelectedAt = now
	st.Selection = &sel
	st.Quality = st.limits.DefaultQuality
	st.History = nil
	st.notify(LevelSuccess, fmt.Sprintf("%s selected (%s)", sel.Name, humanize.IBytes(uint64(sel.Size))), now)
	return released
}

// SetQuality clamps q to the allowed range and stores it.
func (st *State) SetQuality(q int) int {
	st.Quality = min(max(q, st.limits.MinQuality), st.limits.MaxQuality)
	return st.Quality
}

// BeginCompress marks the state busy and returns the request to run.
func (st *State) BeginCompress(now time.Time) (CompressionRequest, error) {
	if st.Selection == nil {
		st.notify(LevelError, "Please select an image first", now)
		return CompressionRequest{}, ErrNoSelection
	}
	if st.Compressing {
		return CompressionRequest{}, ErrBusy
	}
	st.Compressing = true
	return CompressionRequest{Selection: *st.Selection, Quality: st.Quality}, nil
}

// CompleteCompress records a successful compression, readies the page for a
// new upload and returns the new entry plus the released preview reference.
func (st *State) CompleteCompress(req CompressionRequest, out *compressor.Output, id string, now time.Time) (HistoryEntry, string) {
	st.entrySeq++
	entry := HistoryEntry{
		ID:  id,
		Seq: st.entrySeq,
		Result: CompressionResult{
			OriginalName: req.Selection.Name,
			OriginalSize: req.Selection.Size,
			OutputName:   compressor.OutputName(req.Selection.Name, st.limits.OutputMarker),
			OutputSize:   out.Size(),
			MIMEType:     out.MIMEType,
			Action:       out.Action,
			Data:         out.Data,
		},
		Reduction: RoundReduction(compressor.Reduction(req.Selection.Size, out.Size())),
		CreatedAt: now,
	}
	st.History = append([]HistoryEntry{entry}, st.History...)

	var released string
	if st.Selection != nil {
		released = st.Selection.PreviewURL
	}
	st.Selection = nil
	st.Quality = st.limits.DefaultQuality
	st.Compressing = false
	st.notify(LevelSuccess, fmt.Sprintf("Image compressed! Size reduced by %.1f%%", entry.Reduction), now)
	return entry, released
}

// FailCompress reports a failed compression and keeps the selection for a retry.
func (st *State) FailCompress(err error, now time.Time) {
	st.Compressing = false
	st.notify(LevelError, fmt.Sprintf("Compression failed: %v", err), now)
}

// ClearHistory empties the history and returns how many entries it held.
func (st *State) ClearHistory(now time.Time) int {
	n := len(st.History)
	st.History = nil
	st.notify(LevelInfo, "History cleared", now)
	return n
}

// Entry looks up a history entry by id.
func (st *State) Entry(id string) (HistoryEntry, bool) {
	return lo.Find(st.History, func(e HistoryEntry) bool { return e.ID == id })
}

// ReportAdBlock shows the ad-blocker notice once; it returns whether it was shown.
func (st *State) ReportAdBlock(blocked bool, now time.Time) bool {
	if !blocked || st.AdBlockNoticed {
		return false
	}
	st.AdBlockNoticed = true
	st.notify(LevelInfo, "An ad blocker seems to be active. Everything still works; ads just help keep this tool free.", now)
	return true
}

// SetPrivacy opens or closes the privacy notice.
func (st *State) SetPrivacy(open bool) {
	st.PrivacyOpen = open
}

// Notify overwrites the current notification.
func (st *State) Notify(level Level, text string, now time.Time) {
	st.notify(level, text, now)
}

func (st *State) notify(level Level, text string, now time.Time) {
	st.noticeSeq++
	st.Notice = &Notification{
		Seq:       st.noticeSeq,
		Level:     level,
		Text:      text,
		ExpiresAt: now.Add(st.limits.NoticeTTL),
	}
}

// ActiveNotice returns the notification unless it has dismissed itself.
func (st *State) ActiveNotice(now time.Time) *Notification {
	if st.Notice == nil || !now.Before(st.Notice.ExpiresAt) {
		return nil
	}
	n := *st.Notice
	return &n
}

// Snapshot is a read-only view of the state for rendering.
type Snapshot struct {
	Selection   *Selection     `json:"selection"`
	Quality     int            `json:"quality"`
	Compressing bool           `json:"compressing"`
	History     []HistoryEntry `json:"history"`
	Notice      *Notification  `json:"notice"`
	PrivacyOpen bool           `json:"privacy_open"`
}

// Snapshot copies the renderable parts of the state.
func (st *State) Snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		Quality:     st.Quality,
		Compressing: st.Compressing,
		History:     append(make([]HistoryEntry, 0, len(st.History)), st.History...),
		Notice:      st.ActiveNotice(now),
		PrivacyOpen: st.PrivacyOpen,
	}
	if st.Selection != nil {
		sel := *st.Selection
		snap.Selection = &sel
	}
	return snap
}

// RoundReduction rounds a percentage to one decimal.
func RoundReduction(pct float64) float64 {
	return math.Round(pct*10) / 10
}
