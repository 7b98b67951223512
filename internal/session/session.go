// Package session owns the per-call aggregate of the safety-call engine:
// transcript history, location snapshot, distress evidence, and the alerts
// raised during the call. Every mutation of one session — transcript append,
// distress signal handling, alert cancel, countdown expiry, finalize — is
// serialized by the session's own mutex. The media path, the transcript
// path, and user cancel actions all funnel through that one lock, which is
// the single serialization point that resolves the cancel/expiry race.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/guardian/internal/alert"
	"github.com/MikeSquared-Agency/guardian/internal/events"
)

var (
	// ErrFinalized is returned for any mutation attempted after Finalize.
	ErrFinalized = errors.New("session: already finalized")
	// ErrNotFound is returned when no live session matches the given ID.
	ErrNotFound = errors.New("session: not found")
	// ErrAlertNotFound is returned when a cancel names an unknown alert.
	ErrAlertNotFound = errors.New("session: alert not found")
)

// TranscriptEntry is one utterance in a session's append-only transcript.
type TranscriptEntry struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the aggregate for one live safety call. Fields are guarded by
// mu; nothing outside this package touches them directly.
type Session struct {
	mu sync.Mutex

	id        string
	userID    string
	startTime time.Time
	endTime   *time.Time
	location  *events.Location

	transcript []TranscriptEntry
	keywords   []string // insertion order
	keywordSet map[string]bool
	distress   bool

	alerts []*alert.Alert
	active *alert.Alert // the one non-terminal alert, pending or countdown

	finalized bool

	// Media-path counters, used to synthesize the silence-then-dropout
	// signal when the caller goes quiet for too long.
	framesSeen  uint64
	lastFrameAt time.Time
	silentSince *time.Time
	dropoutSent bool
}

// Snapshot is a read-only view of a live session for the HTTP API.
type Snapshot struct {
	SessionID        string            `json:"session_id"`
	UserID           string            `json:"user_id"`
	StartTime        time.Time         `json:"start_time"`
	EndTime          *time.Time        `json:"end_time,omitempty"`
	Location         *events.Location  `json:"location,omitempty"`
	DistressDetected bool              `json:"distress_detected"`
	Keywords         []string          `json:"keywords_detected"`
	TranscriptLen    int               `json:"transcript_len"`
	ActiveAlertID    string            `json:"active_alert_id,omitempty"`
	AlertCount       int               `json:"alert_count"`
	FramesSeen       uint64            `json:"frames_seen"`
}

// AlertView is the API projection of one alert.
type AlertView struct {
	AlertID    string           `json:"alert_id"`
	Type       string           `json:"type"`
	Confidence float64          `json:"confidence"`
	Status     alert.Status     `json:"status"`
	Location   *events.Location `json:"location,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
}

func newSession(id, userID string, loc *events.Location, start time.Time) *Session {
	return &Session{
		id:         id,
		userID:     userID,
		startTime:  start,
		location:   loc,
		keywordSet: make(map[string]bool),
	}
}

// appendTranscript adds one utterance. Caller holds s.mu.
func (s *Session) appendTranscript(speaker, text string, at time.Time) error {
	if s.finalized {
		return ErrFinalized
	}
	s.transcript = append(s.transcript, TranscriptEntry{Speaker: speaker, Text: text, Timestamp: at})
	return nil
}

// addKeywords grows the monotonic keyword set. Caller holds s.mu.
func (s *Session) addKeywords(kws []string) {
	for _, kw := range kws {
		if !s.keywordSet[kw] {
			s.keywordSet[kw] = true
			s.keywords = append(s.keywords, kw)
		}
	}
	if len(s.keywords) > 0 {
		s.distress = true
	}
}

// noteMedia updates the silence-run tracking and reports whether a
// silence-then-dropout signal should be synthesized now. Caller holds s.mu.
func (s *Session) noteMedia(silent bool, at time.Time, dropoutAfter time.Duration) bool {
	s.framesSeen++
	s.lastFrameAt = at

	if !silent {
		s.silentSince = nil
		s.dropoutSent = false
		return false
	}

	if s.silentSince == nil {
		t := at
		s.silentSince = &t
		return false
	}
	if !s.dropoutSent && at.Sub(*s.silentSince) >= dropoutAfter {
		s.dropoutSent = true
		return true
	}
	return false
}

// findAlert returns the alert with the given ID. Caller holds s.mu.
func (s *Session) findAlert(alertID string) *alert.Alert {
	for _, a := range s.alerts {
		if a.ID == alertID {
			return a
		}
	}
	return nil
}

// snapshot builds the API view. Caller holds s.mu.
func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:        s.id,
		UserID:           s.userID,
		StartTime:        s.startTime,
		EndTime:          s.endTime,
		Location:         s.location,
		DistressDetected: s.distress,
		Keywords:         append([]string(nil), s.keywords...),
		TranscriptLen:    len(s.transcript),
		AlertCount:       len(s.alerts),
		FramesSeen:       s.framesSeen,
	}
	if s.active != nil && !s.active.Terminal() {
		snap.ActiveAlertID = s.active.ID
	}
	return snap
}

// alertViews projects all alerts. Caller holds s.mu.
func (s *Session) alertViews() []AlertView {
	views := make([]AlertView, 0, len(s.alerts))
	for _, a := range s.alerts {
		views = append(views, AlertView{
			AlertID:    a.ID,
			Type:       a.Type,
			Confidence: a.Confidence,
			Status:     a.Status,
			Location:   a.Location,
			CreatedAt:  a.CreatedAt,
			ResolvedAt: a.ResolvedAt,
		})
	}
	return views
}
