package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/guardian/internal/alert"
	"github.com/MikeSquared-Agency/guardian/internal/audio"
	"github.com/MikeSquared-Agency/guardian/internal/detector"
	"github.com/MikeSquared-Agency/guardian/internal/events"
	"github.com/google/uuid"
)

var (
	// ErrCapacity is returned when the live-session registry is full.
	ErrCapacity = errors.New("session: registry at capacity")
	// ErrDuplicate is returned when a call-start reuses a live session ID.
	ErrDuplicate = errors.New("session: already exists")
)

// Confidence assigned to an engine-synthesized silence-then-dropout signal.
// Below the default auto-alert threshold: sustained silence alone raises a
// pending alert for triage, not a countdown.
const dropoutConfidence = 0.6

// AlertOutcome is the terminal (or finalize-time) state of an alert, handed
// to the persistence collaborator.
type AlertOutcome struct {
	AlertID    string
	UserID     string
	SessionID  string
	Type       string
	Confidence float64
	Location   *events.Location
	Status     alert.Status
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// Hooks are the engine's outbound side effects. All hooks are invoked
// outside any session lock; OnAlertRaised fires at most once per alert.
// Downstream failure in a hook must not reach back into session state, so
// implementations dispatch asynchronously.
type Hooks struct {
	OnAlertRaised   func(events.AlertRaised)
	OnAlertResolved func(AlertOutcome)
	OnSummary       func(SummaryRecord)
}

// Options configures the engine's thresholds and timing.
type Options struct {
	DistressThreshold  float64
	CountdownDuration  time.Duration
	AnalysisSampleRate int
	SilenceRMS         float64
	DropoutSilence     time.Duration
	Capacity           int
}

// Manager is the registry of live sessions and the orchestration layer
// between ingress events, the distress detector, and alert countdowns.
// Sessions are isolated from each other: the manager's own lock guards only
// the registry maps, never session state.
type Manager struct {
	det   *detector.Detector
	opts  Options
	hooks Hooks

	mu       sync.Mutex
	sessions map[string]*Session

	idxMu   sync.Mutex
	byAlert map[string]string // alert ID -> session ID
}

func NewManager(det *detector.Detector, opts Options, hooks Hooks) *Manager {
	if opts.Capacity <= 0 {
		opts.Capacity = 4096
	}
	return &Manager{
		det:      det,
		opts:     opts,
		hooks:    hooks,
		sessions: make(map[string]*Session),
		byAlert:  make(map[string]string),
	}
}

// StartSession registers a new live call. An empty id gets a generated one;
// the location snapshot is taken once here and never mutated afterward.
func (m *Manager) StartSession(id, userID string, loc *events.Location, start time.Time) (string, error) {
	if id == "" {
		id = uuid.New().String()
	}
	if start.IsZero() {
		start = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	if len(m.sessions) >= m.opts.Capacity {
		return "", ErrCapacity
	}
	m.sessions[id] = newSession(id, userID, loc, start)

	slog.Info("session started", "session_id", id, "user_id", userID, "has_location", loc != nil)
	return id, nil
}

// HandleMedia transcodes one carrier frame to wide-band PCM for the
// analysis provider and feeds the silence tracker. An undecodable frame is
// replaced by silence of equal nominal duration so stream timing holds.
func (m *Manager) HandleMedia(frame events.MediaFrame) ([]byte, error) {
	s, err := m.lookup(frame.SessionID)
	if err != nil {
		return nil, err
	}

	wideband, err := audio.ToWideband(frame.Payload, m.opts.AnalysisSampleRate)
	if err != nil {
		slog.Warn("media frame decode failed, substituting silence",
			"session_id", frame.SessionID,
			"seq", frame.Seq,
			"error", err,
		)
		// Same nominal duration: one carrier byte is one 8 kHz sample.
		n := len(frame.Payload) * m.opts.AnalysisSampleRate / audio.CarrierRate
		wideband = make([]byte, n*2)
	}
	silent := audio.IsSilence(wideband, m.opts.SilenceRMS)

	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return nil, ErrFinalized
	}
	dropout := s.noteMedia(silent, frame.Timestamp, m.opts.DropoutSilence)
	if dropout {
		slog.Warn("sustained silence on live call", "session_id", s.id, "window", m.opts.DropoutSilence)
		m.applySignal(s, m.det.EvaluateAudio(detector.TriggerDropout, dropoutConfidence))
	}
	s.mu.Unlock()

	return wideband, nil
}

// HandleTranscript appends a transcript utterance (when the event carries
// text) and runs distress detection over it. Events tagged with an audio
// trigger type carry the provider's own confidence straight through.
func (m *Manager) HandleTranscript(ev events.TranscriptEvent) error {
	s, err := m.lookup(ev.SessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Text != "" {
		if err := s.appendTranscript(ev.Speaker, ev.Text, ev.Timestamp); err != nil {
			return err
		}
		m.applySignal(s, m.det.Evaluate(ev.Text, s.keywordSet))
	} else if s.finalized {
		return ErrFinalized
	}

	if ev.TriggerType != "" {
		m.applySignal(s, m.det.EvaluateAudio(ev.TriggerType, ev.Confidence))
	}
	return nil
}

// applySignal folds one detector result into the session, honoring the
// invariants: the keyword set and distress flag only grow, and at most one
// alert per session is ever in countdown — a qualifying detection during an
// active countdown merges evidence without restarting the clock.
// Caller holds s.mu.
func (m *Manager) applySignal(s *Session, res detector.Result) {
	if s.finalized {
		return
	}
	if res.Confidence == 0 && len(res.NewKeywords) == 0 {
		return
	}

	s.addKeywords(res.NewKeywords)

	if res.Confidence >= m.opts.DistressThreshold {
		s.distress = true

		if s.active != nil {
			s.active.Merge(res.Confidence)
			if s.active.Status == alert.StatusPending {
				m.arm(s, s.active)
			}
			return
		}
		a := alert.New(s.userID, s.id, res.TriggerType, res.Confidence, s.location)
		s.alerts = append(s.alerts, a)
		s.active = a
		m.registerAlert(a.ID, s.id)
		m.arm(s, a)
		return
	}

	if res.Confidence > 0 {
		if s.active != nil {
			s.active.Merge(res.Confidence)
			return
		}
		// Informational alert: no countdown, not cancellable, can be
		// escalated by a later detection past threshold.
		a := alert.New(s.userID, s.id, res.TriggerType, res.Confidence, s.location)
		s.alerts = append(s.alerts, a)
		s.active = a
		m.registerAlert(a.ID, s.id)
		slog.Info("pending alert created",
			"session_id", s.id,
			"alert_id", a.ID,
			"type", a.Type,
			"confidence", a.Confidence,
		)
	}
}

// arm starts the countdown on an alert. Caller holds s.mu.
func (m *Manager) arm(s *Session, a *alert.Alert) {
	if err := a.BeginCountdown(m.opts.CountdownDuration, func() {
		m.onExpire(s.id, a.ID)
	}); err != nil {
		slog.Error("failed to arm countdown", "session_id", s.id, "alert_id", a.ID, "error", err)
		return
	}
	slog.Warn("alert countdown started",
		"session_id", s.id,
		"alert_id", a.ID,
		"type", a.Type,
		"confidence", a.Confidence,
		"duration", m.opts.CountdownDuration,
	)
}

// onExpire runs on the timer goroutine. It re-acquires the session lock and
// lets the status check-and-set decide the race against cancel: only the
// winner emits the alert-raised side effect.
func (m *Manager) onExpire(sessionID, alertID string) {
	s, err := m.lookup(sessionID)
	if err != nil {
		// Session already finalized and handed off; finalize resolved the alert.
		return
	}

	s.mu.Lock()
	a := s.findAlert(alertID)
	if a == nil || !a.Expire() {
		s.mu.Unlock()
		return
	}
	if s.active == a {
		s.active = nil
	}
	raised := events.AlertRaised{
		AlertID:    a.ID,
		UserID:     a.UserID,
		SessionID:  a.SessionID,
		Type:       a.Type,
		Confidence: a.Confidence,
		Location:   a.Location,
		Timestamp:  time.Now().UTC(),
	}
	outcome := m.outcome(a)
	s.mu.Unlock()

	slog.Error("alert triggered", "session_id", sessionID, "alert_id", alertID, "type", raised.Type)
	if m.hooks.OnAlertRaised != nil {
		m.hooks.OnAlertRaised(raised)
	}
	if m.hooks.OnAlertResolved != nil {
		m.hooks.OnAlertResolved(outcome)
	}
}

// Cancel attempts the user cancel action on an alert. It succeeds only
// while the alert is in countdown; any other status returns
// alert.ErrNotCancellable with no state change.
func (m *Manager) Cancel(alertID string) error {
	m.idxMu.Lock()
	sessionID, ok := m.byAlert[alertID]
	m.idxMu.Unlock()
	if !ok {
		return ErrAlertNotFound
	}

	s, err := m.lookup(sessionID)
	if err != nil {
		return ErrAlertNotFound
	}

	s.mu.Lock()
	a := s.findAlert(alertID)
	if a == nil {
		s.mu.Unlock()
		return ErrAlertNotFound
	}
	if err := a.Cancel(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.active == a {
		s.active = nil
	}
	outcome := m.outcome(a)
	s.mu.Unlock()

	slog.Info("alert cancelled", "session_id", sessionID, "alert_id", alertID)
	if m.hooks.OnAlertResolved != nil {
		m.hooks.OnAlertResolved(outcome)
	}
	return nil
}

// Finalize ends a call: it stamps end_time, rejects all later mutation,
// forces a live countdown to cancelled (the call that would have confirmed
// the emergency has ended), assembles the immutable summary, and removes
// the session from the registry. The summary is handed off exactly once.
func (m *Manager) Finalize(sessionID string, end time.Time) (SummaryRecord, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return SummaryRecord{}, err
	}
	if end.IsZero() {
		end = time.Now().UTC()
	}

	var outcomes []AlertOutcome

	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return SummaryRecord{}, ErrFinalized
	}
	s.finalized = true
	s.endTime = &end

	for _, a := range s.alerts {
		switch a.Status {
		case alert.StatusCountdown:
			if err := a.Cancel(); err == nil {
				slog.Info("finalize cancelled live countdown", "session_id", s.id, "alert_id", a.ID)
				outcomes = append(outcomes, m.outcome(a))
			}
		case alert.StatusPending:
			// Never escalated; persist as-is.
			outcomes = append(outcomes, m.outcome(a))
		}
	}
	s.active = nil
	summary := assembleSummary(s)
	s.mu.Unlock()

	m.remove(s)

	for _, o := range outcomes {
		if m.hooks.OnAlertResolved != nil {
			m.hooks.OnAlertResolved(o)
		}
	}
	if m.hooks.OnSummary != nil {
		m.hooks.OnSummary(summary)
	}

	slog.Info("session finalized",
		"session_id", summary.SessionID,
		"duration_s", summary.DurationSeconds,
		"distress", summary.DistressDetected,
		"alert_triggered", summary.AlertTriggered,
	)
	return summary, nil
}

// Snapshot returns the API view of a live session.
func (m *Manager) Snapshot(sessionID string) (Snapshot, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

// Alerts returns the API view of a live session's alerts.
func (m *Manager) Alerts(sessionID string) ([]AlertView, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alertViews(), nil
}

// LiveCount reports the number of live sessions (for health checks).
func (m *Manager) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) lookup(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return s, nil
}

func (m *Manager) registerAlert(alertID, sessionID string) {
	m.idxMu.Lock()
	m.byAlert[alertID] = sessionID
	m.idxMu.Unlock()
}

// remove drops a finalized session and its alert index entries. The engine
// does not retain the aggregate after the summary handoff.
func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()

	m.idxMu.Lock()
	for _, a := range s.alerts {
		delete(m.byAlert, a.ID)
	}
	m.idxMu.Unlock()
}

func (m *Manager) outcome(a *alert.Alert) AlertOutcome {
	return AlertOutcome{
		AlertID:    a.ID,
		UserID:     a.UserID,
		SessionID:  a.SessionID,
		Type:       a.Type,
		Confidence: a.Confidence,
		Location:   a.Location,
		Status:     a.Status,
		CreatedAt:  a.CreatedAt,
		ResolvedAt: a.ResolvedAt,
	}
}
