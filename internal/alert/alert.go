// Package alert implements the per-alert countdown state machine:
//
//	pending -> countdown -> {triggered, cancelled}
//
// pending carries no timer and is informational; countdown runs a fixed
// timer whose expiry raises the alert unless a cancel lands first.
// triggered and cancelled are terminal.
//
// Alerts hold no lock of their own. Every transition — including the timer
// expiry callback — must run under the owning session's serialization point,
// which is what makes the status check-and-set race-free: whichever of
// cancel and expiry acquires the session first wins, and the loser observes
// a terminal status and becomes a reported no-op.
package alert

import (
	"errors"
	"time"

	"github.com/MikeSquared-Agency/guardian/internal/events"
	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCountdown Status = "countdown"
	StatusTriggered Status = "triggered"
	StatusCancelled Status = "cancelled"
)

// ErrNotCancellable is returned when cancel is attempted on an alert whose
// status is not exactly countdown.
var ErrNotCancellable = errors.New("alert: not cancellable")

type Alert struct {
	ID         string
	UserID     string
	SessionID  string
	Type       string
	Confidence float64
	Location   *events.Location
	Status     Status
	CreatedAt  time.Time
	ResolvedAt *time.Time

	timer *time.Timer
}

// New creates a pending alert.
func New(userID, sessionID, alertType string, confidence float64, loc *events.Location) *Alert {
	return &Alert{
		ID:         uuid.New().String(),
		UserID:     userID,
		SessionID:  sessionID,
		Type:       alertType,
		Confidence: confidence,
		Location:   loc,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
}

// BeginCountdown moves a pending alert into countdown and arms the timer.
// onExpire fires on its own goroutine after d; it must re-acquire the
// session's serialization point and then call Expire.
func (a *Alert) BeginCountdown(d time.Duration, onExpire func()) error {
	if a.Status != StatusPending {
		return errors.New("alert: countdown requires pending status")
	}
	a.Status = StatusCountdown
	a.timer = time.AfterFunc(d, onExpire)
	return nil
}

// Cancel transitions countdown -> cancelled and disarms the timer. Any
// other status is a no-op failure: the alert is left untouched.
func (a *Alert) Cancel() error {
	if a.Status != StatusCountdown {
		return ErrNotCancellable
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.resolve(StatusCancelled)
	return nil
}

// Expire transitions countdown -> triggered. It returns false when the
// countdown was already resolved (a cancel won the race), in which case the
// caller must not emit the alert-raised side effect.
func (a *Alert) Expire() bool {
	if a.Status != StatusCountdown {
		return false
	}
	a.resolve(StatusTriggered)
	return true
}

// Merge folds a later qualifying detection into this alert's evidence
// without restarting any running countdown. Confidence only ever grows.
func (a *Alert) Merge(confidence float64) {
	if confidence > a.Confidence {
		a.Confidence = confidence
	}
}

// Terminal reports whether the alert has reached triggered or cancelled.
func (a *Alert) Terminal() bool {
	return a.Status == StatusTriggered || a.Status == StatusCancelled
}

func (a *Alert) resolve(s Status) {
	now := time.Now().UTC()
	a.Status = s
	a.ResolvedAt = &now
}
