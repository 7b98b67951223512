package session

import (
	"time"

	"github.com/MikeSquared-Agency/guardian/internal/alert"
	"github.com/MikeSquared-Agency/guardian/internal/events"
)

// SummaryRecord is the immutable final record of a completed safety call,
// handed to the persistence collaborator exactly once per session.
type SummaryRecord struct {
	SessionID        string            `json:"session_id"`
	UserID           string            `json:"user_id"`
	StartTime        time.Time         `json:"start_time"`
	EndTime          time.Time         `json:"end_time"`
	DurationSeconds  int64             `json:"duration_seconds"`
	Location         *events.Location  `json:"location,omitempty"`
	DistressDetected bool              `json:"distress_detected"`
	Keywords         []string          `json:"keywords_detected"`
	AlertTriggered   bool              `json:"alert_triggered"`
	FirstAlertID     string            `json:"first_alert_id,omitempty"`
	Transcript       []TranscriptEntry `json:"transcript"`
}

// assembleSummary is the pure transform from a finalized session to its
// persisted-record shape. It performs no I/O and copies everything it
// returns, so the record stays valid after the session is dropped.
// Caller holds s.mu and has already finalized the session.
func assembleSummary(s *Session) SummaryRecord {
	rec := SummaryRecord{
		SessionID:        s.id,
		UserID:           s.userID,
		StartTime:        s.startTime,
		EndTime:          *s.endTime,
		DistressDetected: s.distress,
		Keywords:         append([]string(nil), s.keywords...),
		Transcript:       append([]TranscriptEntry(nil), s.transcript...),
	}

	if d := rec.EndTime.Sub(rec.StartTime); d > 0 {
		rec.DurationSeconds = int64(d.Seconds())
	}

	if s.location != nil {
		loc := *s.location
		rec.Location = &loc
	}

	if len(s.alerts) > 0 {
		rec.FirstAlertID = s.alerts[0].ID
	}
	for _, a := range s.alerts {
		if a.Status == alert.StatusTriggered {
			rec.AlertTriggered = true
			break
		}
	}

	return rec
}
