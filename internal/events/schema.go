package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Location is a latitude/longitude snapshot carried on call-start and alert events.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// MediaFrame is one carrier-format audio frame from the telephony gateway,
// published on safecall.media.<session_id>. Payload is raw 8 kHz mu-law bytes
// (base64 on the wire via encoding/json).
type MediaFrame struct {
	SessionID string    `json:"session_id"`
	Seq       uint64    `json:"seq"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptEvent is one transcript or audio-analysis result from the analysis
// provider, published on safecall.transcript.<session_id>. Transcripts lag the
// audio; only per-session ordering is guaranteed.
type TranscriptEvent struct {
	SessionID   string    `json:"session_id"`
	Speaker     string    `json:"speaker"`
	Text        string    `json:"text"`
	Confidence  float64   `json:"confidence,omitempty"`
	TriggerType string    `json:"trigger_type,omitempty"` // set for audio-only signals (e.g. scream)
	Timestamp   time.Time `json:"timestamp"`
}

// Call lifecycle event types on safecall.call.>.
const (
	TypeCallStarted = "call.started"
	TypeCallEnded   = "call.ended"
)

// CallEvent marks the start or end of a safety call.
type CallEvent struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	EventType string    `json:"event_type"`
	Location  *Location `json:"location,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertRaised is the payload published on safecall.alert.raised when a
// countdown expires, consumed by the notification and persistence services.
type AlertRaised struct {
	AlertID    string    `json:"alert_id"`
	UserID     string    `json:"user_id"`
	SessionID  string    `json:"session_id"`
	Type       string    `json:"type"`
	Confidence float64   `json:"confidence"`
	Location   *Location `json:"location,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

var errMissingSession = errors.New("missing session_id")

// ParseMediaFrame decodes a media frame payload, defaulting the timestamp to
// ingestion time. A frame without a session correlation key is unusable.
func ParseMediaFrame(raw []byte) (MediaFrame, error) {
	var f MediaFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return MediaFrame{}, fmt.Errorf("decode media frame: %w", err)
	}
	if f.SessionID == "" {
		return MediaFrame{}, errMissingSession
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
	return f, nil
}

// ParseTranscriptEvent decodes a transcript event, clamping confidence into
// [0, 1] and defaulting the timestamp. Out-of-range provider scores are
// clamped rather than rejected so a misbehaving provider degrades to a weaker
// signal instead of dropping evidence.
func ParseTranscriptEvent(raw []byte) (TranscriptEvent, error) {
	var ev TranscriptEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return TranscriptEvent{}, fmt.Errorf("decode transcript event: %w", err)
	}
	if ev.SessionID == "" {
		return TranscriptEvent{}, errMissingSession
	}
	if ev.Confidence < 0 {
		ev.Confidence = 0
	}
	if ev.Confidence > 1 {
		slog.Warn("transcript confidence out of range, clamping",
			"session_id", ev.SessionID,
			"confidence", ev.Confidence,
		)
		ev.Confidence = 1
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev, nil
}

// ParseCallEvent decodes a call lifecycle event.
func ParseCallEvent(raw []byte) (CallEvent, error) {
	var ev CallEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return CallEvent{}, fmt.Errorf("decode call event: %w", err)
	}
	if ev.SessionID == "" {
		return CallEvent{}, errMissingSession
	}
	if ev.EventType != TypeCallStarted && ev.EventType != TypeCallEnded {
		return CallEvent{}, fmt.Errorf("unknown call event type %q", ev.EventType)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev, nil
}
