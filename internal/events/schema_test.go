package events

import (
	"testing"
	"time"
)

func TestParseMediaFrame(t *testing.T) {
	raw := []byte(`{"session_id":"s-1","seq":7,"payload":"//8A","timestamp":"2026-03-01T12:00:00Z"}`)

	f, err := ParseMediaFrame(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.SessionID != "s-1" || f.Seq != 7 {
		t.Errorf("unexpected frame: %+v", f)
	}
	if len(f.Payload) != 3 {
		t.Errorf("expected 3 payload bytes from base64, got %d", len(f.Payload))
	}
	if !f.Timestamp.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected timestamp: %v", f.Timestamp)
	}
}

func TestParseMediaFrame_MissingSession(t *testing.T) {
	if _, err := ParseMediaFrame([]byte(`{"seq":1}`)); err == nil {
		t.Error("expected error for frame without session_id")
	}
}

func TestParseMediaFrame_InvalidJSON(t *testing.T) {
	if _, err := ParseMediaFrame([]byte(`{not json`)); err == nil {
		t.Error("expected decode error")
	}
}

func TestParseMediaFrame_DefaultsTimestamp(t *testing.T) {
	f, err := ParseMediaFrame([]byte(`{"session_id":"s-1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Timestamp.IsZero() {
		t.Error("expected timestamp defaulted to ingestion time")
	}
}

func TestParseTranscriptEvent(t *testing.T) {
	raw := []byte(`{"session_id":"s-1","speaker":"caller","text":"help me","confidence":0.8,"timestamp":"2026-03-01T12:00:00Z"}`)

	ev, err := ParseTranscriptEvent(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Speaker != "caller" || ev.Text != "help me" || ev.Confidence != 0.8 {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestParseTranscriptEvent_ClampsConfidence(t *testing.T) {
	ev, err := ParseTranscriptEvent([]byte(`{"session_id":"s-1","confidence":1.4}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Confidence != 1 {
		t.Errorf("expected clamp to 1, got %f", ev.Confidence)
	}

	ev, err = ParseTranscriptEvent([]byte(`{"session_id":"s-1","confidence":-0.3}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Confidence != 0 {
		t.Errorf("expected clamp to 0, got %f", ev.Confidence)
	}
}

func TestParseTranscriptEvent_AudioTrigger(t *testing.T) {
	ev, err := ParseTranscriptEvent([]byte(`{"session_id":"s-1","trigger_type":"scream","confidence":0.85}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.TriggerType != "scream" || ev.Text != "" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestParseCallEvent(t *testing.T) {
	raw := []byte(`{"session_id":"s-1","user_id":"u-1","event_type":"call.started","location":{"latitude":40.7,"longitude":-74.0}}`)

	ev, err := ParseCallEvent(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.EventType != TypeCallStarted || ev.UserID != "u-1" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Location == nil || ev.Location.Latitude != 40.7 {
		t.Errorf("expected location, got %+v", ev.Location)
	}
}

func TestParseCallEvent_UnknownType(t *testing.T) {
	if _, err := ParseCallEvent([]byte(`{"session_id":"s-1","event_type":"call.paused"}`)); err == nil {
		t.Error("expected error for unknown event type")
	}
}

func TestParseCallEvent_MissingSession(t *testing.T) {
	if _, err := ParseCallEvent([]byte(`{"event_type":"call.started"}`)); err == nil {
		t.Error("expected error for missing session_id")
	}
}
