package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/guardian/internal/events"
)

// webhookSink records incoming posts and fails the first failN of them.
type webhookSink struct {
	mu     sync.Mutex
	bodies [][]byte
	failN  int
}

func (w *webhookSink) handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.mu.Lock()
		defer w.mu.Unlock()
		w.bodies = append(w.bodies, body)
		if len(w.bodies) <= w.failN {
			rw.WriteHeader(http.StatusInternalServerError)
			return
		}
		rw.WriteHeader(http.StatusOK)
	}
}

func (w *webhookSink) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.bodies)
}

func (w *webhookSink) last() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.bodies) == 0 {
		return nil
	}
	return w.bodies[len(w.bodies)-1]
}

func newTestNotifier(url string) *Notifier {
	n := New(url)
	n.backoff = time.Millisecond
	return n
}

func testRaised() events.AlertRaised {
	return events.AlertRaised{
		AlertID:    "alert-1",
		UserID:     "user-1",
		SessionID:  "session-1",
		Type:       "explicit-distress-phrase",
		Confidence: 0.9,
		Timestamp:  time.Now().UTC(),
	}
}

func TestPostAlert_DeliversPayload(t *testing.T) {
	sink := &webhookSink{}
	srv := httptest.NewServer(sink.handler())
	defer srv.Close()

	n := newTestNotifier(srv.URL)
	if err := n.PostAlert(context.Background(), testRaised()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sink.count() != 1 {
		t.Fatalf("expected 1 post, got %d", sink.count())
	}
	var got events.AlertRaised
	if err := json.Unmarshal(sink.last(), &got); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if got.AlertID != "alert-1" || got.Type != "explicit-distress-phrase" {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestPostAlert_RetriesTransientFailure(t *testing.T) {
	sink := &webhookSink{failN: 2}
	srv := httptest.NewServer(sink.handler())
	defer srv.Close()

	n := newTestNotifier(srv.URL)
	if err := n.PostAlert(context.Background(), testRaised()); err != nil {
		t.Fatalf("expected third attempt to succeed, got %v", err)
	}
	if sink.count() != 3 {
		t.Errorf("expected 3 attempts, got %d", sink.count())
	}
}

func TestPostAlert_GivesUpAfterMaxAttempts(t *testing.T) {
	sink := &webhookSink{failN: 100}
	srv := httptest.NewServer(sink.handler())
	defer srv.Close()

	n := newTestNotifier(srv.URL)
	if err := n.PostAlert(context.Background(), testRaised()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if sink.count() != maxAttempts {
		t.Errorf("expected %d attempts, got %d", maxAttempts, sink.count())
	}
}

func TestPostAlert_ContextCancelStopsRetries(t *testing.T) {
	sink := &webhookSink{failN: 100}
	srv := httptest.NewServer(sink.handler())
	defer srv.Close()

	n := New(srv.URL) // one-second backoff keeps the retry loop waiting
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := n.PostAlert(ctx, testRaised())
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPostDLQAlert_RateLimited(t *testing.T) {
	sink := &webhookSink{}
	srv := httptest.NewServer(sink.handler())
	defer srv.Close()

	n := newTestNotifier(srv.URL)
	if err := n.PostDLQAlert(context.Background(), "safecall.media.session-1", 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Second alert inside the window is silently suppressed.
	if err := n.PostDLQAlert(context.Background(), "safecall.media.session-1", 43); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sink.count() != 1 {
		t.Errorf("expected rate limit to suppress second post, got %d posts", sink.count())
	}

	var payload map[string]any
	if err := json.Unmarshal(sink.last(), &payload); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if payload["subject"] != "safecall.media.session-1" {
		t.Errorf("unexpected dlq payload: %v", payload)
	}
}
