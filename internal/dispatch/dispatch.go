// Package dispatch decouples the session engine from the persistence
// collaborator: alert and summary records are buffered in memory and
// flushed asynchronously, so a slow or failing database never blocks the
// media path or rolls back an alert's terminal state. Delivery is
// at-least-once; the store's inserts are idempotent.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/guardian/internal/session"
	"github.com/MikeSquared-Agency/guardian/internal/store"
)

// record is one buffered write: exactly one of the fields is set.
type record struct {
	alert   *session.AlertOutcome
	summary *session.SummaryRecord
}

type Dispatcher struct {
	store          store.RecordStore
	flushInterval  time.Duration
	flushThreshold int
	bufferMax      int

	mu              sync.Mutex
	buffer          []record
	consecutiveFail int
	natsPublish     func(subject string, data []byte) error

	done chan struct{}
}

type Config struct {
	FlushInterval  time.Duration
	FlushThreshold int
	BufferMax      int
}

func New(s store.RecordStore, cfg Config) *Dispatcher {
	return &Dispatcher{
		store:          s,
		flushInterval:  cfg.FlushInterval,
		flushThreshold: cfg.FlushThreshold,
		bufferMax:      cfg.BufferMax,
		buffer:         make([]record, 0, cfg.FlushThreshold),
		done:           make(chan struct{}),
	}
}

// SetNATSPublisher sets the function used to publish write-failure alerts back to NATS.
func (d *Dispatcher) SetNATSPublisher(fn func(subject string, data []byte) error) {
	d.natsPublish = fn
}

// AddAlert enqueues a terminal alert record for durable write.
func (d *Dispatcher) AddAlert(a session.AlertOutcome) {
	d.add(record{alert: &a})
}

// AddSummary enqueues a final call summary for durable write.
func (d *Dispatcher) AddSummary(rec session.SummaryRecord) {
	d.add(record{summary: &rec})
}

func (d *Dispatcher) add(r record) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Backpressure: drop oldest if buffer full.
	if len(d.buffer) >= d.bufferMax {
		dropped := len(d.buffer) - d.bufferMax + 1
		d.buffer = d.buffer[dropped:]
		slog.Warn("dispatch buffer overflow, dropping oldest records", "dropped", dropped, "buffer_size", d.bufferMax)
		d.publishAlert("safecall.engine.buffer_overflow", []byte(`{"message":"dispatch buffer overflow, dropping records"}`))
	}

	d.buffer = append(d.buffer, r)

	// Flush immediately if threshold reached.
	if len(d.buffer) >= d.flushThreshold {
		go d.flush()
	}
}

// Start begins the periodic flush ticker.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.flushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.flush()
			case <-ctx.Done():
				// Final flush on shutdown.
				d.flush()
				close(d.done)
				return
			}
		}
	}()
}

// Wait blocks until the dispatcher has completed its final flush.
func (d *Dispatcher) Wait() {
	<-d.done
}

// BufferLen returns the current buffer size (for health checks).
func (d *Dispatcher) BufferLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffer)
}

func (d *Dispatcher) flush() {
	d.mu.Lock()
	if len(d.buffer) == 0 {
		d.mu.Unlock()
		return
	}
	batch := d.buffer
	d.buffer = make([]record, 0, d.flushThreshold)
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var alerts []session.AlertOutcome
	var summaries []session.SummaryRecord
	for _, r := range batch {
		switch {
		case r.alert != nil:
			alerts = append(alerts, *r.alert)
		case r.summary != nil:
			summaries = append(summaries, *r.summary)
		}
	}

	if err := d.store.InsertAlerts(ctx, alerts); err != nil {
		slog.Error("failed to insert alert records", "error", err, "count", len(alerts))
		d.handleWriteFailure(batch)
		return
	}
	if err := d.store.InsertSummaries(ctx, summaries); err != nil {
		slog.Error("failed to insert call summaries", "error", err, "count", len(summaries))
		d.handleWriteFailure(batch)
		return
	}

	d.mu.Lock()
	d.consecutiveFail = 0
	d.mu.Unlock()

	slog.Debug("dispatch batch flushed", "alerts", len(alerts), "summaries", len(summaries))
}

func (d *Dispatcher) handleWriteFailure(batch []record) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.consecutiveFail++

	// Re-queue the failed batch (prepend so order is maintained). Alert
	// inserts are idempotent, so records partially written before the
	// failure are harmless on retry.
	d.buffer = append(batch, d.buffer...)

	// Trim if re-queueing caused overflow.
	if len(d.buffer) > d.bufferMax {
		d.buffer = d.buffer[len(d.buffer)-d.bufferMax:]
	}

	if d.consecutiveFail >= 3 {
		slog.Error("3 consecutive persistence write failures", "buffer_size", len(d.buffer))
		d.publishAlert("safecall.engine.write_failure", []byte(`{"message":"3 consecutive persistence write failures"}`))
	}
}

func (d *Dispatcher) publishAlert(subject string, data []byte) {
	if d.natsPublish != nil {
		if err := d.natsPublish(subject, data); err != nil {
			slog.Error("failed to publish alert", "subject", subject, "error", err)
		}
	}
}
