// Package ingester consumes the engine's ingress streams from NATS
// JetStream: carrier media frames, synthesized provider audio, transcript
// and analysis events, and call lifecycle events. Media and lifecycle
// streams funnel into the session manager; transcoded wide-band audio is
// published back out for the analysis provider and synthesized audio is
// transcoded down to the carrier format for the playback leg. Malformed
// payloads are parked on safecall.dlq.> and never crash a consumer.
package ingester

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/guardian/internal/audio"
	"github.com/MikeSquared-Agency/guardian/internal/events"
	"github.com/MikeSquared-Agency/guardian/internal/session"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Engine is the slice of the session manager the ingester drives.
type Engine interface {
	StartSession(id, userID string, loc *events.Location, start time.Time) (string, error)
	HandleMedia(frame events.MediaFrame) ([]byte, error)
	HandleTranscript(ev events.TranscriptEvent) error
	Finalize(sessionID string, end time.Time) (session.SummaryRecord, error)
}

// DLQHandlerFunc is called for every payload parked on the DLQ.
type DLQHandlerFunc func(ctx context.Context, subject string, data []byte)

type Ingester struct {
	nc           *nats.Conn
	js           jetstream.JetStream
	engine       Engine
	analysisRate int
	subs         []jetstream.ConsumeContext
	dlqHandler   DLQHandlerFunc
	ctx          context.Context
	cancel       context.CancelFunc

	// publish is swappable for tests; defaults to nc.Publish.
	publish func(subject string, data []byte) error
}

// streamSubjects maps JetStream stream names to the subjects Guardian consumes.
var streamSubjects = map[string][]string{
	"MEDIA":       {"safecall.media.>"},
	"SYNTHESIS":   {"safecall.tts.>"},
	"TRANSCRIPT":  {"safecall.transcript.>"},
	"CALL_EVENTS": {"safecall.call.>"},
}

func New(natsURL string, engine Engine, analysisRate int) (*Ingester, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	ictx, ican := context.WithCancel(context.Background())
	ing := &Ingester{
		nc:           nc,
		js:           js,
		engine:       engine,
		analysisRate: analysisRate,
		ctx:          ictx,
		cancel:       ican,
		publish:      nc.Publish,
	}
	return ing, nil
}

// Start binds to durable consumers on each stream and begins consuming.
func (ing *Ingester) Start() error {
	ctx := context.Background()

	for stream, subjects := range streamSubjects {
		if err := ing.ensureStream(ctx, stream, subjects); err != nil {
			slog.Warn("stream not available, skipping", "stream", stream, "error", err)
			continue
		}

		consumerName := fmt.Sprintf("guardian-%s", stream)
		if err := ing.subscribe(ctx, stream, consumerName); err != nil {
			return fmt.Errorf("subscribe to %s: %w", stream, err)
		}

		slog.Info("subscribed to stream", "stream", stream, "consumer", consumerName)
	}

	return nil
}

func (ing *Ingester) ensureStream(ctx context.Context, name string, subjects []string) error {
	_, err := ing.js.Stream(ctx, name)
	if err == nil {
		return nil
	}

	cfg := jetstream.StreamConfig{
		Name:      name,
		Subjects:  subjects,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
		Replicas:  1,
	}
	if name == "MEDIA" || name == "SYNTHESIS" {
		// Audio frames are worthless minutes after the call; keep the
		// stream shallow instead of spooling hours of PCM to disk.
		cfg.MaxAge = 10 * time.Minute
		cfg.Storage = jetstream.MemoryStorage
	} else {
		cfg.MaxAge = 7 * 24 * time.Hour
	}

	if _, err := ing.js.CreateStream(ctx, cfg); err != nil {
		return fmt.Errorf("create stream %s: %w", name, err)
	}

	slog.Info("created stream", "name", name, "subjects", subjects)
	return nil
}

func (ing *Ingester) subscribe(ctx context.Context, stream, consumerName string) error {
	consumer, err := ing.js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    3,
		AckWait:       30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	var handler func(subject string, data []byte)
	switch stream {
	case "MEDIA":
		handler = ing.handleMedia
	case "SYNTHESIS":
		handler = ing.handleSynthesis
	case "TRANSCRIPT":
		handler = ing.handleTranscript
	case "CALL_EVENTS":
		handler = ing.handleCallEvent
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		handler(msg.Subject(), msg.Data())
		// Ack unconditionally: every failure mode below degrades to "no
		// distress signal" or a DLQ park, and redelivering stale audio or
		// transcripts to a safety call helps nobody.
		if err := msg.Ack(); err != nil {
			slog.Warn("failed to ack message", "subject", msg.Subject(), "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", consumerName, err)
	}

	ing.subs = append(ing.subs, cc)
	return nil
}

// handleMedia transcodes one carrier frame and forwards the wide-band
// result to the analysis provider's subject.
func (ing *Ingester) handleMedia(subject string, data []byte) {
	frame, err := events.ParseMediaFrame(data)
	if err != nil {
		ing.park(subject, data, err)
		return
	}

	wideband, err := ing.engine.HandleMedia(frame)
	if err != nil {
		// Unknown or finalized session: absence of signal, not an error path.
		slog.Debug("media frame dropped", "session_id", frame.SessionID, "error", err)
		return
	}

	out := fmt.Sprintf("safecall.analysis.%s", frame.SessionID)
	if err := ing.publish(out, wideband); err != nil {
		slog.Warn("failed to publish analysis audio", "subject", out, "error", err)
	}
}

// handleSynthesis transcodes provider-synthesized wide-band PCM down to the
// carrier format for the telephony gateway's playback leg.
func (ing *Ingester) handleSynthesis(subject string, data []byte) {
	frame, err := events.ParseMediaFrame(data)
	if err != nil {
		ing.park(subject, data, err)
		return
	}

	carrier, err := audio.ToCarrier(frame.Payload, ing.analysisRate)
	if err != nil {
		ing.park(subject, data, err)
		return
	}

	out := fmt.Sprintf("safecall.playback.%s", frame.SessionID)
	if err := ing.publish(out, carrier); err != nil {
		slog.Warn("failed to publish playback audio", "subject", out, "error", err)
	}
}

func (ing *Ingester) handleTranscript(subject string, data []byte) {
	ev, err := events.ParseTranscriptEvent(data)
	if err != nil {
		ing.park(subject, data, err)
		return
	}

	if err := ing.engine.HandleTranscript(ev); err != nil {
		slog.Debug("transcript event dropped", "session_id", ev.SessionID, "error", err)
	}
}

func (ing *Ingester) handleCallEvent(subject string, data []byte) {
	ev, err := events.ParseCallEvent(data)
	if err != nil {
		ing.park(subject, data, err)
		return
	}

	switch ev.EventType {
	case events.TypeCallStarted:
		if _, err := ing.engine.StartSession(ev.SessionID, ev.UserID, ev.Location, ev.Timestamp); err != nil {
			slog.Error("failed to start session", "session_id", ev.SessionID, "error", err)
		}
	case events.TypeCallEnded:
		if _, err := ing.engine.Finalize(ev.SessionID, ev.Timestamp); err != nil {
			slog.Warn("failed to finalize session", "session_id", ev.SessionID, "error", err)
		}
	}
}

// park republishes an undecodable payload to the DLQ subject and notifies
// the registered handler.
func (ing *Ingester) park(subject string, data []byte, cause error) {
	slog.Warn("malformed payload, parking on DLQ", "subject", subject, "error", cause)

	if err := ing.publish("safecall.dlq."+subject, data); err != nil {
		slog.Warn("failed to publish DLQ entry", "subject", subject, "error", err)
	}
	if ing.dlqHandler != nil {
		ing.dlqHandler(ing.ctx, subject, data)
	}
}

// SetDLQHandler registers a callback for parked payloads.
func (ing *Ingester) SetDLQHandler(fn DLQHandlerFunc) {
	ing.dlqHandler = fn
}

// Publish sends a message to NATS (used for alert-raised events and the
// engine's own lifecycle announcements).
func (ing *Ingester) Publish(subject string, data []byte) error {
	return ing.publish(subject, data)
}

// Close drains subscriptions and closes the NATS connection.
func (ing *Ingester) Close() {
	ing.cancel()
	for _, cc := range ing.subs {
		cc.Stop()
	}
	ing.nc.Drain()
}
