package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/guardian/internal/api"
	"github.com/MikeSquared-Agency/guardian/internal/config"
	"github.com/MikeSquared-Agency/guardian/internal/detector"
	"github.com/MikeSquared-Agency/guardian/internal/dispatch"
	"github.com/MikeSquared-Agency/guardian/internal/events"
	"github.com/MikeSquared-Agency/guardian/internal/ingester"
	"github.com/MikeSquared-Agency/guardian/internal/notify"
	"github.com/MikeSquared-Agency/guardian/internal/session"
	"github.com/MikeSquared-Agency/guardian/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("guardian starting",
		"port", cfg.Port,
		"nats_url", cfg.NatsURL,
		"analysis_rate", cfg.AnalysisSampleRate,
		"distress_threshold", cfg.DistressThreshold,
		"countdown", cfg.CountdownDuration,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Step 1: Connect to the persistence collaborator's database.
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// Step 2: Record dispatcher between the engine and the store.
	disp := dispatch.New(db, dispatch.Config{
		FlushInterval:  cfg.DispatchFlushInterval,
		FlushThreshold: cfg.DispatchFlushThreshold,
		BufferMax:      cfg.DispatchBufferMax,
	})
	disp.Start(ctx)

	// Step 3: Notification collaborator webhook.
	var notifier *notify.Notifier
	if cfg.NotifyWebhookURL != "" {
		notifier = notify.New(cfg.NotifyWebhookURL)
		slog.Info("alert notifier enabled")
	}

	// Step 4: Session engine. The publish func is bound after the NATS
	// connection exists; hooks only fire once ingestion has started.
	var publish func(subject string, data []byte) error

	det := detector.New(cfg.DistressKeywords, cfg.KeywordConfidence)
	mgr := session.NewManager(det, session.Options{
		DistressThreshold:  cfg.DistressThreshold,
		CountdownDuration:  cfg.CountdownDuration,
		AnalysisSampleRate: cfg.AnalysisSampleRate,
		SilenceRMS:         cfg.SilenceRMS,
		DropoutSilence:     cfg.DropoutSilence,
		Capacity:           cfg.SessionCapacity,
	}, session.Hooks{
		OnAlertRaised: func(raised events.AlertRaised) {
			// Downstream delivery must not block the session path.
			go func() {
				payload, _ := json.Marshal(raised)
				if publish != nil {
					if err := publish("safecall.alert.raised", payload); err != nil {
						slog.Warn("failed to publish alert-raised event", "alert_id", raised.AlertID, "error", err)
					}
				}
				if notifier != nil {
					nctx, ncancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer ncancel()
					if err := notifier.PostAlert(nctx, raised); err != nil {
						slog.Error("alert notification handoff failed", "alert_id", raised.AlertID, "error", err)
					}
				}
			}()
		},
		OnAlertResolved: disp.AddAlert,
		OnSummary:       disp.AddSummary,
	})

	// Step 5: Connect to NATS and start ingesting.
	ing, err := ingester.New(cfg.NatsURL, mgr, cfg.AnalysisSampleRate)
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer ing.Close()

	publish = ing.Publish
	disp.SetNATSPublisher(ing.Publish)

	if notifier != nil {
		ing.SetDLQHandler(func(ctx context.Context, subject string, data []byte) {
			if err := notifier.PostDLQAlert(ctx, subject, len(data)); err != nil {
				slog.Warn("failed to post DLQ alert", "error", err)
			}
		})
	}

	if err := ing.Start(); err != nil {
		slog.Error("failed to start ingester", "error", err)
		os.Exit(1)
	}
	slog.Info("NATS ingester started")

	// Step 6: Announce availability.
	announcement, _ := json.Marshal(map[string]any{
		"event_type": "engine.registered",
		"source":     "guardian",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"metadata":   map[string]any{"port": cfg.Port},
	})
	if err := ing.Publish("safecall.engine.registered", announcement); err != nil {
		slog.Warn("failed to publish registration event", "error", err)
	}

	// Step 7: Start HTTP API (cancel action + session reads).
	srv := api.NewServer(mgr, disp, cfg.Port)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("guardian ready", "port", cfg.Port)

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	slog.Info("shutting down", "signal", sig)
	cancel()
	disp.Wait()
	slog.Info("guardian stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
