package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/guardian/internal/session"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists alert records and call summaries. Schema management lives
// with the platform team; the expected tables are:
//
//	guardian_alerts(alert_id PK, user_id, session_id, type, confidence,
//	                latitude, longitude, status, created_at, resolved_at)
//	guardian_call_summaries(session_id PK, user_id, start_time, end_time,
//	                duration_seconds, latitude, longitude, distress_detected,
//	                keywords jsonb, alert_triggered, first_alert_id,
//	                transcript jsonb)
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// InsertAlerts writes terminal alert records. Conflicting alert IDs are
// ignored: a redelivered record after a crash must not clobber the row the
// first delivery wrote.
func (s *Store) InsertAlerts(ctx context.Context, alerts []session.AlertOutcome) error {
	if len(alerts) == 0 {
		return nil
	}

	for _, a := range alerts {
		var lat, lon *float64
		if a.Location != nil {
			lat, lon = &a.Location.Latitude, &a.Location.Longitude
		}
		_, err := s.pool.Exec(ctx, `
			INSERT INTO guardian_alerts
				(alert_id, user_id, session_id, type, confidence, latitude, longitude, status, created_at, resolved_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (alert_id) DO NOTHING
		`, a.AlertID, a.UserID, a.SessionID, a.Type, a.Confidence, lat, lon, string(a.Status), a.CreatedAt, a.ResolvedAt)
		if err != nil {
			return fmt.Errorf("insert alert %s: %w", a.AlertID, err)
		}
	}

	slog.Debug("inserted alert records", "count", len(alerts))
	return nil
}

// InsertSummaries writes final call summaries. The engine promises a
// summary is issued once per session; ON CONFLICT DO NOTHING covers
// redelivery after a dispatch retry.
func (s *Store) InsertSummaries(ctx context.Context, summaries []session.SummaryRecord) error {
	if len(summaries) == 0 {
		return nil
	}

	for _, rec := range summaries {
		keywords, err := json.Marshal(rec.Keywords)
		if err != nil {
			return fmt.Errorf("marshal keywords for %s: %w", rec.SessionID, err)
		}
		transcript, err := json.Marshal(rec.Transcript)
		if err != nil {
			return fmt.Errorf("marshal transcript for %s: %w", rec.SessionID, err)
		}

		var lat, lon *float64
		if rec.Location != nil {
			lat, lon = &rec.Location.Latitude, &rec.Location.Longitude
		}
		var firstAlert *string
		if rec.FirstAlertID != "" {
			firstAlert = &rec.FirstAlertID
		}

		_, err = s.pool.Exec(ctx, `
			INSERT INTO guardian_call_summaries
				(session_id, user_id, start_time, end_time, duration_seconds,
				 latitude, longitude, distress_detected, keywords, alert_triggered,
				 first_alert_id, transcript)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (session_id) DO NOTHING
		`, rec.SessionID, rec.UserID, rec.StartTime, rec.EndTime, rec.DurationSeconds,
			lat, lon, rec.DistressDetected, keywords, rec.AlertTriggered, firstAlert, transcript)
		if err != nil {
			return fmt.Errorf("insert summary %s: %w", rec.SessionID, err)
		}
	}

	slog.Debug("inserted call summaries", "count", len(summaries))
	return nil
}
