package store

import (
	"context"

	"github.com/MikeSquared-Agency/guardian/internal/session"
)

// RecordStore is the persistence boundary consumed by the dispatch layer.
// The concrete implementation is *Store (pgx-backed). Writes are idempotent
// on primary key so at-least-once dispatch is safe.
type RecordStore interface {
	InsertAlerts(ctx context.Context, alerts []session.AlertOutcome) error
	InsertSummaries(ctx context.Context, summaries []session.SummaryRecord) error
	Close()
}
