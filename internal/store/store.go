// Package store persists pipeline output: records, links, learning
// events, and retrain audit entries. From the pipeline's perspective the
// store is append-only — records are written once per document run and
// only status-transitioned by external review afterwards.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/aegis-advisory/guidance-cli/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface for the extraction pipeline.
type Store interface {
	// Runs. SaveRun persists a document's records and links in one
	// transaction; partial writes are never visible.
	SaveRun(ctx context.Context, result *model.RunResult) error
	GetRun(ctx context.Context, docHash string) (*model.RunResult, error)

	// Fingerprints returns the dedupe keys of all surviving records of a
	// kind, excluding one document's own rows so reprocessing that
	// document stays idempotent.
	Fingerprints(ctx context.Context, kind model.Kind, excludeDoc string) (map[string]bool, error)

	// Learning events.
	CreateLearningEvent(ctx context.Context, ev *model.LearningEvent) error
	SetLearningEventApproval(ctx context.Context, id string, approved bool) error
	GetLearningEvent(ctx context.Context, id string) (*model.LearningEvent, error)
	RecentLearningEvents(ctx context.Context, limit int) ([]model.LearningEvent, error)
	CountLearningEventsSince(ctx context.Context, since time.Time) (int, error)

	// Retrain audit.
	CreateRetrainEvent(ctx context.Context, ev *model.RetrainEvent) error
	LastRetrainEvent(ctx context.Context) (*model.RetrainEvent, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
