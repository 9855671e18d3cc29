// Package learning records per-document feedback events and watches them
// for retraining signals. Both halves talk to the pipeline only through
// the store: the recorder appends events, the monitor reads them back.
package learning

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aegis-advisory/guidance-cli/internal/config"
	"github.com/aegis-advisory/guidance-cli/internal/model"
	"github.com/aegis-advisory/guidance-cli/internal/store"
)

// Recorder emits one LearningEvent per completed document run.
type Recorder struct {
	store        store.Store
	modelVersion string
}

func NewRecorder(st store.Store, cfg config.LearningConfig) *Recorder {
	version := cfg.ModelVersion
	if version == "" {
		version = "extractor-v1"
	}
	return &Recorder{store: st, modelVersion: version}
}

// Record writes the feedback event for a finished run. A write failure is
// logged as a warning and swallowed: feedback is a side channel and never
// fails the document.
func (r *Recorder) Record(ctx context.Context, result *model.RunResult) *model.LearningEvent {
	now := time.Now().UTC()
	ev := &model.LearningEvent{
		ID:                  uuid.NewString(),
		DocumentHash:        result.Document.Hash,
		AggregateConfidence: aggregateConfidence(result.OptionsForConsideration),
		ModelVersion:        r.modelVersion,
		VulnerabilityCount:  len(result.Vulnerabilities),
		OFCCount:            len(result.OptionsForConsideration),
		AcceptedCount:       result.Summary.Accepted,
		RecordCount:         len(result.Vulnerabilities) + len(result.OptionsForConsideration),
		Approved:            false,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := r.store.CreateLearningEvent(ctx, ev); err != nil {
		zap.L().Warn("learning: failed to record event",
			zap.String("document", result.Document.Hash),
			zap.Error(err),
		)
		return nil
	}

	zap.L().Info("learning: recorded event",
		zap.String("event", ev.ID),
		zap.String("document", ev.DocumentHash),
		zap.Float64("aggregate_confidence", ev.AggregateConfidence),
	)
	return ev
}

// aggregateConfidence is the mean score across the document's OFC records,
// zero when the document produced none.
func aggregateConfidence(ofcs []model.Record) float64 {
	if len(ofcs) == 0 {
		return 0
	}
	sum := 0.0
	for _, rec := range ofcs {
		sum += rec.Score
	}
	return sum / float64(len(ofcs))
}
