package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-advisory/guidance-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleRun(hash string) *model.RunResult {
	now := time.Now().UTC().Truncate(time.Second)
	vuln := model.Record{
		Candidate: model.Candidate{
			ID: hash + "-v1", Kind: model.KindVulnerability,
			Text: "Lack of visitor management.", ChunkID: hash + "_chunk_0",
		},
		DocumentHash: hash,
		DedupeKey:    "lack of visitor management.",
		Score:        0.8,
		Decision:     model.DecisionAccepted,
		CreatedAt:    now,
	}
	ofc := model.Record{
		Candidate: model.Candidate{
			ID: hash + "-o1", Kind: model.KindOFC,
			Text: "Install a visitor badging system.", ChunkID: hash + "_chunk_0",
		},
		DocumentHash: hash,
		DedupeKey:    "install a visitor badging system.",
		Score:        0.75,
		Decision:     model.DecisionNeedsReview,
		CreatedAt:    now,
	}
	return &model.RunResult{
		Document: model.Document{Hash: hash, Filename: "ufc.txt"},
		Vulnerabilities:         []model.Record{vuln},
		OptionsForConsideration: []model.Record{ofc},
		VulnerabilityOFCLinks: []model.Link{{
			ID: hash + "-l1", VulnerabilityID: vuln.ID, OFCID: ofc.ID,
			Type: model.LinkInferred, Confidence: 0.7,
		}},
		Summary: model.RunSummary{Chunks: 1, Candidates: 2, Accepted: 1, NeedsReview: 1},
	}
}

func TestSQLite_SaveAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := sampleRun("doc1")
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, run.Document, got.Document)
	assert.Equal(t, run.Summary, got.Summary)
	require.Len(t, got.Vulnerabilities, 1)
	require.Len(t, got.OptionsForConsideration, 1)
	assert.Equal(t, run.Vulnerabilities[0], got.Vulnerabilities[0])
	require.Len(t, got.VulnerabilityOFCLinks, 1)
	assert.Equal(t, run.VulnerabilityOFCLinks[0], got.VulnerabilityOFCLinks[0])
}

func TestSQLite_GetRunNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_SaveRunIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := sampleRun("doc1")
	require.NoError(t, s.SaveRun(ctx, run))
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, "doc1")
	require.NoError(t, err)
	assert.Len(t, got.Vulnerabilities, 1)
	assert.Len(t, got.OptionsForConsideration, 1)
	assert.Len(t, got.VulnerabilityOFCLinks, 1)
}

func TestSQLite_FingerprintsExcludeOwnDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRun(ctx, sampleRun("doc1")))
	require.NoError(t, s.SaveRun(ctx, sampleRun("doc2")))

	fps, err := s.Fingerprints(ctx, model.KindVulnerability, "doc1")
	require.NoError(t, err)
	assert.True(t, fps["lack of visitor management."])

	// A document never sees its own fingerprints, so reprocessing stays
	// idempotent.
	fpsNone, err := s.Fingerprints(ctx, model.KindOFC, "doc1")
	require.NoError(t, err)
	assert.True(t, fpsNone["install a visitor badging system."])

	onlyDoc, err := s.Fingerprints(ctx, model.KindVulnerability, "doc1")
	require.NoError(t, err)
	assert.Len(t, onlyDoc, 1)
}

func TestSQLite_LearningEventLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	ev := &model.LearningEvent{
		ID: "ev1", DocumentHash: "doc1", AggregateConfidence: 0.72,
		ModelVersion: "extractor-v1", VulnerabilityCount: 3, OFCCount: 4,
		AcceptedCount: 5, RecordCount: 7,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateLearningEvent(ctx, ev))

	got, err := s.GetLearningEvent(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, 0.72, got.AggregateConfidence)
	assert.False(t, got.Approved)

	require.NoError(t, s.SetLearningEventApproval(ctx, "ev1", true))
	got, err = s.GetLearningEvent(ctx, "ev1")
	require.NoError(t, err)
	assert.True(t, got.Approved)

	err = s.SetLearningEventApproval(ctx, "missing", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_RecentLearningEventsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 7; i++ {
		ev := &model.LearningEvent{
			ID:           string(rune('a' + i)),
			DocumentHash: "doc1",
			ModelVersion: "extractor-v1",
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.CreateLearningEvent(ctx, ev))
	}

	recent, err := s.RecentLearningEvents(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	assert.Equal(t, "g", recent[0].ID)
	assert.Equal(t, "c", recent[4].ID)

	n, err := s.CountLearningEventsSince(ctx, base.Add(4*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLite_RetrainEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	last, err := s.LastRetrainEvent(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	now := time.Now().UTC().Truncate(time.Second)
	first := &model.RetrainEvent{
		ID: "r1", Reasons: []string{"yield=75.0%<80.0%"}, WindowSize: 5,
		TriggeredAt: now.Add(-time.Minute),
	}
	second := &model.RetrainEvent{
		ID: "r2", Reasons: []string{"new_events=4>=3"}, WindowSize: 5,
		TriggeredAt: now,
	}
	require.NoError(t, s.CreateRetrainEvent(ctx, first))
	require.NoError(t, s.CreateRetrainEvent(ctx, second))

	last, err = s.LastRetrainEvent(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "r2", last.ID)
	assert.Equal(t, []string{"new_events=4>=3"}, last.Reasons)
}
