package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-advisory/guidance-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresFromPool(mock), mock
}

func TestPostgres_CreateLearningEvent(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now().UTC()
	ev := &model.LearningEvent{
		ID: "ev1", DocumentHash: "doc1", AggregateConfidence: 0.72,
		ModelVersion: "extractor-v1", VulnerabilityCount: 3, OFCCount: 4,
		AcceptedCount: 5, RecordCount: 7,
		CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectExec("INSERT INTO learning_events").
		WithArgs("ev1", "doc1", 0.72, "extractor-v1", 3, 4, 5, 7, false, now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.CreateLearningEvent(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SetLearningEventApprovalNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE learning_events").
		WithArgs(true, pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.SetLearningEventApproval(context.Background(), "missing", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_LastRetrainEventEmpty(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, reasons, window_size, triggered_at FROM retrain_events").
		WillReturnRows(pgxmock.NewRows([]string{"id", "reasons", "window_size", "triggered_at"}))

	ev, err := s.LastRetrainEvent(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestPostgres_Fingerprints(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT dedupe_key FROM records").
		WithArgs("vulnerability", "doc2").
		WillReturnRows(pgxmock.NewRows([]string{"dedupe_key"}).
			AddRow("lack of visitor management.").
			AddRow("unsecured loading dock doors."))

	fps, err := s.Fingerprints(context.Background(), model.KindVulnerability, "doc2")
	require.NoError(t, err)
	assert.True(t, fps["lack of visitor management."])
	assert.Len(t, fps, 2)
}

func TestPostgres_GetRunNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT document, summary FROM runs").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"document", "summary"}))

	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
