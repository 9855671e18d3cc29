package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/aegis-advisory/guidance-cli/internal/model"
)

// PgxPool is the subset of pgxpool.Pool the store uses. Declared as an
// interface so tests can substitute pgxmock.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool PgxPool
}

// NewPostgres connects a pool to the given DSN.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool (or a mock in tests).
func NewPostgresFromPool(pool PgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	document_hash TEXT PRIMARY KEY,
	document      JSONB NOT NULL,
	summary       JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS records (
	id            TEXT PRIMARY KEY,
	document_hash TEXT NOT NULL REFERENCES runs(document_hash),
	kind          TEXT NOT NULL,
	dedupe_key    TEXT NOT NULL,
	decision      TEXT NOT NULL,
	score         DOUBLE PRECISION NOT NULL,
	data          JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(document_hash, kind, dedupe_key)
);

CREATE TABLE IF NOT EXISTS links (
	id               TEXT PRIMARY KEY,
	document_hash    TEXT NOT NULL,
	vulnerability_id TEXT NOT NULL,
	ofc_id           TEXT NOT NULL,
	type             TEXT NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL,
	UNIQUE(vulnerability_id, ofc_id)
);

CREATE TABLE IF NOT EXISTS learning_events (
	id                   TEXT PRIMARY KEY,
	document_hash        TEXT NOT NULL,
	aggregate_confidence DOUBLE PRECISION NOT NULL,
	model_version        TEXT NOT NULL,
	vulnerability_count  INTEGER NOT NULL,
	ofc_count            INTEGER NOT NULL,
	accepted_count       INTEGER NOT NULL,
	record_count         INTEGER NOT NULL,
	approved             BOOLEAN NOT NULL DEFAULT false,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS retrain_events (
	id           TEXT PRIMARY KEY,
	reasons      JSONB NOT NULL,
	window_size  INTEGER NOT NULL,
	triggered_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_document ON records(document_hash);
CREATE INDEX IF NOT EXISTS idx_records_kind_key ON records(kind, dedupe_key);
CREATE INDEX IF NOT EXISTS idx_links_document ON links(document_hash);
CREATE INDEX IF NOT EXISTS idx_learning_events_created ON learning_events(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, result *model.RunResult) error {
	docJSON, err := json.Marshal(result.Document)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal document")
	}
	summaryJSON, err := json.Marshal(result.Summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save run")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	_, err = tx.Exec(ctx,
		`INSERT INTO runs (document_hash, document, summary, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (document_hash) DO UPDATE SET summary = EXCLUDED.summary, updated_at = EXCLUDED.updated_at`,
		result.Document.Hash, docJSON, summaryJSON, now, now,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: upsert run")
	}

	insertRecord := func(rec model.Record) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal record")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO records (id, document_hash, kind, dedupe_key, decision, score, data, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (document_hash, kind, dedupe_key) DO NOTHING`,
			rec.ID, rec.DocumentHash, string(rec.Kind), rec.DedupeKey,
			string(rec.Decision), rec.Score, data, now,
		)
		return eris.Wrapf(err, "postgres: insert record %s", rec.ID)
	}

	for _, rec := range result.Vulnerabilities {
		if err := insertRecord(rec); err != nil {
			return err
		}
	}
	for _, rec := range result.OptionsForConsideration {
		if err := insertRecord(rec); err != nil {
			return err
		}
	}

	for _, link := range result.VulnerabilityOFCLinks {
		_, err := tx.Exec(ctx,
			`INSERT INTO links (id, document_hash, vulnerability_id, ofc_id, type, confidence)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (vulnerability_id, ofc_id) DO NOTHING`,
			link.ID, result.Document.Hash, link.VulnerabilityID, link.OFCID,
			string(link.Type), link.Confidence,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert link %s", link.ID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit save run")
}

func (s *PostgresStore) GetRun(ctx context.Context, docHash string) (*model.RunResult, error) {
	var docJSON, summaryJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT document, summary FROM runs WHERE document_hash = $1`, docHash,
	).Scan(&docJSON, &summaryJSON)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", docHash)
	}

	result := &model.RunResult{}
	if err := json.Unmarshal(docJSON, &result.Document); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal document")
	}
	if err := json.Unmarshal(summaryJSON, &result.Summary); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal summary")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT data FROM records WHERE document_hash = $1 ORDER BY created_at, id`, docHash,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list records %s", docHash)
	}
	defer rows.Close()

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		var rec model.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal record")
		}
		if rec.Kind == model.KindVulnerability {
			result.Vulnerabilities = append(result.Vulnerabilities, rec)
		} else {
			result.OptionsForConsideration = append(result.OptionsForConsideration, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate records")
	}

	linkRows, err := s.pool.Query(ctx,
		`SELECT id, vulnerability_id, ofc_id, type, confidence FROM links WHERE document_hash = $1 ORDER BY id`, docHash,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list links %s", docHash)
	}
	defer linkRows.Close()

	for linkRows.Next() {
		var link model.Link
		var typ string
		if err := linkRows.Scan(&link.ID, &link.VulnerabilityID, &link.OFCID, &typ, &link.Confidence); err != nil {
			return nil, eris.Wrap(err, "postgres: scan link")
		}
		link.Type = model.LinkType(typ)
		result.VulnerabilityOFCLinks = append(result.VulnerabilityOFCLinks, link)
	}
	if err := linkRows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate links")
	}

	return result, nil
}

func (s *PostgresStore) Fingerprints(ctx context.Context, kind model.Kind, excludeDoc string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT dedupe_key FROM records WHERE kind = $1 AND document_hash != $2`, string(kind), excludeDoc,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list %s fingerprints", kind)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fingerprint")
		}
		out[key] = true
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate fingerprints")
}

func (s *PostgresStore) CreateLearningEvent(ctx context.Context, ev *model.LearningEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO learning_events
		 (id, document_hash, aggregate_confidence, model_version, vulnerability_count, ofc_count, accepted_count, record_count, approved, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ev.ID, ev.DocumentHash, ev.AggregateConfidence, ev.ModelVersion,
		ev.VulnerabilityCount, ev.OFCCount, ev.AcceptedCount, ev.RecordCount,
		ev.Approved, ev.CreatedAt, ev.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert learning event")
}

func (s *PostgresStore) SetLearningEventApproval(ctx context.Context, id string, approved bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE learning_events SET approved = $1, updated_at = $2 WHERE id = $3`,
		approved, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update learning event %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "learning event %s", id)
	}
	return nil
}

func (s *PostgresStore) GetLearningEvent(ctx context.Context, id string) (*model.LearningEvent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, document_hash, aggregate_confidence, model_version, vulnerability_count, ofc_count, accepted_count, record_count, approved, created_at, updated_at
		 FROM learning_events WHERE id = $1`, id,
	)
	var ev model.LearningEvent
	err := row.Scan(
		&ev.ID, &ev.DocumentHash, &ev.AggregateConfidence, &ev.ModelVersion,
		&ev.VulnerabilityCount, &ev.OFCCount, &ev.AcceptedCount, &ev.RecordCount,
		&ev.Approved, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get learning event %s", id)
	}
	return &ev, nil
}

func (s *PostgresStore) RecentLearningEvents(ctx context.Context, limit int) ([]model.LearningEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_hash, aggregate_confidence, model_version, vulnerability_count, ofc_count, accepted_count, record_count, approved, created_at, updated_at
		 FROM learning_events ORDER BY created_at DESC, id DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list learning events")
	}
	defer rows.Close()

	var out []model.LearningEvent
	for rows.Next() {
		var ev model.LearningEvent
		err := rows.Scan(
			&ev.ID, &ev.DocumentHash, &ev.AggregateConfidence, &ev.ModelVersion,
			&ev.VulnerabilityCount, &ev.OFCCount, &ev.AcceptedCount, &ev.RecordCount,
			&ev.Approved, &ev.CreatedAt, &ev.UpdatedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan learning event")
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate learning events")
}

func (s *PostgresStore) CountLearningEventsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM learning_events WHERE created_at > $1`, since,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count learning events")
}

func (s *PostgresStore) CreateRetrainEvent(ctx context.Context, ev *model.RetrainEvent) error {
	reasons, err := json.Marshal(ev.Reasons)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal retrain reasons")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO retrain_events (id, reasons, window_size, triggered_at) VALUES ($1, $2, $3, $4)`,
		ev.ID, reasons, ev.WindowSize, ev.TriggeredAt,
	)
	return eris.Wrap(err, "postgres: insert retrain event")
}

func (s *PostgresStore) LastRetrainEvent(ctx context.Context) (*model.RetrainEvent, error) {
	var ev model.RetrainEvent
	var reasons []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, reasons, window_size, triggered_at FROM retrain_events ORDER BY triggered_at DESC, id DESC LIMIT 1`,
	).Scan(&ev.ID, &reasons, &ev.WindowSize, &ev.TriggeredAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get last retrain event")
	}
	if err := json.Unmarshal(reasons, &ev.Reasons); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal retrain reasons")
	}
	return &ev, nil
}
