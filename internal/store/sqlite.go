package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/aegis-advisory/guidance-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	document_hash TEXT PRIMARY KEY,
	document      TEXT NOT NULL,
	summary       TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS records (
	id            TEXT PRIMARY KEY,
	document_hash TEXT NOT NULL REFERENCES runs(document_hash),
	kind          TEXT NOT NULL,
	dedupe_key    TEXT NOT NULL,
	decision      TEXT NOT NULL,
	score         REAL NOT NULL,
	data          TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(document_hash, kind, dedupe_key)
);

CREATE TABLE IF NOT EXISTS links (
	id               TEXT PRIMARY KEY,
	document_hash    TEXT NOT NULL,
	vulnerability_id TEXT NOT NULL,
	ofc_id           TEXT NOT NULL,
	type             TEXT NOT NULL,
	confidence       REAL NOT NULL,
	UNIQUE(vulnerability_id, ofc_id)
);

CREATE TABLE IF NOT EXISTS learning_events (
	id                   TEXT PRIMARY KEY,
	document_hash        TEXT NOT NULL,
	aggregate_confidence REAL NOT NULL,
	model_version        TEXT NOT NULL,
	vulnerability_count  INTEGER NOT NULL,
	ofc_count            INTEGER NOT NULL,
	accepted_count       INTEGER NOT NULL,
	record_count         INTEGER NOT NULL,
	approved             INTEGER NOT NULL DEFAULT 0,
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS retrain_events (
	id           TEXT PRIMARY KEY,
	reasons      TEXT NOT NULL,
	window_size  INTEGER NOT NULL,
	triggered_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_document ON records(document_hash);
CREATE INDEX IF NOT EXISTS idx_records_kind_key ON records(kind, dedupe_key);
CREATE INDEX IF NOT EXISTS idx_links_document ON links(document_hash);
CREATE INDEX IF NOT EXISTS idx_learning_events_created ON learning_events(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun writes the run row, records, and links in one transaction so a
// cancelled document never leaves partial output visible.
func (s *SQLiteStore) SaveRun(ctx context.Context, result *model.RunResult) error {
	docJSON, err := json.Marshal(result.Document)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal document")
	}
	summaryJSON, err := json.Marshal(result.Summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save run")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (document_hash, document, summary, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(document_hash) DO UPDATE SET summary = excluded.summary, updated_at = excluded.updated_at`,
		result.Document.Hash, string(docJSON), string(summaryJSON), now, now,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert run")
	}

	insertRecord := func(rec model.Record) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal record")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO records (id, document_hash, kind, dedupe_key, decision, score, data, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(document_hash, kind, dedupe_key) DO NOTHING`,
			rec.ID, rec.DocumentHash, string(rec.Kind), rec.DedupeKey,
			string(rec.Decision), rec.Score, string(data), now,
		)
		return eris.Wrapf(err, "sqlite: insert record %s", rec.ID)
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
		_, err := tx.ExecContext(ctx,
			`INSERT INTO links (id, document_hash, vulnerability_id, ofc_id, type, confidence)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(vulnerability_id, ofc_id) DO NOTHING`,
			link.ID, result.Document.Hash, link.VulnerabilityID, link.OFCID,
			string(link.Type), link.Confidence,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert link %s", link.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save run")
}

func (s *SQLiteStore) GetRun(ctx context.Context, docHash string) (*model.RunResult, error) {
	var docJSON, summaryJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT document, summary FROM runs WHERE document_hash = ?`, docHash,
	).Scan(&docJSON, &summaryJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", docHash)
	}

	result := &model.RunResult{}
	if err := json.Unmarshal([]byte(docJSON), &result.Document); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal document")
	}
	if err := json.Unmarshal([]byte(summaryJSON), &result.Summary); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal summary")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM records WHERE document_hash = ? ORDER BY created_at, id`, docHash,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list records %s", docHash)
	}
	defer rows.Close()

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		var rec model.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal record")
		}
		if rec.Kind == model.KindVulnerability {
			result.Vulnerabilities = append(result.Vulnerabilities, rec)
		} else {
			result.OptionsForConsideration = append(result.OptionsForConsideration, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate records")
	}

	linkRows, err := s.db.QueryContext(ctx,
		`SELECT id, vulnerability_id, ofc_id, type, confidence FROM links WHERE document_hash = ? ORDER BY id`, docHash,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list links %s", docHash)
	}
	defer linkRows.Close()

	for linkRows.Next() {
		var link model.Link
		var typ string
		if err := linkRows.Scan(&link.ID, &link.VulnerabilityID, &link.OFCID, &typ, &link.Confidence); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan link")
		}
		link.Type = model.LinkType(typ)
		result.VulnerabilityOFCLinks = append(result.VulnerabilityOFCLinks, link)
	}
	if err := linkRows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate links")
	}

	return result, nil
}

func (s *SQLiteStore) Fingerprints(ctx context.Context, kind model.Kind, excludeDoc string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dedupe_key FROM records WHERE kind = ? AND document_hash != ?`, string(kind), excludeDoc,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list %s fingerprints", kind)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fingerprint")
		}
		out[key] = true
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate fingerprints")
}

func (s *SQLiteStore) CreateLearningEvent(ctx context.Context, ev *model.LearningEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learning_events
		 (id, document_hash, aggregate_confidence, model_version, vulnerability_count, ofc_count, accepted_count, record_count, approved, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.DocumentHash, ev.AggregateConfidence, ev.ModelVersion,
		ev.VulnerabilityCount, ev.OFCCount, ev.AcceptedCount, ev.RecordCount,
		boolToInt(ev.Approved), ev.CreatedAt, ev.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: insert learning event")
}

func (s *SQLiteStore) SetLearningEventApproval(ctx context.Context, id string, approved bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE learning_events SET approved = ?, updated_at = ? WHERE id = ?`,
		boolToInt(approved), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update learning event %s", id)
	}
	return checkRowsAffected(res, "learning event", id)
}

func (s *SQLiteStore) GetLearningEvent(ctx context.Context, id string) (*model.LearningEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_hash, aggregate_confidence, model_version, vulnerability_count, ofc_count, accepted_count, record_count, approved, created_at, updated_at
		 FROM learning_events WHERE id = ?`, id,
	)
	return scanLearningEvent(row)
}

func (s *SQLiteStore) RecentLearningEvents(ctx context.Context, limit int) ([]model.LearningEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_hash, aggregate_confidence, model_version, vulnerability_count, ofc_count, accepted_count, record_count, approved, created_at, updated_at
		 FROM learning_events ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list learning events")
	}
	defer rows.Close()

	var out []model.LearningEvent
	for rows.Next() {
		ev, err := scanLearningEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate learning events")
}

func (s *SQLiteStore) CountLearningEventsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM learning_events WHERE created_at > ?`, since,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count learning events")
}

func (s *SQLiteStore) CreateRetrainEvent(ctx context.Context, ev *model.RetrainEvent) error {
	reasons, err := json.Marshal(ev.Reasons)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal retrain reasons")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO retrain_events (id, reasons, window_size, triggered_at) VALUES (?, ?, ?, ?)`,
		ev.ID, string(reasons), ev.WindowSize, ev.TriggeredAt,
	)
	return eris.Wrap(err, "sqlite: insert retrain event")
}

func (s *SQLiteStore) LastRetrainEvent(ctx context.Context) (*model.RetrainEvent, error) {
	var ev model.RetrainEvent
	var reasons string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, reasons, window_size, triggered_at FROM retrain_events ORDER BY triggered_at DESC, id DESC LIMIT 1`,
	).Scan(&ev.ID, &reasons, &ev.WindowSize, &ev.TriggeredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get last retrain event")
	}
	if err := json.Unmarshal([]byte(reasons), &ev.Reasons); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal retrain reasons")
	}
	return &ev, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLearningEvent(row rowScanner) (*model.LearningEvent, error) {
	var ev model.LearningEvent
	var approved int
	err := row.Scan(
		&ev.ID, &ev.DocumentHash, &ev.AggregateConfidence, &ev.ModelVersion,
		&ev.VulnerabilityCount, &ev.OFCCount, &ev.AcceptedCount, &ev.RecordCount,
		&approved, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan learning event")
	}
	ev.Approved = approved != 0
	return &ev, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
