package taxonomy

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Querier is the subset of pgx used by the repository; pgxpool.Pool and
// pgxmock both satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository reads vocabulary terms from the taxonomy tables and
// caches them for the life of the process. The cache is fill-once per
// vocabulary — vocabularies are reference data and never mutate underneath
// a running pipeline.
type PostgresRepository struct {
	db Querier

	mu    sync.RWMutex
	cache map[Vocabulary][]Term
}

// NewPostgresRepository creates a repository over the given connection.
func NewPostgresRepository(db Querier) *PostgresRepository {
	return &PostgresRepository{
		db:    db,
		cache: make(map[Vocabulary][]Term),
	}
}

const termQuery = `SELECT id, name, COALESCE(category, '')
FROM taxonomy_terms
WHERE vocabulary = $1 AND active
ORDER BY name`

// Terms returns the vocabulary's active terms in name order, loading from
// the database on first use.
func (r *PostgresRepository) Terms(ctx context.Context, vocab Vocabulary) ([]Term, error) {
	r.mu.RLock()
	cached, ok := r.cache[vocab]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	rows, err := r.db.Query(ctx, termQuery, string(vocab))
	if err != nil {
		return nil, eris.Wrapf(err, "taxonomy: query %s terms", vocab)
	}
	defer rows.Close()

	var terms []Term
	for rows.Next() {
		var t Term
		if err := rows.Scan(&t.ID, &t.Name, &t.Category); err != nil {
			return nil, eris.Wrap(err, "taxonomy: scan term")
		}
		terms = append(terms, t)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "taxonomy: iterate %s terms", vocab)
	}

	r.mu.Lock()
	r.cache[vocab] = terms
	r.mu.Unlock()

	return terms, nil
}
