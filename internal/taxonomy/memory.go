package taxonomy

import (
	"context"
	"sort"
)

// MemoryRepository is an in-memory Repository, used for tests and for
// vocabularies loaded from a spreadsheet at startup.
type MemoryRepository struct {
	terms map[Vocabulary][]Term
}

// NewMemoryRepository builds a repository from the given term sets. Terms
// are sorted by name so lookup order is stable regardless of input order.
func NewMemoryRepository(terms map[Vocabulary][]Term) *MemoryRepository {
	m := &MemoryRepository{terms: make(map[Vocabulary][]Term, len(terms))}
	for vocab, ts := range terms {
		sorted := make([]Term, len(ts))
		copy(sorted, ts)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
		m.terms[vocab] = sorted
	}
	return m
}

// Terms returns the vocabulary's terms in name order.
func (m *MemoryRepository) Terms(_ context.Context, vocab Vocabulary) ([]Term, error) {
	return m.terms[vocab], nil
}
