// Package taxonomy maps free-text discipline/sector/subsector labels to
// canonical vocabulary terms. Vocabularies are read-only reference data;
// the resolver never creates or mutates terms.
package taxonomy

import "context"

// Vocabulary names one of the three controlled vocabularies.
type Vocabulary string

const (
	VocabDiscipline Vocabulary = "discipline"
	VocabSector     Vocabulary = "sector"
	VocabSubsector  Vocabulary = "subsector"
)

// Vocabularies lists all vocabularies in canonical order.
func Vocabularies() []Vocabulary {
	return []Vocabulary{VocabDiscipline, VocabSector, VocabSubsector}
}

// Term is one canonical vocabulary entry. Category is populated for
// discipline terms only.
type Term struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// Repository provides read-only access to vocabulary terms. Terms must be
// returned in a stable order so fuzzy-match ties resolve identically on
// every run.
type Repository interface {
	Terms(ctx context.Context, vocab Vocabulary) ([]Term, error)
}
