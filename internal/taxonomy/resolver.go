package taxonomy

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aegis-advisory/guidance-cli/internal/config"
	"github.com/aegis-advisory/guidance-cli/internal/dedupe"
)

// DefaultFuzzyThreshold is the minimum similarity for a fuzzy match.
const DefaultFuzzyThreshold = 0.7

// Match is a successful resolution. Score is 1.0 for exact matches.
type Match struct {
	ID       string
	Name     string
	Category string
	Score    float64
	Exact    bool
}

// Resolver resolves labels against an injected repository. Resolution is
// pure with respect to the vocabulary: same label, same vocabulary, same
// result, every run.
type Resolver struct {
	repo      Repository
	threshold float64
}

// NewResolver creates a Resolver over the given repository.
func NewResolver(repo Repository, cfg config.TaxonomyConfig) *Resolver {
	t := cfg.FuzzyThreshold
	if t <= 0 {
		t = DefaultFuzzyThreshold
	}
	return &Resolver{repo: repo, threshold: t}
}

// Resolve maps a free-text label to a canonical term. Returns nil when
// the label is empty, unknown, or the best fuzzy score falls below the
// threshold — a nil result is an expected outcome, not an error.
func (r *Resolver) Resolve(ctx context.Context, vocab Vocabulary, label string) (*Match, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, nil
	}

	terms, err := r.repo.Terms(ctx, vocab)
	if err != nil {
		return nil, eris.Wrapf(err, "taxonomy: load %s terms", vocab)
	}

	want := dedupe.Fingerprint(label)

	// Pass 1: case-insensitive exact match.
	for _, t := range terms {
		if dedupe.Fingerprint(t.Name) == want {
			return &Match{ID: t.ID, Name: t.Name, Category: t.Category, Score: 1.0, Exact: true}, nil
		}
	}

	// Pass 2: best fuzzy match at or above the threshold. Strictly-greater
	// comparison keeps the first term on ties, and repositories return
	// stable order, so the winner never flips between runs.
	var best *Term
	bestScore := 0.0
	for i := range terms {
		score := dedupe.Similarity(dedupe.Fingerprint(terms[i].Name), want)
		if score >= r.threshold && score > bestScore {
			best = &terms[i]
			bestScore = score
		}
	}
	if best == nil {
		zap.L().Debug("taxonomy: no match above threshold",
			zap.String("vocabulary", string(vocab)),
			zap.String("label", label),
		)
		return nil, nil
	}

	return &Match{ID: best.ID, Name: best.Name, Category: best.Category, Score: bestScore}, nil
}
