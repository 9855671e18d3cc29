// Package dedupe collapses near-duplicate candidates within a document.
// Candidates are partitioned by kind, merged on identical fingerprints,
// then merged on character-sequence similarity above a threshold. Running
// the deduplicator twice over its own output changes nothing.
package dedupe

import (
	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"

	"github.com/aegis-advisory/guidance-cli/internal/config"
	"github.com/aegis-advisory/guidance-cli/internal/model"
)

// DefaultSimilarityThreshold is the merge threshold for near-duplicates.
const DefaultSimilarityThreshold = 0.8

// Deduper merges duplicate candidates. Holds only configuration; safe for
// concurrent use across documents.
type Deduper struct {
	threshold float64
}

// New creates a Deduper, defaulting the threshold when unset.
func New(cfg config.DedupeConfig) *Deduper {
	t := cfg.SimilarityThreshold
	if t <= 0 {
		t = DefaultSimilarityThreshold
	}
	return &Deduper{threshold: t}
}

// Dedupe returns the surviving candidates in first-seen order and the
// number of merges performed. When a merge replaces a survivor's text,
// the new fingerprint is re-compared against the other survivors and any
// now-qualifying pairs are folded in, so the output is a fixed point: no
// two survivors of the same kind sit at or above the threshold, and
// running Dedupe over its own output changes nothing.
func (d *Deduper) Dedupe(candidates []model.Candidate) ([]model.Candidate, int) {
	merged := 0
	var survivors []model.Candidate
	fingerprints := make([]string, 0, len(candidates))

	for _, cand := range candidates {
		fp := Fingerprint(cand.Text)

		idx := d.findMatch(survivors, fingerprints, cand.Kind, fp, -1)
		if idx < 0 {
			survivors = append(survivors, cand)
			fingerprints = append(fingerprints, fp)
			continue
		}

		winner := mergeCandidates(survivors[idx], cand)
		fp = Fingerprint(winner.Text)
		changed := fp != fingerprints[idx]
		survivors[idx] = winner
		fingerprints[idx] = fp
		merged++

		if changed {
			var extra int
			survivors, fingerprints, extra = d.cascade(survivors, fingerprints, idx)
			merged += extra
		}
	}

	if merged > 0 {
		zap.L().Debug("dedupe: merged candidates",
			zap.Int("in", len(candidates)),
			zap.Int("out", len(survivors)),
			zap.Int("merged", merged),
		)
	}
	return survivors, merged
}

// DedupeAgainst additionally drops candidates whose fingerprint already
// exists in a prior document's surviving records (cross-document dedupe).
// Dropped candidates are counted in the second return value.
func (d *Deduper) DedupeAgainst(candidates []model.Candidate, prior map[string]bool) ([]model.Candidate, int, int) {
	if len(prior) == 0 {
		out, merged := d.Dedupe(candidates)
		return out, merged, 0
	}

	kept := make([]model.Candidate, 0, len(candidates))
	crossDropped := 0
	for _, cand := range candidates {
		if prior[Fingerprint(cand.Text)] {
			crossDropped++
			continue
		}
		kept = append(kept, cand)
	}

	out, merged := d.Dedupe(kept)
	return out, merged, crossDropped
}

// cascade folds the survivor at idx into any other survivor its changed
// fingerprint now matches, repeating until no pair qualifies. The merge
// result keeps the earlier slot so first-seen order holds.
func (d *Deduper) cascade(survivors []model.Candidate, fingerprints []string, idx int) ([]model.Candidate, []string, int) {
	merged := 0
	for {
		other := d.findMatch(survivors, fingerprints, survivors[idx].Kind, fingerprints[idx], idx)
		if other < 0 {
			return survivors, fingerprints, merged
		}

		lo, hi := idx, other
		if other < idx {
			lo, hi = other, idx
		}
		winner := mergeCandidates(survivors[lo], survivors[hi])
		survivors[lo] = winner
		fingerprints[lo] = Fingerprint(winner.Text)
		survivors = append(survivors[:hi], survivors[hi+1:]...)
		fingerprints = append(fingerprints[:hi], fingerprints[hi+1:]...)
		idx = lo
		merged++
	}
}

// findMatch returns the index of the first survivor of the same kind with
// an identical fingerprint, or the most similar survivor at or above the
// threshold; -1 when none qualifies. skip excludes one index (the survivor
// being re-checked during a cascade); pass -1 to consider all.
func (d *Deduper) findMatch(survivors []model.Candidate, fingerprints []string, kind model.Kind, fp string, skip int) int {
	best := -1
	bestScore := 0.0

	for i := range survivors {
		if i == skip || survivors[i].Kind != kind {
			continue
		}
		if fingerprints[i] == fp {
			return i
		}
		score := Similarity(fingerprints[i], fp)
		if score >= d.threshold && score > bestScore {
			best = i
			bestScore = score
		}
	}
	return best
}

// mergeCandidates keeps the higher-confidence candidate (existing survivor
// wins ties) and records the loser's id chain in merged_from. Model
// confidence lists are concatenated so the gate's mean covers both.
func mergeCandidates(existing, incoming model.Candidate) model.Candidate {
	winner, loser := existing, incoming
	if incoming.Confidence > existing.Confidence {
		winner, loser = incoming, existing
	}

	winner.MergedFrom = append(winner.MergedFrom, loser.ID)
	winner.MergedFrom = append(winner.MergedFrom, loser.MergedFrom...)
	winner.ModelConfidences = append(winner.ModelConfidences, loser.ModelConfidences...)

	// A merged candidate keeps its back-reference if either side had one.
	if winner.BackRef == "" {
		winner.BackRef = loser.BackRef
	}
	// Same for taxonomy labels: prefer the winner's, fill gaps from loser.
	if winner.Discipline == "" {
		winner.Discipline = loser.Discipline
	}
	if winner.Sector == "" {
		winner.Sector = loser.Sector
	}
	if winner.Subsector == "" {
		winner.Subsector = loser.Subsector
	}
	return winner
}

// Similarity is the pinned character-sequence ratio (difflib
// SequenceMatcher over individual characters). Both the dedupe threshold
// (0.8) and the taxonomy fuzzy threshold (0.7) are expressed against this
// exact ratio.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	m := difflib.NewMatcher(chars(a), chars(b))
	return m.Ratio()
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
