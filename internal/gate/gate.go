// Package gate scores each surviving candidate and decides whether it is
// persisted as accepted, flagged for review, or dropped. Decisions are
// tiered and only ever move downward: the evidence-overlap check can
// downgrade a record one tier but never promote it.
package gate

import (
	"strings"

	"go.uber.org/zap"

	"github.com/aegis-advisory/guidance-cli/internal/config"
	"github.com/aegis-advisory/guidance-cli/internal/model"
)

// Default thresholds. The discard floor must sit at or below the
// minimum-confidence floor; config.Load validates this.
const (
	DefaultMinConfidence      = 0.4
	DefaultDiscardFloor       = 0.2
	DefaultEvidenceOverlapMin = 0.3
)

// Gate evaluates candidates against configured floors.
type Gate struct {
	minConf    float64
	discard    float64
	overlapMin float64
}

// New creates a Gate, defaulting unset thresholds.
func New(cfg config.GateConfig) *Gate {
	g := &Gate{
		minConf:    cfg.MinConfidence,
		discard:    cfg.DiscardFloor,
		overlapMin: cfg.EvidenceOverlapMin,
	}
	if g.minConf <= 0 {
		g.minConf = DefaultMinConfidence
	}
	if g.discard <= 0 {
		g.discard = DefaultDiscardFloor
	}
	if g.overlapMin <= 0 {
		g.overlapMin = DefaultEvidenceOverlapMin
	}
	return g
}

// Outcome is the gate's verdict for one candidate.
type Outcome struct {
	Score      float64
	Decision   model.Decision
	Dropped    bool
	Downgraded bool
}

// Evaluate scores the candidate and applies the tier floors plus the
// evidence-overlap check against the source chunk text.
func (g *Gate) Evaluate(cand model.Candidate, evidence string) Outcome {
	score := g.score(cand)

	out := Outcome{Score: score}
	switch {
	case score >= g.minConf:
		out.Decision = model.DecisionAccepted
	case score >= g.discard:
		out.Decision = model.DecisionNeedsReview
	default:
		out.Dropped = true
	}

	// Fabrication suppression: a record whose text shares too few
	// significant words with its source chunk drops one tier regardless
	// of confidence.
	if !out.Dropped && evidence != "" && overlap(cand.Text, evidence) < g.overlapMin {
		out.Downgraded = true
		if out.Decision == model.DecisionAccepted {
			out.Decision = model.DecisionNeedsReview
		} else {
			out.Decision = ""
			out.Dropped = true
		}
	}

	if out.Dropped {
		zap.L().Info("gate: dropped candidate",
			zap.String("candidate", cand.ID),
			zap.String("kind", string(cand.Kind)),
			zap.Float64("score", score),
			zap.Bool("downgraded", out.Downgraded),
		)
	}
	return out
}

// score derives the confidence score. Vulnerabilities combine the
// generator's confidence with a text-length heuristic; OFCs use the mean
// of model-supplied confidences, falling back to the generator's value.
func (g *Gate) score(cand model.Candidate) float64 {
	if cand.Kind == model.KindOFC {
		if len(cand.ModelConfidences) > 0 {
			sum := 0.0
			for _, c := range cand.ModelConfidences {
				sum += c
			}
			return clamp(sum / float64(len(cand.ModelConfidences)))
		}
		return clamp(cand.Confidence)
	}
	return clamp(cand.Confidence * lengthFactor(len(cand.Text)))
}

// lengthFactor penalizes fragments and run-ons. Full credit between 30
// and 400 chars; linear ramp below, mild penalty above.
func lengthFactor(n int) float64 {
	switch {
	case n < 30:
		return 0.6 + 0.4*float64(n)/30
	case n <= 400:
		return 1.0
	default:
		return 0.9
	}
}

// overlap returns the fraction of the record's significant words that
// appear in the evidence text.
func overlap(text, evidence string) float64 {
	recordWords := significantWords(text)
	if len(recordWords) == 0 {
		return 0
	}
	evidenceWords := significantWords(evidence)

	hits := 0
	for w := range recordWords {
		if evidenceWords[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(recordWords))
}

// stopwords excluded from the overlap check: too common to count as
// evidence that the record came from the chunk.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "with": true,
	"shall": true, "should": true, "must": true, "not": true, "are": true,
	"this": true, "from": true, "all": true, "any": true, "where": true,
	"when": true, "will": true, "may": true, "can": true, "its": true,
}

func significantWords(text string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	out := make(map[string]bool, len(words))
	for _, w := range words {
		if len(w) <= 2 || stopwords[w] {
			continue
		}
		out[w] = true
	}
	return out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
