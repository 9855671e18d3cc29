package gate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aegis-advisory/guidance-cli/internal/config"
	"github.com/aegis-advisory/guidance-cli/internal/model"
)

func vulnCand(text string, conf float64) model.Candidate {
	return model.Candidate{ID: "c1", Kind: model.KindVulnerability, Text: text, Confidence: conf}
}

func TestEvaluate_Tiers(t *testing.T) {
	g := New(config.GateConfig{MinConfidence: 0.4, DiscardFloor: 0.2})
	text := "Perimeter fencing lacks intrusion detection along the north boundary."

	tests := []struct {
		name    string
		conf    float64
		want    model.Decision
		dropped bool
	}{
		{"accepted above min", 0.8, model.DecisionAccepted, false},
		{"review between floors", 0.3, model.DecisionNeedsReview, false},
		{"dropped below discard", 0.1, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := g.Evaluate(vulnCand(text, tt.conf), text)
			assert.Equal(t, tt.dropped, out.Dropped)
			assert.Equal(t, tt.want, out.Decision)
		})
	}
}

func TestEvaluate_OFCUsesMeanModelConfidence(t *testing.T) {
	g := New(config.GateConfig{})

	c := model.Candidate{
		ID: "o1", Kind: model.KindOFC,
		Text:             "Install bollards at vehicle entry points along the approach.",
		Confidence:       0.2,
		ModelConfidences: []float64{0.6, 0.8},
	}

	out := g.Evaluate(c, c.Text)
	assert.InDelta(t, 0.7, out.Score, 1e-9)
	assert.Equal(t, model.DecisionAccepted, out.Decision)
}

func TestEvaluate_OFCFallsBackToConfidence(t *testing.T) {
	g := New(config.GateConfig{})

	c := model.Candidate{
		ID: "o1", Kind: model.KindOFC,
		Text:       "Install bollards at vehicle entry points along the approach.",
		Confidence: 0.75,
	}

	out := g.Evaluate(c, c.Text)
	assert.InDelta(t, 0.75, out.Score, 1e-9)
}

func TestEvaluate_LengthFactorPenalizesFragments(t *testing.T) {
	g := New(config.GateConfig{})

	short := g.Evaluate(vulnCand("Unsecured doors found.", 0.8), "Unsecured doors found.")
	normal := g.Evaluate(
		vulnCand("Unsecured doors were found along the western loading corridor.", 0.8),
		"Unsecured doors were found along the western loading corridor.",
	)
	assert.Less(t, short.Score, normal.Score)
	assert.InDelta(t, 0.8, normal.Score, 1e-9)
}

func TestEvaluate_LengthFactorPenalizesRunOns(t *testing.T) {
	g := New(config.GateConfig{})

	long := strings.Repeat("the perimeter remains unprotected against vehicle intrusion ", 10)
	out := g.Evaluate(vulnCand(long, 1.0), long)
	assert.InDelta(t, 0.9, out.Score, 1e-9)
}

func TestEvaluate_EvidenceOverlapDowngradesOneTier(t *testing.T) {
	g := New(config.GateConfig{MinConfidence: 0.4, DiscardFloor: 0.2, EvidenceOverlapMin: 0.3})

	// High confidence but the record shares no significant words with the
	// chunk it claims to come from.
	c := vulnCand("Fabricated finding about submarine netting requirements offshore.", 0.9)
	evidence := "Doors in the lobby require electronic access control devices."

	out := g.Evaluate(c, evidence)
	assert.True(t, out.Downgraded)
	assert.False(t, out.Dropped)
	assert.Equal(t, model.DecisionNeedsReview, out.Decision)
}

func TestEvaluate_EvidenceOverlapDropsReviewTier(t *testing.T) {
	g := New(config.GateConfig{MinConfidence: 0.4, DiscardFloor: 0.2, EvidenceOverlapMin: 0.3})

	c := vulnCand("Fabricated finding about submarine netting requirements offshore.", 0.3)
	evidence := "Doors in the lobby require electronic access control devices."

	out := g.Evaluate(c, evidence)
	assert.True(t, out.Downgraded)
	assert.True(t, out.Dropped)
}

func TestEvaluate_NoEvidenceSkipsOverlapCheck(t *testing.T) {
	g := New(config.GateConfig{})

	out := g.Evaluate(vulnCand("Implied vulnerability addressed by: install duress alarms.", 0.7), "")
	assert.False(t, out.Downgraded)
	assert.Equal(t, model.DecisionAccepted, out.Decision)
}

func TestEvaluate_LoweringDiscardFloorNeverDropsAccepted(t *testing.T) {
	text := "Perimeter fencing lacks intrusion detection along the north boundary."

	strict := New(config.GateConfig{MinConfidence: 0.4, DiscardFloor: 0.4})
	loose := New(config.GateConfig{MinConfidence: 0.4, DiscardFloor: 0.1})

	for _, conf := range []float64{0.45, 0.6, 0.85, 1.0} {
		before := strict.Evaluate(vulnCand(text, conf), text)
		after := loose.Evaluate(vulnCand(text, conf), text)
		if before.Decision == model.DecisionAccepted {
			assert.Equal(t, model.DecisionAccepted, after.Decision)
			assert.False(t, after.Dropped)
		}
	}
}

func TestOverlap(t *testing.T) {
	full := overlap(
		"Perimeter fencing lacks intrusion detection.",
		"The perimeter fencing currently lacks any intrusion detection system.",
	)
	assert.Equal(t, 1.0, full)

	none := overlap("submarine netting offshore", "lobby turnstile throughput")
	assert.Equal(t, 0.0, none)
}
