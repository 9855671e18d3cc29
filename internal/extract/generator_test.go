package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-advisory/guidance-cli/internal/config"
	"github.com/aegis-advisory/guidance-cli/internal/model"
)

func newGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := New(config.ExtractConfig{})
	require.NoError(t, err)
	return g
}

func testChunk(text string) model.Chunk {
	return model.Chunk{ID: "doc1_chunk_0", Index: 0, Text: text, Section: "4.2"}
}

func TestGenerate_ProhibitionYieldsVulnerability(t *testing.T) {
	g := newGenerator(t)

	res := g.Generate(testChunk("Windows shall not face vehicle approach zones."), nil)
	require.Len(t, res.Candidates, 1)

	c := res.Candidates[0]
	assert.Equal(t, model.KindVulnerability, c.Kind)
	assert.Equal(t, "Windows shall not face vehicle approach zones.", c.Text)
	assert.Equal(t, "rule:prohibition", c.Provenance)
	assert.InDelta(t, 0.85, c.Confidence, 1e-9)
	assert.Equal(t, "doc1_chunk_0", c.ChunkID)
	assert.Equal(t, "4.2", c.Section)
}

func TestGenerate_ObligationYieldsOFC(t *testing.T) {
	g := newGenerator(t)

	res := g.Generate(testChunk("All exterior doors shall be fitted with electronic access control."), nil)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, model.KindOFC, res.Candidates[0].Kind)
	assert.Equal(t, "rule:obligation", res.Candidates[0].Provenance)
}

func TestGenerate_AdvisoryYieldsOFC(t *testing.T) {
	g := newGenerator(t)

	res := g.Generate(testChunk("Consider installing bollards at vehicle entry points."), nil)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, model.KindOFC, res.Candidates[0].Kind)
	assert.Equal(t, "rule:advisory", res.Candidates[0].Provenance)
}

func TestGenerate_ShortSentencesSkipped(t *testing.T) {
	g := newGenerator(t)

	res := g.Generate(testChunk("Shall not."), nil)
	assert.Empty(t, res.Candidates)
}

func TestGenerate_OneCandidatePerSentence(t *testing.T) {
	g := newGenerator(t)

	// "shall not" and "inadequate" both match; only the first vulnerability
	// rule fires.
	res := g.Generate(testChunk("Doors shall not remain inadequate against forced entry."), nil)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "rule:prohibition", res.Candidates[0].Provenance)
}

func TestGenerate_ModelResponse(t *testing.T) {
	g := newGenerator(t)

	modelJSON := []byte(`[{
		"vulnerability": "Lobby lacks standoff distance from the street.",
		"options_for_consideration": [
			"Install reinforced planters along the curb line.",
			{"text": "Relocate visitor screening to an exterior pavilion.", "confidence_score": 0.65}
		],
		"discipline": "Physical Security",
		"sector": "Government Facilities",
		"subsector": "",
		"confidence_score": 0.9,
		"source": "para 3-2",
		"page_ref": "12"
	}]`)

	res := g.Generate(testChunk("Background text without trigger phrasing here."), modelJSON)
	require.False(t, res.ParseFailed)
	require.Len(t, res.Candidates, 3)

	vuln := res.Candidates[0]
	assert.Equal(t, model.KindVulnerability, vuln.Kind)
	assert.Equal(t, "Lobby lacks standoff distance from the street.", vuln.Text)
	assert.Equal(t, "model", vuln.Provenance)
	assert.Equal(t, "Physical Security", vuln.Discipline)

	first, second := res.Candidates[1], res.Candidates[2]
	assert.Equal(t, model.KindOFC, first.Kind)
	assert.Equal(t, vuln.Text, first.BackRef)
	assert.InDelta(t, 0.9, first.Confidence, 1e-9)
	// Per-option confidence overrides the extraction-level score.
	assert.InDelta(t, 0.65, second.Confidence, 1e-9)
	assert.Equal(t, []float64{0.65}, second.ModelConfidences)
}

func TestGenerate_MalformedModelJSON(t *testing.T) {
	g := newGenerator(t)

	res := g.Generate(testChunk("Background text without trigger phrasing here."), []byte(`{not json`))
	assert.True(t, res.ParseFailed)
	assert.Empty(t, res.Candidates)
}

func TestGenerate_RulesStillRunOnParseFailure(t *testing.T) {
	g := newGenerator(t)

	res := g.Generate(testChunk("Windows shall not face vehicle approach zones."), []byte(`{not json`))
	assert.True(t, res.ParseFailed)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "rule:prohibition", res.Candidates[0].Provenance)
}

func TestParseModelResponse_Envelope(t *testing.T) {
	raw := []byte(`{"extractions": [{"vulnerability": "Unsecured roof access hatch.", "confidence_score": 0.8}]}`)

	items, quarantined, err := ParseModelResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, 0, quarantined)
	require.Len(t, items, 1)
	assert.Equal(t, "Unsecured roof access hatch.", items[0].Vulnerability)
}

func TestParseModelResponse_QuarantinesInvalidObjects(t *testing.T) {
	raw := []byte(`[
		{"vulnerability": "", "confidence_score": 0.8},
		{"vulnerability": "Unmonitored emergency exits.", "confidence_score": 1.7},
		{"vulnerability": "Unmonitored emergency exits.", "confidence_score": 0.8}
	]`)

	items, quarantined, err := ParseModelResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, 2, quarantined)
	assert.Len(t, items, 1)
}

func TestParseModelResponse_Empty(t *testing.T) {
	items, quarantined, err := ParseModelResponse(nil)
	require.NoError(t, err)
	assert.Nil(t, items)
	assert.Equal(t, 0, quarantined)
}
