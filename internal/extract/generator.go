// Package extract turns chunks into vulnerability/OFC candidates from two
// sources: pattern rules over canonical guidance phrasings, and structured
// JSON responses from an external model. Either source works alone; a
// chunk may use both.
package extract

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aegis-advisory/guidance-cli/internal/chunker"
	"github.com/aegis-advisory/guidance-cli/internal/config"
	"github.com/aegis-advisory/guidance-cli/internal/model"
)

// DefaultMinTextLen is the floor below which candidate text is discarded.
const DefaultMinTextLen = 15

// Generator produces candidates for one chunk at a time.
type Generator struct {
	rules       []Rule
	minTextLen  int
	defaultConf float64
}

// New creates a Generator with the built-in rules plus any configured
// rule file.
func New(cfg config.ExtractConfig) (*Generator, error) {
	rules, err := LoadRuleFile(cfg.RuleFile)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		rules:       rules,
		minTextLen:  cfg.MinTextLen,
		defaultConf: cfg.DefaultConf,
	}
	if g.minTextLen <= 0 {
		g.minTextLen = DefaultMinTextLen
	}
	if g.defaultConf <= 0 {
		g.defaultConf = 0.7
	}
	return g, nil
}

// Result holds one chunk's candidates plus the generator's local failure
// accounting. A parse failure never aborts the document; it is surfaced
// here and rolled into the run summary.
type Result struct {
	Candidates  []model.Candidate
	ParseFailed bool
	Quarantined int
}

// Generate emits candidates for a chunk. modelJSON may be nil when no
// model response exists for the chunk.
func (g *Generator) Generate(chunk model.Chunk, modelJSON []byte) Result {
	var res Result

	res.Candidates = append(res.Candidates, g.fromPatterns(chunk)...)

	if len(modelJSON) > 0 {
		items, quarantined, err := ParseModelResponse(modelJSON)
		res.Quarantined = quarantined
		if err != nil {
			res.ParseFailed = true
			zap.L().Warn("extract: model response unparseable, chunk yields no model candidates",
				zap.String("chunk", chunk.ID),
				zap.Error(err),
			)
		} else {
			res.Candidates = append(res.Candidates, g.fromModel(chunk, items)...)
		}
	}

	return res
}

// fromPatterns walks the chunk sentence by sentence. Vulnerability rules
// are tested before OFC rules so prohibition phrasings ("shall not") never
// fall through to the obligation rule ("shall"). First matching rule of a
// kind wins; one candidate per sentence.
func (g *Generator) fromPatterns(chunk model.Chunk) []model.Candidate {
	var out []model.Candidate

	for _, sent := range chunker.Sentences(chunk.Text) {
		if len(sent) < g.minTextLen {
			continue
		}

		matched := g.matchSentence(sent, model.KindVulnerability)
		if matched == nil {
			matched = g.matchSentence(sent, model.KindOFC)
		}
		if matched == nil {
			continue
		}

		out = append(out, model.Candidate{
			ID:         uuid.New().String(),
			Kind:       matched.Kind,
			Text:       sent,
			Context:    sent,
			ChunkID:    chunk.ID,
			ChunkIndex: chunk.Index,
			Section:    chunk.Section,
			Confidence: matched.Confidence,
			Provenance: "rule:" + matched.Name,
		})
	}
	return out
}

func (g *Generator) matchSentence(sent string, kind model.Kind) *Rule {
	for i := range g.rules {
		r := &g.rules[i]
		if r.Kind != kind {
			continue
		}
		if r.re.MatchString(sent) {
			return r
		}
	}
	return nil
}

// fromModel converts validated model extractions into candidates. Each
// extraction yields one vulnerability candidate and one OFC candidate per
// option, with the OFC carrying the vulnerability text as a back-reference
// for the linker.
func (g *Generator) fromModel(chunk model.Chunk, items []ModelExtraction) []model.Candidate {
	var out []model.Candidate

	for _, it := range items {
		vulnText := strings.TrimSpace(it.Vulnerability)
		if len(vulnText) >= g.minTextLen {
			out = append(out, model.Candidate{
				ID:         uuid.New().String(),
				Kind:       model.KindVulnerability,
				Text:       vulnText,
				ChunkID:    chunk.ID,
				ChunkIndex: chunk.Index,
				Section:    chunk.Section,
				Discipline: it.Discipline,
				Sector:     it.Sector,
				Subsector:  it.Subsector,
				Confidence: it.ConfidenceScore,
				Provenance: "model",
			})
		}

		for _, opt := range it.OptionsForConsideration {
			text := strings.TrimSpace(opt.Text)
			if len(text) < g.minTextLen {
				continue
			}
			conf := it.ConfidenceScore
			if opt.Confidence != nil {
				conf = *opt.Confidence
			}
			out = append(out, model.Candidate{
				ID:               uuid.New().String(),
				Kind:             model.KindOFC,
				Text:             text,
				ChunkID:          chunk.ID,
				ChunkIndex:       chunk.Index,
				Section:          chunk.Section,
				BackRef:          vulnText,
				Discipline:       it.Discipline,
				Sector:           it.Sector,
				Subsector:        it.Subsector,
				Confidence:       conf,
				ModelConfidences: []float64{conf},
				Provenance:       "model",
			})
		}
	}
	return out
}
