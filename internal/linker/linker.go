// Package linker associates each OFC candidate with its most plausible
// vulnerability. Resolution cascade, highest priority first: explicit
// back-reference text, same-section structural match, chunk proximity
// within a window. An OFC with no resolvable vulnerability gets a
// synthesized implied-vulnerability placeholder so every OFC leaves the
// pipeline with exactly one vulnerability context.
package linker

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aegis-advisory/guidance-cli/internal/config"
	"github.com/aegis-advisory/guidance-cli/internal/dedupe"
	"github.com/aegis-advisory/guidance-cli/internal/model"
)

// DefaultWindow is the adjacent-chunk distance still considered proximate.
const DefaultWindow = 3

// Link confidence by resolution path.
const (
	ConfExplicit = 1.0
	ConfDirect   = 0.9
	ConfInferred = 0.7
)

// Linker resolves OFC→vulnerability associations.
type Linker struct {
	window int
}

// New creates a Linker, defaulting the window when unset.
func New(cfg config.LinkerConfig) *Linker {
	w := cfg.Window
	if w <= 0 {
		w = DefaultWindow
	}
	return &Linker{window: w}
}

// Result holds the resolved links and any synthesized placeholder
// vulnerabilities, which the caller appends to its vulnerability list.
type Result struct {
	Links        []model.Link
	ImpliedVulns []model.Candidate
}

// Link resolves every OFC. vulns and ofcs must already be deduplicated;
// ordering is the deduplicator's first-seen order, which this stage uses
// for deterministic tie-breaking (earliest chunk wins, then earlier
// candidate).
func (l *Linker) Link(vulns, ofcs []model.Candidate) Result {
	var res Result
	seen := make(map[[2]string]bool)

	addLink := func(vulnID, ofcID string, typ model.LinkType, conf float64) {
		key := [2]string{vulnID, ofcID}
		if seen[key] {
			// Pair already linked: a no-op, not an error.
			return
		}
		seen[key] = true
		res.Links = append(res.Links, model.Link{
			ID:              uuid.New().String(),
			VulnerabilityID: vulnID,
			OFCID:           ofcID,
			Type:            typ,
			Confidence:      conf,
		})
	}

	for _, ofc := range ofcs {
		if v := matchBackRef(vulns, ofc); v != nil {
			addLink(v.ID, ofc.ID, model.LinkDirect, ConfExplicit)
			continue
		}
		if v := matchSection(vulns, ofc); v != nil {
			addLink(v.ID, ofc.ID, model.LinkDirect, ConfDirect)
			continue
		}
		if v := l.matchProximity(vulns, ofc); v != nil {
			addLink(v.ID, ofc.ID, model.LinkInferred, ConfInferred)
			continue
		}

		implied := impliedVulnerability(ofc)
		res.ImpliedVulns = append(res.ImpliedVulns, implied)
		addLink(implied.ID, ofc.ID, model.LinkInferred, ConfInferred)

		zap.L().Debug("linker: synthesized implied vulnerability",
			zap.String("ofc", ofc.ID),
			zap.String("chunk", ofc.ChunkID),
		)
	}

	return res
}

// matchBackRef finds the vulnerability whose normalized text equals the
// OFC's back-reference text.
func matchBackRef(vulns []model.Candidate, ofc model.Candidate) *model.Candidate {
	if ofc.BackRef == "" {
		return nil
	}
	want := dedupe.Fingerprint(ofc.BackRef)
	for i := range vulns {
		if dedupe.Fingerprint(vulns[i].Text) == want {
			return &vulns[i]
		}
	}
	return nil
}

// matchSection finds the first vulnerability sharing the OFC's section
// number. Slice order is first-seen order, so the earliest wins.
func matchSection(vulns []model.Candidate, ofc model.Candidate) *model.Candidate {
	if ofc.Section == "" {
		return nil
	}
	for i := range vulns {
		if vulns[i].Section == ofc.Section {
			return &vulns[i]
		}
	}
	return nil
}

// matchProximity finds the vulnerability in the nearest chunk within the
// window. Equal distances break to the earliest chunk index, then to the
// earlier candidate in slice order.
func (l *Linker) matchProximity(vulns []model.Candidate, ofc model.Candidate) *model.Candidate {
	best := -1
	bestDist := l.window + 1
	bestChunk := 0

	for i := range vulns {
		dist := ofc.ChunkIndex - vulns[i].ChunkIndex
		if dist < 0 {
			dist = -dist
		}
		if dist > l.window {
			continue
		}
		if dist < bestDist || (dist == bestDist && vulns[i].ChunkIndex < bestChunk) {
			best = i
			bestDist = dist
			bestChunk = vulns[i].ChunkIndex
		}
	}
	if best < 0 {
		return nil
	}
	return &vulns[best]
}

// impliedVulnerability builds the placeholder record for an OFC-only
// finding. It inherits the OFC's position and labels so taxonomy
// resolution and gating still apply.
func impliedVulnerability(ofc model.Candidate) model.Candidate {
	return model.Candidate{
		ID:         uuid.New().String(),
		Kind:       model.KindVulnerability,
		Text:       "Implied vulnerability addressed by: " + ofc.Text,
		Context:    ofc.Context,
		ChunkID:    ofc.ChunkID,
		ChunkIndex: ofc.ChunkIndex,
		Section:    ofc.Section,
		Discipline: ofc.Discipline,
		Sector:     ofc.Sector,
		Subsector:  ofc.Subsector,
		Confidence: ConfInferred,
		Provenance: "linker:implied",
		Implied:    true,
	}
}
