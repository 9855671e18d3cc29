package model

// Kind distinguishes the two extracted unit types.
type Kind string

const (
	KindVulnerability Kind = "vulnerability"
	KindOFC           Kind = "ofc"
)

// Candidate is an unconfirmed extracted span, pre-dedup and pre-link.
// Created by the generator; read-only downstream except for the
// deduplicator, which may merge two candidates into one.
type Candidate struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Text string `json:"text"`

	// Context is the containing sentence or clause, kept for the
	// evidence-overlap check in the quality gate.
	Context string `json:"context,omitempty"`

	ChunkID    string `json:"chunk_id"`
	ChunkIndex int    `json:"chunk_index"`
	Section    string `json:"section,omitempty"`

	// BackRef holds the vulnerability text an OFC was attached to in the
	// model response, when the model already paired them.
	BackRef string `json:"back_ref,omitempty"`

	// Free-text taxonomy labels as extracted; resolved later.
	Discipline string `json:"discipline,omitempty"`
	Sector     string `json:"sector,omitempty"`
	Subsector  string `json:"subsector,omitempty"`

	Confidence float64 `json:"confidence"`

	// ModelConfidences holds any per-option confidence values supplied by
	// the model; the gate averages these for OFC scoring.
	ModelConfidences []float64 `json:"model_confidences,omitempty"`

	// Provenance names the rule or model pass that produced the candidate
	// (e.g. "rule:prohibition", "model").
	Provenance string `json:"provenance"`

	// MergedFrom lists ids of candidates collapsed into this one.
	MergedFrom []string `json:"merged_from,omitempty"`

	// Implied marks a synthesized vulnerability placeholder created for an
	// OFC that had no resolvable vulnerability.
	Implied bool `json:"implied,omitempty"`
}

// LinkType classifies how an OFC was associated to a vulnerability.
type LinkType string

const (
	LinkDirect   LinkType = "direct"
	LinkInferred LinkType = "inferred"
)

// Link is a resolved (vulnerability, ofc) association. At most one link
// exists per ordered pair.
type Link struct {
	ID              string   `json:"id"`
	VulnerabilityID string   `json:"vulnerability_id"`
	OFCID           string   `json:"ofc_id"`
	Type            LinkType `json:"type"`
	Confidence      float64  `json:"confidence"`
}
