package model

// RunSummary counts what each stage produced, skipped, or downgraded so a
// reviewer can see exactly what was dropped and why.
type RunSummary struct {
	Chunks            int      `json:"chunks"`
	Candidates        int      `json:"candidates"`
	ParseFailures     int      `json:"parse_failures"`
	Quarantined       int      `json:"quarantined"`
	Merged            int      `json:"merged"`
	CrossDocDropped   int      `json:"cross_document_dropped"`
	Links             int      `json:"links"`
	ImpliedVulns      int      `json:"implied_vulnerabilities"`
	Accepted          int      `json:"accepted"`
	NeedsReview       int      `json:"needs_review"`
	Dropped           int      `json:"dropped"`
	Downgraded        int      `json:"downgraded"`
	UnresolvedLabels  []string `json:"unresolved_labels,omitempty"`
	FailedChunks      []string `json:"failed_chunks,omitempty"`
	LearningRecorded  bool     `json:"learning_recorded"`
	DurationMillis    int64    `json:"duration_ms"`
}

// RunResult is the single JSON artifact a pipeline run hands to the
// external storage/review layer. Produced even under partial failure.
type RunResult struct {
	Document                Document   `json:"document"`
	Vulnerabilities         []Record   `json:"vulnerabilities"`
	OptionsForConsideration []Record   `json:"options_for_consideration"`
	VulnerabilityOFCLinks   []Link     `json:"vulnerability_ofc_links"`
	Summary                 RunSummary `json:"summary"`
}
