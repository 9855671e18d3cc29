package model

import "time"

// Decision is the quality-gate outcome carried on a persisted record.
type Decision string

const (
	DecisionAccepted    Decision = "accepted"
	DecisionRejected    Decision = "rejected"
	DecisionNeedsReview Decision = "needs_review"
)

// Record is a candidate that survived deduplication, augmented with
// resolved taxonomy ids and the gate decision. Never deleted; external
// review may transition its decision later.
type Record struct {
	Candidate

	DocumentHash string `json:"document_hash"`

	// DedupeKey is the normalized-text fingerprint, unique among one
	// document's surviving records of the same kind.
	DedupeKey string `json:"dedupe_key"`

	// Resolved taxonomy ids; nil when resolution missed. The original
	// free-text labels stay on the embedded Candidate for follow-up.
	DisciplineID *string `json:"discipline_id"`
	SectorID     *string `json:"sector_id"`
	SubsectorID  *string `json:"subsector_id"`
	Category     string  `json:"category,omitempty"`

	Score    float64  `json:"score"`
	Decision Decision `json:"decision"`

	CreatedAt time.Time `json:"created_at"`
}

// LearningEvent captures one document's extraction outcome for future
// model improvement. Created exactly once per completed run; the approved
// flag is flipped later by an external review action.
type LearningEvent struct {
	ID                  string    `json:"id"`
	DocumentHash        string    `json:"document_hash"`
	AggregateConfidence float64   `json:"aggregate_confidence"`
	ModelVersion        string    `json:"model_version"`
	VulnerabilityCount  int       `json:"vulnerability_count"`
	OFCCount            int       `json:"ofc_count"`
	AcceptedCount       int       `json:"accepted_count"`
	RecordCount         int       `json:"record_count"`
	Approved            bool      `json:"approved"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// RetrainEvent is the audit entry written when the retrain monitor fires.
// Reasons hold the triggering condition strings verbatim so the decision
// is reproducible from the log alone.
type RetrainEvent struct {
	ID          string    `json:"id"`
	Reasons     []string  `json:"reasons"`
	WindowSize  int       `json:"window_size"`
	TriggeredAt time.Time `json:"triggered_at"`
}
