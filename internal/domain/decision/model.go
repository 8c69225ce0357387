package decision

import (
	"time"

	"github.com/google/uuid"
)

// Recommendation priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Recommendation statuses. Only pending recommendations may change status.
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusDismissed = "dismissed"
)

// Recommendation types.
const (
	TypeInvestigation = "investigation"
	TypeReferral      = "referral"
	TypeMonitoring    = "monitoring"
	TypeGuideline     = "guideline"
	TypeClinical      = "clinical"
)

// Recommendation sources.
const (
	SourceGenerated = "generated"
	SourceStored    = "stored"
)

// Recommendation maps to the recommendation table. Generated recommendations
// are never stored and carry a nil ID.
type Recommendation struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	PatientID          uuid.UUID `db:"patient_id" json:"patient_id"`
	Type               string    `db:"type" json:"type"`
	Priority           string    `db:"priority" json:"priority"`
	Text               string    `db:"text" json:"text"`
	GuidelineReference *string   `db:"guideline_reference" json:"guideline_reference,omitempty"`
	EvidenceLevel      *string   `db:"evidence_level" json:"evidence_level,omitempty"`
	Action             *string   `db:"action" json:"action,omitempty"`
	Status             string    `db:"status" json:"status"`
	CreatedBy          *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
	Source             string    `db:"-" json:"source"`
}

// Risk categories.
const (
	RiskLow    = "Low Risk"
	RiskMedium = "Medium Risk"
	RiskHigh   = "High Risk"
)

// RiskScore is the additive prostate risk score and the factors that raised it.
type RiskScore struct {
	Score    int      `json:"score"`
	Category string   `json:"category"`
	Factors  []string `json:"factors"`
}

// Outcome of a recommendation lookup.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
)

// Result is returned by RecommendationsFor.
type Result struct {
	PatientID       uuid.UUID         `json:"patient_id"`
	Recommendations []*Recommendation `json:"recommendations"`
	RiskScore       *RiskScore        `json:"risk_score"`
	Outcome         string            `json:"outcome"`
	Cause           string            `json:"cause,omitempty"`
}
