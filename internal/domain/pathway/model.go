package pathway

import (
	"time"

	"github.com/google/uuid"
)

// Outcome distinguishes a completed check from one that could not consult
// the patient's history.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeDegraded Outcome = "degraded"
)

// Compliance check types.
const (
	CheckPathway       = "pathway"
	CheckInvestigation = "investigation"
)

// ValidationResult answers whether a pathway change may happen.
type ValidationResult struct {
	IsValid         bool     `json:"is_valid"`
	Errors          []string `json:"errors"`
	Warnings        []string `json:"warnings"`
	RequiredActions []string `json:"required_actions"`
	Outcome         Outcome  `json:"outcome"`
	Cause           string   `json:"cause,omitempty"`
}

func newValidationResult() *ValidationResult {
	return &ValidationResult{
		IsValid:         true,
		Errors:          []string{},
		Warnings:        []string{},
		RequiredActions: []string{},
		Outcome:         OutcomeOK,
	}
}

func (r *ValidationResult) addError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.IsValid = false
}

func (r *ValidationResult) addWarning(msg string) { r.Warnings = append(r.Warnings, msg) }

func (r *ValidationResult) require(action string) {
	r.RequiredActions = append(r.RequiredActions, action)
}

// Degraded reports a fail-open result.
func (r *ValidationResult) Degraded() bool { return r.Outcome == OutcomeDegraded }

// Block turns a degraded result into a rejection.
func (r *ValidationResult) Block() {
	if !r.Degraded() || !r.IsValid {
		return
	}
	r.addError("Pathway checks could not be completed: " + r.Cause)
}

// ComplianceResult answers whether a change or request meets guideline
// expectations. Findings are advisory.
type ComplianceResult struct {
	IsCompliant     bool     `json:"is_compliant"`
	Errors          []string `json:"errors"`
	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
	Outcome         Outcome  `json:"outcome"`
	Cause           string   `json:"cause,omitempty"`
}

func newComplianceResult() *ComplianceResult {
	return &ComplianceResult{
		IsCompliant:     true,
		Errors:          []string{},
		Warnings:        []string{},
		Recommendations: []string{},
		Outcome:         OutcomeOK,
	}
}

// addWarning records an advisory finding; only errors make a result
// non-compliant.
func (r *ComplianceResult) addWarning(msg string) { r.Warnings = append(r.Warnings, msg) }

func (r *ComplianceResult) recommend(msg string) {
	r.Recommendations = append(r.Recommendations, msg)
}

func (r *ComplianceResult) Degraded() bool { return r.Outcome == OutcomeDegraded }

// Block turns a degraded result into a non-compliant one.
func (r *ComplianceResult) Block() {
	if !r.Degraded() {
		return
	}
	r.Errors = append(r.Errors, "Compliance checks could not be completed: "+r.Cause)
	r.IsCompliant = false
}

// ValidationLog maps to the pathway_validation_log table (append-only).
type ValidationLog struct {
	ID              uuid.UUID `db:"id" json:"id"`
	PatientID       uuid.UUID `db:"patient_id" json:"patient_id"`
	FromPathway     string    `db:"from_pathway" json:"from_pathway"`
	ToPathway       string    `db:"to_pathway" json:"to_pathway"`
	IsValid         bool      `db:"is_valid" json:"is_valid"`
	Outcome         Outcome   `db:"outcome" json:"outcome"`
	Errors          []string  `db:"errors" json:"errors"`
	Warnings        []string  `db:"warnings" json:"warnings"`
	RequiredActions []string  `db:"required_actions" json:"required_actions"`
	ActingUser      *string   `db:"acting_user" json:"acting_user,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// ComplianceLog maps to the compliance_check_log table (append-only).
type ComplianceLog struct {
	ID                uuid.UUID `db:"id" json:"id"`
	PatientID         uuid.UUID `db:"patient_id" json:"patient_id"`
	CheckType         string    `db:"check_type" json:"check_type"`
	FromPathway       *string   `db:"from_pathway" json:"from_pathway,omitempty"`
	ToPathway         *string   `db:"to_pathway" json:"to_pathway,omitempty"`
	InvestigationType *string   `db:"investigation_type" json:"investigation_type,omitempty"`
	InvestigationName *string   `db:"investigation_name" json:"investigation_name,omitempty"`
	IsCompliant       bool      `db:"is_compliant" json:"is_compliant"`
	Outcome           Outcome   `db:"outcome" json:"outcome"`
	Warnings          []string  `db:"warnings" json:"warnings"`
	Recommendations   []string  `db:"recommendations" json:"recommendations"`
	ActingUser        *string   `db:"acting_user" json:"acting_user,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Transition is the outcome of applying a pathway change.
type Transition struct {
	PatientID   uuid.UUID         `json:"patient_id"`
	FromPathway string            `json:"from_pathway"`
	ToPathway   string            `json:"to_pathway"`
	Applied     bool              `json:"applied"`
	Forced      bool              `json:"forced,omitempty"`
	AppliedAt   *time.Time        `json:"applied_at,omitempty"`
	Validation  *ValidationResult `json:"validation"`
	Compliance  *ComplianceResult `json:"compliance,omitempty"`
}
