package guideline

import (
	"time"

	"github.com/google/uuid"
)

// Rule categories.
const (
	CategoryPathwayTransition = "pathway_transition"
	CategoryDiagnosis         = "diagnosis"
	CategoryFollowUp          = "follow_up"
	CategoryInvestigation     = "investigation"
)

// Criteria is the predicate a patient must satisfy for a rule to apply.
// Nil bounds and empty sets are not evaluated.
type Criteria struct {
	AgeMin             *int     `json:"age_min,omitempty"`
	AgeMax             *int     `json:"age_max,omitempty"`
	PSAMin             *float64 `json:"psa_min,omitempty"`
	PSAMax             *float64 `json:"psa_max,omitempty"`
	Genders            []string `json:"genders,omitempty"`
	Pathways           []string `json:"pathways,omitempty"`
	AllowedTransitions []string `json:"allowed_transitions,omitempty"`
}

// Rule maps to the guideline_rule table.
type Rule struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	Version            string    `db:"version" json:"version"`
	Category           string    `db:"category" json:"category"`
	Criteria           Criteria  `db:"criteria" json:"criteria"`
	RecommendationText string    `db:"recommendation_text" json:"recommendation_text"`
	EvidenceLevel      string    `db:"evidence_level" json:"evidence_level,omitempty"`
	Active             bool      `db:"active" json:"active"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// AllowsTransition reports whether the rule permits moving from one pathway to
// another. Rules without allowed transitions permit everything.
func (r *Rule) AllowsTransition(from, to string) bool {
	if len(r.Criteria.AllowedTransitions) == 0 {
		return true
	}
	pair := from + "->" + to
	for _, t := range r.Criteria.AllowedTransitions {
		if t == pair || t == to {
			return true
		}
	}
	return false
}
