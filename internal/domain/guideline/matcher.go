package guideline

import (
	"time"

	"github.com/urocare/pathway/internal/domain/patient"
)

// Matches reports whether every predicate present in the rule's criteria
// holds for the patient on the given date. A PSA bound cannot hold for a
// patient without a recorded PSA.
func Matches(r *Rule, p *patient.Patient, now time.Time) bool {
	c := r.Criteria
	if c.AgeMin != nil || c.AgeMax != nil {
		age := p.AgeAt(now)
		if c.AgeMin != nil && age < *c.AgeMin {
			return false
		}
		if c.AgeMax != nil && age > *c.AgeMax {
			return false
		}
	}
	if c.PSAMin != nil || c.PSAMax != nil {
		psa, ok := p.PSA()
		if !ok {
			return false
		}
		if c.PSAMin != nil && psa < *c.PSAMin {
			return false
		}
		if c.PSAMax != nil && psa > *c.PSAMax {
			return false
		}
	}
	if len(c.Genders) > 0 && !contains(c.Genders, p.Gender) {
		return false
	}
	if len(c.Pathways) > 0 && !contains(c.Pathways, p.CarePathway) {
		return false
	}
	return true
}

// Applicable filters rules down to those matching the patient, keeping order.
func Applicable(rules []*Rule, p *patient.Patient, now time.Time) []*Rule {
	out := make([]*Rule, 0, len(rules))
	for _, r := range rules {
		if Matches(r, p, now) {
			out = append(out, r)
		}
	}
	return out
}

// InCategory filters rules by category.
func InCategory(rules []*Rule, category string) []*Rule {
	out := make([]*Rule, 0, len(rules))
	for _, r := range rules {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
