package decision

import (
	"fmt"
	"sort"
	"time"

	"github.com/urocare/pathway/internal/domain/guideline"
	"github.com/urocare/pathway/internal/domain/pathway"
	"github.com/urocare/pathway/internal/domain/patient"
)

// Generated recommendation texts.
const (
	TextConsiderMRIBiopsy = "PSA above 4.0 ng/mL: consider MRI and/or prostate biopsy"
	TextReviewUrologist   = "PSA between 2.5 and 4.0 ng/mL under age 60: review with urologist"
	TextAnnualPSA         = "No PSA in the last 12 months on active monitoring: schedule annual PSA"
	TextScheduleMRI       = "No MRI on file for surgery pathway: schedule MRI"
)

var priorityRank = map[string]int{PriorityHigh: 3, PriorityMedium: 2, PriorityLow: 1}

func strPtr(s string) *string { return &s }

func newGenerated(p *patient.Patient, now time.Time, typ, priority, text, action string) *Recommendation {
	r := &Recommendation{
		PatientID: p.ID,
		Type:      typ,
		Priority:  priority,
		Text:      text,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Source:    SourceGenerated,
	}
	if action != "" {
		r.Action = strPtr(action)
	}
	return r
}

// fromPatient derives recommendations from the patient record alone.
func fromPatient(p *patient.Patient, now time.Time) []*Recommendation {
	psa, ok := p.PSA()
	if !ok {
		return nil
	}
	switch age := p.AgeAt(now); {
	case psa > 4.0:
		return []*Recommendation{newGenerated(p, now, TypeInvestigation, PriorityHigh, TextConsiderMRIBiopsy, "Consider MRI and/or biopsy")}
	case psa > 2.5 && age < 60:
		return []*Recommendation{newGenerated(p, now, TypeReferral, PriorityMedium, TextReviewUrologist, "Review with urologist")}
	}
	return nil
}

// fromHistory derives the pathway recommendations that need the
// investigation history.
func fromHistory(f *pathway.Facts, now time.Time) []*Recommendation {
	p := f.Patient
	var out []*Recommendation
	if p.CarePathway == patient.PathwayActiveMonitoring && !pathway.PSAWithin(f, now, pathway.PSAMonitoringWindowDays) {
		out = append(out, newGenerated(p, now, TypeMonitoring, PriorityHigh, TextAnnualPSA, "Schedule annual PSA"))
	}
	if p.CarePathway == patient.PathwaySurgery && f.Investigations.Latest(patient.KindMRI, false) == nil {
		out = append(out, newGenerated(p, now, TypeInvestigation, PriorityHigh, TextScheduleMRI, "Schedule MRI"))
	}
	return out
}

// fromGuidelines adds one low-priority recommendation per matched rule.
func fromGuidelines(p *patient.Patient, rules []*guideline.Rule, now time.Time) []*Recommendation {
	out := make([]*Recommendation, 0, len(rules))
	for _, rule := range rules {
		r := newGenerated(p, now, TypeGuideline, PriorityLow, rule.RecommendationText, "")
		r.GuidelineReference = strPtr(fmt.Sprintf("%s v%s", rule.Name, rule.Version))
		if rule.EvidenceLevel != "" {
			r.EvidenceLevel = strPtr(rule.EvidenceLevel)
		}
		out = append(out, r)
	}
	return out
}

// order sorts by priority descending, then newest first.
func order(recs []*Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		pi, pj := priorityRank[recs[i].Priority], priorityRank[recs[j].Priority]
		if pi != pj {
			return pi > pj
		}
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
}
