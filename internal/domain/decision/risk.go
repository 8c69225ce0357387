package decision

import (
	"fmt"

	"github.com/urocare/pathway/internal/domain/patient"
)

// RiskInput is what the risk score reads from a patient.
type RiskInput struct {
	PSA            float64
	HasPSA         bool
	Age            int
	AbnormalBiopsy bool
}

// Score computes the additive risk score. The PSA brackets are exclusive and
// the highest one applies.
func Score(in RiskInput) *RiskScore {
	rs := &RiskScore{Factors: []string{}}
	add := func(points int, factor string) {
		rs.Score += points
		rs.Factors = append(rs.Factors, fmt.Sprintf("%s (+%d)", factor, points))
	}

	if in.HasPSA {
		switch {
		case in.PSA > 10:
			add(3, "PSA above 10")
		case in.PSA > 4:
			add(2, "PSA above 4")
		case in.PSA > 2.5:
			add(1, "PSA above 2.5")
		}
	}
	if in.Age > 70 {
		add(1, "age above 70")
	}
	if in.Age < 50 && in.HasPSA && in.PSA > 2.5 {
		add(2, "raised PSA under age 50")
	}
	if in.AbnormalBiopsy {
		add(3, "abnormal biopsy")
	}
	rs.Category = Category(rs.Score)
	return rs
}

// Category maps a score to its risk band.
func Category(score int) string {
	switch {
	case score >= 6:
		return RiskHigh
	case score >= 3:
		return RiskMedium
	}
	return RiskLow
}

func riskInput(p *patient.Patient, inv patient.Investigations, age int) RiskInput {
	psa, ok := p.PSA()
	return RiskInput{
		PSA:    psa,
		HasPSA: ok,
		Age:    age,
		AbnormalBiopsy: inv.Any(patient.KindBiopsy, func(i *patient.Investigation) bool {
			return i.Abnormal()
		}),
	}
}
