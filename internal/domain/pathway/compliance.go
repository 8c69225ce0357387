package pathway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/urocare/pathway/internal/domain/guideline"
	"github.com/urocare/pathway/internal/domain/patient"
)

// Compliance findings.
const (
	MsgComplianceMRI     = "Guidelines expect a completed MRI before surgery"
	MsgComplianceMDT     = "Guidelines expect MDT review before surgery"
	MsgCompliancePSA     = "Guidelines expect a PSA result within the last 12 months for active monitoring"
	MsgBiopsyWithoutMRI  = "Biopsy requested without a prior MRI"
	RecScheduleMRI       = "Schedule MRI"
	RecScheduleMDT       = "Refer to MDT meeting"
	RecSchedulePSA       = "Schedule PSA test"
	RecMRIBeforeBiopsy   = "Schedule MRI before biopsy"
	msgTransitionListing = "Transition %s -> %s is not listed in guideline %q (v%s)"
	msgPSARepeat         = "PSA test requested %d days after the previous one; guidelines expect at least %d days"
)

// GuidelineSource returns the guideline rules applicable to a patient.
type GuidelineSource interface {
	ApplicableGuidelines(ctx context.Context, p *patient.Patient) ([]*guideline.Rule, error)
}

// Checker decides whether a change or investigation request meets guideline
// expectations. Every call is written to the compliance audit log.
type Checker struct {
	facts      *factLoader
	guidelines GuidelineSource
	audit      *AuditLog
	now        func() time.Time
	logger     zerolog.Logger
}

func NewChecker(patients patient.Repository, history patient.HistoryRepository, guidelines GuidelineSource, audit *AuditLog, logger zerolog.Logger) *Checker {
	return &Checker{
		facts:      &factLoader{patients: patients, history: history},
		guidelines: guidelines,
		audit:      audit,
		now:        time.Now,
		logger:     logger,
	}
}

func (c *Checker) CheckPathwayCompliance(ctx context.Context, patientID uuid.UUID, from, to string) *ComplianceResult {
	var n need
	if to == patient.PathwaySurgery {
		n |= needMDT
	}

	res, err := c.checkPathway(ctx, patientID, from, to, n)
	if err != nil {
		res = c.degraded(err)
		c.logger.Warn().Err(err).Str("patient_id", patientID.String()).
			Str("from", from).Str("to", to).Msg("pathway compliance degraded")
	}

	c.audit.recordCompliance(ctx, &ComplianceLog{
		PatientID:       patientID,
		CheckType:       CheckPathway,
		FromPathway:     &from,
		ToPathway:       &to,
		IsCompliant:     res.IsCompliant,
		Outcome:         res.Outcome,
		Warnings:        res.Warnings,
		Recommendations: res.Recommendations,
	})
	return res
}

func (c *Checker) checkPathway(ctx context.Context, patientID uuid.UUID, from, to string, n need) (*ComplianceResult, error) {
	f, err := c.facts.load(ctx, patientID, n)
	if err != nil {
		return nil, err
	}
	rules, err := c.guidelines.ApplicableGuidelines(ctx, f.Patient)
	if err != nil {
		return nil, fmt.Errorf("guideline lookup: %w", err)
	}
	return evaluatePathwayCompliance(f, rules, from, to, c.now()), nil
}

func (c *Checker) CheckInvestigationCompliance(ctx context.Context, patientID uuid.UUID, investigationType, investigationName string) *ComplianceResult {
	var res *ComplianceResult
	f, err := c.facts.load(ctx, patientID, 0)
	if err != nil {
		res = c.degraded(err)
		c.logger.Warn().Err(err).Str("patient_id", patientID.String()).
			Str("investigation_type", investigationType).Msg("investigation compliance degraded")
	} else {
		res = evaluateInvestigationCompliance(f, investigationType, investigationName, c.now())
	}

	var name *string
	if investigationName != "" {
		name = &investigationName
	}
	c.audit.recordCompliance(ctx, &ComplianceLog{
		PatientID:         patientID,
		CheckType:         CheckInvestigation,
		InvestigationType: &investigationType,
		InvestigationName: name,
		IsCompliant:       res.IsCompliant,
		Outcome:           res.Outcome,
		Warnings:          res.Warnings,
		Recommendations:   res.Recommendations,
	})
	return res
}

func (c *Checker) degraded(err error) *ComplianceResult {
	res := newComplianceResult()
	res.Outcome = OutcomeDegraded
	res.Cause = err.Error()
	res.Warnings = append(res.Warnings, "Compliance check could not be completed: "+err.Error())
	return res
}

func evaluatePathwayCompliance(f *Facts, rules []*guideline.Rule, from, to string, now time.Time) *ComplianceResult {
	res := newComplianceResult()

	if to == patient.PathwaySurgery {
		if !MRICompleted(f) {
			res.addWarning(MsgComplianceMRI)
			res.recommend(RecScheduleMRI)
		}
		if !MDTCompleted(f) {
			res.addWarning(MsgComplianceMDT)
			res.recommend(RecScheduleMDT)
		}
	}
	if to == patient.PathwayActiveMonitoring && !PSAWithin(f, now, PSAMonitoringWindowDays) {
		res.addWarning(MsgCompliancePSA)
		res.recommend(RecSchedulePSA)
	}

	for _, r := range rules {
		if r.Category != guideline.CategoryPathwayTransition {
			continue
		}
		if !r.AllowsTransition(from, to) {
			res.addWarning(fmt.Sprintf(msgTransitionListing, displayPathway(from), to, r.Name, r.Version))
			if r.RecommendationText != "" {
				res.recommend(r.RecommendationText)
			}
		}
	}
	return res
}

func evaluateInvestigationCompliance(f *Facts, investigationType, investigationName string, now time.Time) *ComplianceResult {
	res := newComplianceResult()
	requested := &patient.Investigation{TestType: investigationType, TestName: investigationName}

	if requested.Is(patient.KindPSA) {
		if since, ok := DaysSinceLastPSA(f, now); ok && since < PSARepeatIntervalDays {
			res.addWarning(fmt.Sprintf(msgPSARepeat, since, PSARepeatIntervalDays))
		}
	}
	if requested.Is(patient.KindBiopsy) && !MRICompleted(f) {
		res.addWarning(MsgBiopsyWithoutMRI)
		res.recommend(RecMRIBeforeBiopsy)
	}
	return res
}

func displayPathway(p string) string {
	if p == patient.PathwayNone {
		return "(none)"
	}
	return p
}
