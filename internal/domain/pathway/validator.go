package pathway

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/urocare/pathway/internal/domain/patient"
)

// Validator findings.
const (
	MsgMRIRequired         = "MRI investigation must be completed before moving to Surgery Pathway"
	MsgMDTMissing          = "No completed MDT meeting found; MDT review is recommended before surgery"
	MsgBiopsyMissing       = "No biopsy on file; biopsy is recommended before surgery"
	MsgPSAOverdue          = "PSA test should be performed within last 12 months for active monitoring"
	MsgSurgeryNotCompleted = "No completed surgery appointment found for post-op follow-up"
	MsgNoDischargeSummary  = "Discharge summary has not been prepared"

	ActionCompleteMRI      = "Complete MRI investigation"
	ActionSchedulePSA      = "Schedule PSA test"
	ActionPrepareDischarge = "Prepare discharge summary"
)

// Validator decides whether a pathway change may happen. Every call is
// written to the validation audit log.
type Validator struct {
	facts  *factLoader
	audit  *AuditLog
	now    func() time.Time
	logger zerolog.Logger
}

func NewValidator(patients patient.Repository, history patient.HistoryRepository, appointments AppointmentHistory, audit *AuditLog, logger zerolog.Logger) *Validator {
	return &Validator{
		facts:  &factLoader{patients: patients, history: history, appointments: appointments},
		audit:  audit,
		now:    time.Now,
		logger: logger,
	}
}

// ValidateTransition never fails: lookup errors produce a valid result with
// OutcomeDegraded and a warning naming the failure.
func (v *Validator) ValidateTransition(ctx context.Context, patientID uuid.UUID, from, to string) *ValidationResult {
	var n need
	switch {
	case to == patient.PathwaySurgery:
		n |= needMDT
	case to == patient.PathwayDischarge:
		n |= needDischarge
	case from == patient.PathwaySurgery && to == patient.PathwayPostOp:
		n |= needSurgery
	}

	var res *ValidationResult
	f, err := v.facts.load(ctx, patientID, n)
	if err != nil {
		res = newValidationResult()
		res.Outcome = OutcomeDegraded
		res.Cause = err.Error()
		res.addWarning("Pathway validation could not be completed: " + err.Error())
		v.logger.Warn().Err(err).Str("patient_id", patientID.String()).
			Str("from", from).Str("to", to).Msg("pathway validation degraded")
	} else {
		res = evaluateTransition(f, from, to, v.now())
	}

	v.audit.recordValidation(ctx, &ValidationLog{
		PatientID:       patientID,
		FromPathway:     from,
		ToPathway:       to,
		IsValid:         res.IsValid,
		Outcome:         res.Outcome,
		Errors:          res.Errors,
		Warnings:        res.Warnings,
		RequiredActions: res.RequiredActions,
	})
	return res
}

// evaluateTransition runs every applicable rule; findings accumulate.
func evaluateTransition(f *Facts, from, to string, now time.Time) *ValidationResult {
	res := newValidationResult()

	if to == patient.PathwaySurgery {
		if !MRICompleted(f) {
			res.addError(MsgMRIRequired)
			res.require(ActionCompleteMRI)
		}
		if !MDTCompleted(f) {
			res.addWarning(MsgMDTMissing)
		}
		if !BiopsyOnFile(f) {
			res.addWarning(MsgBiopsyMissing)
		}
	}

	if to == patient.PathwayActiveMonitoring && !PSAWithin(f, now, PSAMonitoringWindowDays) {
		res.addWarning(MsgPSAOverdue)
		res.require(ActionSchedulePSA)
	}

	if from == patient.PathwaySurgery && to == patient.PathwayPostOp && !SurgeryCompleted(f) {
		res.addWarning(MsgSurgeryNotCompleted)
	}

	if to == patient.PathwayDischarge && !DischargeSummaryOnFile(f) {
		res.addWarning(MsgNoDischargeSummary)
		res.require(ActionPrepareDischarge)
	}

	return res
}
