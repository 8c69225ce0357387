package pathway

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urocare/pathway/internal/domain/guideline"
	"github.com/urocare/pathway/internal/domain/patient"
)

func transitionRule(name string, allowed ...string) *guideline.Rule {
	return &guideline.Rule{
		Name:               name,
		Version:            "2",
		Category:           guideline.CategoryPathwayTransition,
		RecommendationText: "Review transition with MDT",
		Active:             true,
		Criteria:           guideline.Criteria{AllowedTransitions: allowed},
	}
}

func TestCheckPathwayCompliance_AllowedTransitions(t *testing.T) {
	f := newFixture()
	p := f.addPatient(patient.PathwayActiveMonitoring)
	f.addInvestigation(p, "PSA", patient.InvestigationCompleted, 30)
	ctx := context.Background()

	f.guidelines.rules = []*guideline.Rule{transitionRule("EAU AM exit", "Active Monitoring->Medication", "Discharge")}

	res := f.checker.CheckPathwayCompliance(ctx, p.ID, patient.PathwayActiveMonitoring, patient.PathwayMedication)
	assert.True(t, res.IsCompliant)
	assert.Empty(t, res.Warnings)

	res = f.checker.CheckPathwayCompliance(ctx, p.ID, patient.PathwayMedication, patient.PathwayDischarge)
	assert.True(t, res.IsCompliant, "bare destination is accepted from any pathway")

	res = f.checker.CheckPathwayCompliance(ctx, p.ID, patient.PathwayActiveMonitoring, patient.PathwayPostOp)
	assert.True(t, res.IsCompliant, "guideline warnings are advisory")
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], `"EAU AM exit"`)
	assert.Empty(t, res.Errors, "guideline findings are never errors")
	assert.Contains(t, res.Recommendations, "Review transition with MDT")
}

func TestCheckPathwayCompliance_IgnoresOtherCategories(t *testing.T) {
	f := newFixture()
	p := f.addPatient(patient.PathwayMedication)
	r := transitionRule("diagnostic", "Discharge")
	r.Category = guideline.CategoryDiagnosis
	f.guidelines.rules = []*guideline.Rule{r}

	res := f.checker.CheckPathwayCompliance(context.Background(), p.ID, patient.PathwayMedication, patient.PathwayPostOp)
	assert.True(t, res.IsCompliant)
}

func TestCheckPathwayCompliance_SharedPredicates(t *testing.T) {
	f := newFixture()
	p := f.addPatient(patient.PathwayMedication)

	res := f.checker.CheckPathwayCompliance(context.Background(), p.ID, p.CarePathway, patient.PathwaySurgery)
	assert.True(t, res.IsCompliant)
	assert.Contains(t, res.Warnings, MsgComplianceMRI)
	assert.Contains(t, res.Warnings, MsgComplianceMDT)
	assert.Contains(t, res.Recommendations, RecScheduleMRI)
	assert.Empty(t, res.Errors)

	res = f.checker.CheckPathwayCompliance(context.Background(), p.ID, p.CarePathway, patient.PathwayActiveMonitoring)
	assert.Contains(t, res.Warnings, MsgCompliancePSA)
}

func TestCheckPathwayCompliance_GuidelineLookupFailsOpen(t *testing.T) {
	f := newFixture()
	p := f.addPatient(patient.PathwayMedication)
	f.guidelines.err = errors.New("cache unavailable")

	res := f.checker.CheckPathwayCompliance(context.Background(), p.ID, p.CarePathway, patient.PathwayDischarge)
	assert.True(t, res.IsCompliant)
	assert.True(t, res.Degraded())
	assert.Contains(t, res.Cause, "cache unavailable")
	require.Len(t, f.clogs.logs, 1)
	assert.Equal(t, CheckPathway, f.clogs.logs[0].CheckType)
	assert.Equal(t, OutcomeDegraded, f.clogs.logs[0].Outcome)
}

func TestCheckInvestigationCompliance_PSARepeatInterval(t *testing.T) {
	f := newFixture()
	p := f.addPatient(patient.PathwayActiveMonitoring)
	f.addInvestigation(p, "PSA", patient.InvestigationCompleted, 45)

	res := f.checker.CheckInvestigationCompliance(context.Background(), p.ID, "Blood", "PSA total")
	assert.True(t, res.IsCompliant)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, fmt.Sprintf(msgPSARepeat, 45, PSARepeatIntervalDays), res.Warnings[0])

	f.history.investigations[p.ID] = nil
	f.addInvestigation(p, "PSA", patient.InvestigationCompleted, 90)
	res = f.checker.CheckInvestigationCompliance(context.Background(), p.ID, "PSA", "")
	assert.True(t, res.IsCompliant)
}

func TestCheckInvestigationCompliance_BiopsyWithoutMRI(t *testing.T) {
	f := newFixture()
	p := f.addPatient(patient.PathwayMedication)
	ctx := context.Background()

	res := f.checker.CheckInvestigationCompliance(ctx, p.ID, "Biopsy", "Transperineal biopsy")
	assert.Contains(t, res.Warnings, MsgBiopsyWithoutMRI)
	assert.Contains(t, res.Recommendations, RecMRIBeforeBiopsy)

	f.addInvestigation(p, "MRI", patient.InvestigationCompleted, 14)
	res = f.checker.CheckInvestigationCompliance(ctx, p.ID, "Biopsy", "")
	assert.True(t, res.IsCompliant)

	require.Len(t, f.clogs.logs, 2)
	assert.Equal(t, CheckInvestigation, f.clogs.logs[0].CheckType)
	require.NotNil(t, f.clogs.logs[0].InvestigationName)
	assert.Nil(t, f.clogs.logs[1].InvestigationName)
}

func TestCheckInvestigationCompliance_PatientLookupFailsOpen(t *testing.T) {
	f := newFixture()
	f.patients.err = errors.New("timeout")
	p := f.addPatient(patient.PathwayMedication)

	res := f.checker.CheckInvestigationCompliance(context.Background(), p.ID, "Biopsy", "")
	assert.True(t, res.IsCompliant)
	assert.True(t, res.Degraded())

	res.Block()
	assert.False(t, res.IsCompliant)
	assert.NotEmpty(t, res.Errors)
}

func TestCheckPathwayCompliance_WarningsAndErrorsStayDistinct(t *testing.T) {
	f := newFixture()
	p := f.addPatient(patient.PathwayActiveMonitoring)
	f.addInvestigation(p, "PSA", patient.InvestigationCompleted, 30)
	f.guidelines.rules = []*guideline.Rule{transitionRule("g", "Discharge")}
	ctx := context.Background()

	res := f.checker.CheckPathwayCompliance(ctx, p.ID, patient.PathwayActiveMonitoring, patient.PathwayMedication)
	require.Len(t, res.Warnings, 1)
	assert.Empty(t, res.Errors)
	assert.True(t, res.IsCompliant)
	assert.Equal(t, OutcomeOK, res.Outcome)

	f.guidelines.err = errors.New("cache unavailable")
	res = f.checker.CheckPathwayCompliance(ctx, p.ID, patient.PathwayActiveMonitoring, patient.PathwayMedication)
	assert.True(t, res.IsCompliant)
	assert.True(t, res.Degraded())

	res.Block()
	assert.False(t, res.IsCompliant)
	assert.Len(t, res.Errors, 1)
}
