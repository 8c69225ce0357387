package pathway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urocare/pathway/internal/domain/patient"
	"github.com/urocare/pathway/internal/platform/events"
)

func newTestService(f *fixture, strict bool) (*Service, *events.Recorder) {
	rec := &events.Recorder{}
	svc := NewService(f.patients, f.validator, f.checker, f.vlogs, f.clogs, rec, strict, zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return svc, rec
}

func TestService_ApplyTransition(t *testing.T) {
	f := newFixture()
	svc, rec := newTestService(f, false)
	p := f.addPatient(patient.PathwayMedication)
	f.history.discharge[p.ID] = 1

	tr, err := svc.ApplyTransition(context.Background(), p.ID, patient.PathwayDischarge, false)
	require.NoError(t, err)
	assert.True(t, tr.Applied)
	assert.False(t, tr.Forced)
	assert.Equal(t, patient.PathwayMedication, tr.FromPathway)
	assert.Equal(t, patient.PathwayDischarge, p.CarePathway)
	require.NotNil(t, p.CarePathwayUpdatedAt)
	assert.True(t, p.CarePathwayUpdatedAt.Equal(testNow))
	assert.NotNil(t, tr.Compliance)
	assert.Equal(t, 1, rec.Count(events.PathwayChanged))
	assert.Len(t, f.vlogs.logs, 1)
	assert.Len(t, f.clogs.logs, 1)
}

func TestService_ApplyTransition_BlockedByValidationErrors(t *testing.T) {
	f := newFixture()
	svc, rec := newTestService(f, false)
	p := f.addPatient(patient.PathwayMedication)

	tr, err := svc.ApplyTransition(context.Background(), p.ID, patient.PathwaySurgery, false)
	require.NoError(t, err)
	assert.False(t, tr.Applied)
	assert.False(t, tr.Validation.IsValid)
	assert.Equal(t, patient.PathwayMedication, p.CarePathway)
	assert.Nil(t, p.CarePathwayUpdatedAt)
	assert.Zero(t, rec.Count(events.PathwayChanged))
}

func TestService_ApplyTransition_Forced(t *testing.T) {
	f := newFixture()
	svc, _ := newTestService(f, false)
	p := f.addPatient(patient.PathwayMedication)

	tr, err := svc.ApplyTransition(context.Background(), p.ID, patient.PathwaySurgery, true)
	require.NoError(t, err)
	assert.True(t, tr.Applied)
	assert.True(t, tr.Forced)
	assert.Equal(t, patient.PathwaySurgery, p.CarePathway)
}

func TestService_ApplyTransition_NoChange(t *testing.T) {
	f := newFixture()
	svc, _ := newTestService(f, false)
	p := f.addPatient(patient.PathwayMedication)

	_, err := svc.ApplyTransition(context.Background(), p.ID, patient.PathwayMedication, false)
	assert.ErrorIs(t, err, ErrNoChange)
	assert.Empty(t, f.vlogs.logs)
}

func TestService_ApplyTransition_NotFound(t *testing.T) {
	f := newFixture()
	svc, _ := newTestService(f, false)
	_, err := svc.ApplyTransition(context.Background(), uuid.New(), patient.PathwayDischarge, false)
	assert.ErrorIs(t, err, patient.ErrNotFound)
}

func TestService_ApplyTransition_UpdateFailure(t *testing.T) {
	f := newFixture()
	svc, rec := newTestService(f, false)
	p := f.addPatient(patient.PathwayMedication)
	f.patients.updateErr = errors.New("deadlock")

	_, err := svc.ApplyTransition(context.Background(), p.ID, patient.PathwayDischarge, false)
	assert.Error(t, err)
	assert.Zero(t, rec.Count(events.PathwayChanged))
}

func TestService_StrictPolicyBlocksDegraded(t *testing.T) {
	f := newFixture()
	p := f.addPatient(patient.PathwayMedication)
	f.history.err = errors.New("replica lag")

	lenient, _ := newTestService(f, false)
	assert.True(t, lenient.Validate(context.Background(), p.ID, p.CarePathway, patient.PathwayDischarge).IsValid)

	strict, _ := newTestService(f, true)
	res := strict.Validate(context.Background(), p.ID, p.CarePathway, patient.PathwayDischarge)
	assert.False(t, res.IsValid)
	assert.True(t, res.Degraded())

	tr, err := strict.ApplyTransition(context.Background(), p.ID, patient.PathwayDischarge, false)
	require.NoError(t, err)
	assert.False(t, tr.Applied)
}
