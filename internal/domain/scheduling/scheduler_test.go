package scheduling

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urocare/pathway/internal/domain/patient"
	"github.com/urocare/pathway/internal/domain/staff"
	"github.com/urocare/pathway/internal/platform/events"
	"github.com/urocare/pathway/internal/platform/lock"
)

var testNow = time.Date(2025, 6, 15, 2, 0, 0, 0, time.UTC)

// ── Mock Repositories ──

type memStore struct {
	mu        sync.Mutex
	patients  []*patient.Patient
	appts     []*Appointment
	runs      []*SchedulerRun
	failFor   map[uuid.UUID]error
	panicFor  map[uuid.UUID]bool
	scanErr   error
	bookCalls int
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (m *memStore) hasPendingAuto(id uuid.UUID, today time.Time) bool {
	for _, a := range m.appts {
		if a.PatientID == id && a.AppointmentType == TypeAutomatic &&
			(a.Status == StatusScheduled || a.Status == StatusConfirmed) && !a.AppointmentDate.Before(today) {
			return true
		}
	}
	return false
}

func (m *memStore) ListEligible(_ context.Context, cutoff, today time.Time) ([]*patient.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	var out []*patient.Patient
	for _, p := range m.patients {
		if !contains(EligiblePathways, p.CarePathway) || !contains(eligibleStatuses, p.Status) {
			continue
		}
		if p.CarePathwayUpdatedAt == nil || p.CarePathwayUpdatedAt.After(cutoff) {
			continue
		}
		if m.hasPendingAuto(p.ID, today) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) BookAutomatic(_ context.Context, id uuid.UUID, today time.Time, appts []*Appointment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookCalls++
	if m.panicFor[id] {
		panic("nil row")
	}
	if err := m.failFor[id]; err != nil {
		return false, err
	}
	if m.hasPendingAuto(id, today) {
		return false, nil
	}
	m.appts = append(m.appts, appts...)
	return true, nil
}

func (m *memStore) RecentNoShows(_ context.Context, id uuid.UUID, limit int) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.appts {
		if a.PatientID == id && a.Status == StatusNoShow {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At().After(out[j].At()) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) HasAppointmentBetween(_ context.Context, id uuid.UUID, from, to time.Time, statuses []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		at := a.At()
		if a.PatientID == id && contains(statuses, a.Status) && !at.Before(from) && !at.After(to) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CountCompletedByType(_ context.Context, id uuid.UUID, t string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.appts {
		if a.PatientID == id && a.AppointmentType == t && a.Status == StatusCompleted {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListByPatient(_ context.Context, id uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.appts {
		if a.PatientID == id {
			out = append(out, a)
		}
	}
	total := len(out)
	if offset > total {
		offset = total
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *memStore) Claim(_ context.Context, run *SchedulerRun) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !run.Forced {
		for _, r := range m.runs {
			if !r.Forced && r.RunDate.Equal(run.RunDate) {
				return false, nil
			}
		}
	}
	run.ID = uuid.New()
	cp := *run
	m.runs = append(m.runs, &cp)
	return true, nil
}

func (m *memStore) Finish(_ context.Context, run *SchedulerRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.runs {
		if r.ID == run.ID {
			cp := *run
			m.runs[i] = &cp
		}
	}
	return nil
}

func (m *memStore) List(_ context.Context, limit, offset int) ([]*SchedulerRun, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs, len(m.runs), nil
}

type mockClinicians map[uuid.UUID]*staff.Clinician

func (m mockClinicians) GetByID(_ context.Context, id uuid.UUID) (*staff.Clinician, error) {
	if c, ok := m[id]; ok {
		return c, nil
	}
	return nil, staff.ErrNotFound
}

// ── Fixtures ──

type fixture struct {
	store      *memStore
	clinicians mockClinicians
	locker     *lock.LocalLocker
	events     *events.Recorder
	sched      *Scheduler
	urologist  *staff.Clinician
}

func newFixture() *fixture {
	f := &fixture{
		store:      &memStore{failFor: map[uuid.UUID]error{}, panicFor: map[uuid.UUID]bool{}},
		clinicians: mockClinicians{},
		locker:     lock.NewLocalLocker(),
		events:     &events.Recorder{},
		urologist:  &staff.Clinician{ID: uuid.New(), Email: "uro@example.test", DisplayName: "Dr Uro", Active: true},
	}
	f.clinicians[f.urologist.ID] = f.urologist
	f.sched = NewScheduler(f.locker, f.store, f.store, f.clinicians, f.events, time.Minute, zerolog.Nop())
	f.sched.now = func() time.Time { return testNow }
	return f
}

// addPatient registers a patient who has dwelt on the pathway long enough.
func (f *fixture) addPatient(pathway string) *patient.Patient {
	since := testNow.AddDate(-1, 0, -1)
	uid := f.urologist.ID
	p := &patient.Patient{
		ID:                   uuid.New(),
		CarePathway:          pathway,
		CarePathwayUpdatedAt: &since,
		AssignedUrologistID:  &uid,
		Status:               patient.StatusActive,
		UpdatedAt:            since,
	}
	f.store.patients = append(f.store.patients, p)
	return p
}

func (f *fixture) appointmentsOf(id uuid.UUID, typ string) []*Appointment {
	var out []*Appointment
	for _, a := range f.store.appts {
		if a.PatientID == id && a.AppointmentType == typ {
			out = append(out, a)
		}
	}
	return out
}

func noShow(id uuid.UUID, daysAgo int) *Appointment {
	return &Appointment{
		ID:              uuid.New(),
		PatientID:       id,
		AppointmentType: TypeUrologist,
		AppointmentDate: testNow.AddDate(0, 0, -daysAgo).Truncate(24 * time.Hour),
		AppointmentTime: "10:00",
		Status:          StatusNoShow,
	}
}

// ── Tests ──

func TestPlanAppointments(t *testing.T) {
	pid, uid := uuid.New(), uuid.New()
	from := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	appts := PlanAppointments(pid, uid, from)
	require.Len(t, appts, 4)

	wantDates := []time.Time{
		time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
	}
	wantTimes := []string{"09:00", "11:00", "14:00", "16:00"}
	for i, a := range appts {
		assert.Equal(t, wantDates[i], a.AppointmentDate)
		assert.Equal(t, wantTimes[i], a.AppointmentTime)
		assert.Equal(t, TypeAutomatic, a.AppointmentType)
		assert.Equal(t, StatusScheduled, a.Status)
		assert.Nil(t, a.CreatedBy)
		require.NotNil(t, a.UrologistID)
		assert.Equal(t, uid, *a.UrologistID)
		assert.Equal(t, pid, a.PatientID)
	}
}

func TestPlanAppointments_MonthEndRollsOver(t *testing.T) {
	appts := PlanAppointments(uuid.New(), uuid.New(), time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC))
	// Nov 30 + 3 months lands on Feb 30, which normalises to Mar 2.
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), appts[0].AppointmentDate)
}

func TestAppointment_At(t *testing.T) {
	a := &Appointment{AppointmentDate: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), AppointmentTime: "14:30"}
	assert.Equal(t, time.Date(2025, 1, 2, 14, 30, 0, 0, time.UTC), a.At())
}

func TestScheduler_BooksEligiblePatients(t *testing.T) {
	f := newFixture()
	am := f.addPatient(patient.PathwayActiveMonitoring)
	med := f.addPatient(patient.PathwayMedication)
	dis := f.addPatient(patient.PathwayDischarge)
	surgery := f.addPatient(patient.PathwaySurgery)

	recent := f.addPatient(patient.PathwayActiveMonitoring)
	since := testNow.AddDate(0, -6, 0)
	recent.CarePathwayUpdatedAt = &since

	inactive := f.addPatient(patient.PathwayMedication)
	inactive.Status = patient.StatusInactive

	run, err := f.sched.RunDailyScheduling(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, run.Status)
	assert.Equal(t, 3, run.Scanned)
	assert.Equal(t, 3, run.Booked)
	assert.Equal(t, 12, run.Appointments)
	assert.Zero(t, run.Skipped)
	assert.Zero(t, run.Excluded)

	for _, p := range []*patient.Patient{am, med, dis} {
		assert.Len(t, f.appointmentsOf(p.ID, TypeAutomatic), 4)
	}
	for _, p := range []*patient.Patient{surgery, recent, inactive} {
		assert.Empty(t, f.appointmentsOf(p.ID, TypeAutomatic))
	}
	assert.Equal(t, 3, f.events.Count(events.AppointmentAutoBooked))
	assert.Equal(t, 1, f.events.Count(events.SchedulerRunCompleted))
	assert.Equal(t, StateIdle, f.sched.Status().State)
	assert.Equal(t, run, f.sched.Status().LastRun)
}

func TestScheduler_SecondRunSameDayIsRejected(t *testing.T) {
	f := newFixture()
	f.addPatient(patient.PathwayActiveMonitoring)

	_, err := f.sched.RunDailyScheduling(context.Background())
	require.NoError(t, err)

	_, err = f.sched.Run(context.Background(), TriggerStartup, false)
	assert.ErrorIs(t, err, ErrAlreadyRan)
	assert.Len(t, f.store.runs, 1)
}

func TestScheduler_ForcedRunDoesNotDoubleBook(t *testing.T) {
	f := newFixture()
	p := f.addPatient(patient.PathwayDischarge)

	_, err := f.sched.RunDailyScheduling(context.Background())
	require.NoError(t, err)

	run, err := f.sched.Run(context.Background(), TriggerManual, true)
	require.NoError(t, err)
	assert.Zero(t, run.Scanned)
	assert.Zero(t, run.Booked)
	assert.Len(t, f.appointmentsOf(p.ID, TypeAutomatic), 4)
	assert.Len(t, f.store.runs, 2)
}

func TestScheduler_PastAutomaticAppointmentsDoNotBlock(t *testing.T) {
	f := newFixture()
	p := f.addPatient(patient.PathwayMedication)
	old := noShow(p.ID, 30)
	old.AppointmentType = TypeAutomatic
	old.Status = StatusScheduled
	f.store.appts = append(f.store.appts, old)

	run, err := f.sched.RunDailyScheduling(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Booked)
}

func TestScheduler_LockHeldElsewhere(t *testing.T) {
	f := newFixture()
	f.addPatient(patient.PathwayActiveMonitoring)

	token, err := f.locker.TryLock(context.Background(), LockKey, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = f.sched.RunDailyScheduling(context.Background())
	assert.ErrorIs(t, err, ErrLocked)
	assert.Empty(t, f.store.runs)
	assert.Zero(t, f.store.bookCalls)
}

func TestScheduler_ReleasesLockAfterRun(t *testing.T) {
	f := newFixture()
	_, err := f.sched.RunDailyScheduling(context.Background())
	require.NoError(t, err)

	token, err := f.locker.TryLock(context.Background(), LockKey, time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestScheduler_SkipsUnresolvableUrologists(t *testing.T) {
	f := newFixture()
	none := f.addPatient(patient.PathwayActiveMonitoring)
	none.AssignedUrologistID = nil

	missing := f.addPatient(patient.PathwayActiveMonitoring)
	ghost := uuid.New()
	missing.AssignedUrologistID = &ghost

	retired := &staff.Clinician{ID: uuid.New(), Active: false}
	f.clinicians[retired.ID] = retired
	inactive := f.addPatient(patient.PathwayMedication)
	inactive.AssignedUrologistID = &retired.ID

	ok := f.addPatient(patient.PathwayDischarge)

	run, err := f.sched.RunDailyScheduling(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, run.Scanned)
	assert.Equal(t, 1, run.Booked)
	assert.Equal(t, 3, run.Skipped)
	assert.Len(t, f.appointmentsOf(ok.ID, TypeAutomatic), 4)
	assert.Empty(t, f.appointmentsOf(inactive.ID, TypeAutomatic))
}

func TestScheduler_PerPatientFailureIsSkipped(t *testing.T) {
	f := newFixture()
	bad := f.addPatient(patient.PathwayActiveMonitoring)
	good := f.addPatient(patient.PathwayActiveMonitoring)
	f.store.failFor[bad.ID] = errors.New("connection reset")

	run, err := f.sched.RunDailyScheduling(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Booked)
	assert.Equal(t, 1, run.Skipped)
	assert.Len(t, f.appointmentsOf(good.ID, TypeAutomatic), 4)
}

func TestScheduler_PanickingPatientIsSkipped(t *testing.T) {
	f := newFixture()
	bad := f.addPatient(patient.PathwayActiveMonitoring)
	good := f.addPatient(patient.PathwayActiveMonitoring)
	f.store.panicFor[bad.ID] = true

	run, err := f.sched.RunDailyScheduling(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, run.Status)
	assert.Equal(t, 1, run.Booked)
	assert.Equal(t, 1, run.Skipped)
	assert.Len(t, f.appointmentsOf(good.ID, TypeAutomatic), 4)
}

func TestScheduler_ScanFailureMarksRunFailed(t *testing.T) {
	f := newFixture()
	f.store.scanErr = errors.New("db down")

	run, err := f.sched.RunDailyScheduling(context.Background())
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, RunFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Contains(t, *run.Error, "db down")
	assert.Equal(t, RunFailed, f.store.runs[0].Status)
}

func TestScheduler_ExcludesRepeatedNoShows(t *testing.T) {
	f := newFixture()
	p := f.addPatient(patient.PathwayActiveMonitoring)
	f.store.appts = append(f.store.appts, noShow(p.ID, 90), noShow(p.ID, 60), noShow(p.ID, 30))

	run, err := f.sched.RunDailyScheduling(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Excluded)
	assert.Zero(t, run.Booked)
	assert.Empty(t, f.appointmentsOf(p.ID, TypeAutomatic))
}

func TestNoShowGate(t *testing.T) {
	ctx := context.Background()

	t.Run("fewer than three no-shows", func(t *testing.T) {
		f := newFixture()
		p := f.addPatient(patient.PathwayActiveMonitoring)
		f.store.appts = append(f.store.appts, noShow(p.ID, 60), noShow(p.ID, 30))

		gate, err := NoShowGate(ctx, f.store, p)
		require.NoError(t, err)
		assert.Equal(t, GateClear, gate)
	})

	t.Run("attended appointment breaks the streak", func(t *testing.T) {
		f := newFixture()
		p := f.addPatient(patient.PathwayActiveMonitoring)
		attended := noShow(p.ID, 45)
		attended.Status = StatusCompleted
		f.store.appts = append(f.store.appts, noShow(p.ID, 90), noShow(p.ID, 60), attended, noShow(p.ID, 30))

		gate, err := NoShowGate(ctx, f.store, p)
		require.NoError(t, err)
		assert.Equal(t, GateBroken, gate)
	})

	t.Run("cancelled appointment does not break the streak", func(t *testing.T) {
		f := newFixture()
		p := f.addPatient(patient.PathwayActiveMonitoring)
		cancelled := noShow(p.ID, 45)
		cancelled.Status = StatusCancelled
		f.store.appts = append(f.store.appts, noShow(p.ID, 90), noShow(p.ID, 60), cancelled, noShow(p.ID, 30))

		gate, err := NoShowGate(ctx, f.store, p)
		require.NoError(t, err)
		assert.Equal(t, GateExcluded, gate)
	})

	t.Run("record updated after the streak began", func(t *testing.T) {
		f := newFixture()
		p := f.addPatient(patient.PathwayActiveMonitoring)
		p.UpdatedAt = testNow.AddDate(0, 0, -10)
		f.store.appts = append(f.store.appts, noShow(p.ID, 90), noShow(p.ID, 60), noShow(p.ID, 30))

		gate, err := NoShowGate(ctx, f.store, p)
		require.NoError(t, err)
		assert.Equal(t, GateRemediated, gate)
	})

	t.Run("only the newest three count", func(t *testing.T) {
		f := newFixture()
		p := f.addPatient(patient.PathwayActiveMonitoring)
		// updated between the 4th and 3rd newest no-show
		p.UpdatedAt = testNow.AddDate(0, 0, -100)
		f.store.appts = append(f.store.appts,
			noShow(p.ID, 120), noShow(p.ID, 90), noShow(p.ID, 60), noShow(p.ID, 30))

		gate, err := NoShowGate(ctx, f.store, p)
		require.NoError(t, err)
		assert.Equal(t, GateExcluded, gate)
	})
}
