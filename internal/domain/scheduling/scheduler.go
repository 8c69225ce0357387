package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/urocare/pathway/internal/domain/patient"
	"github.com/urocare/pathway/internal/domain/staff"
	"github.com/urocare/pathway/internal/platform/events"
	"github.com/urocare/pathway/internal/platform/lock"
)

// DwellDays is how long a patient stays on a follow-up pathway before the
// scheduler books their next year of appointments.
const DwellDays = 365

// LockKey names the cross-instance lease held for the duration of a run.
const LockKey = "scheduler:daily"

// EligiblePathways are the pathways whose patients are booked automatically.
var EligiblePathways = []string{patient.PathwayActiveMonitoring, patient.PathwayMedication, patient.PathwayDischarge}

var eligibleStatuses = []string{patient.StatusActive, patient.StatusDischarged}

var (
	followUpMonths = []int{3, 6, 9, 12}
	followUpTimes  = []string{"09:00", "11:00", "14:00", "16:00"}
)

// State is the scheduler's position in a run.
type State string

const (
	StateIdle       State = "idle"
	StateScanning   State = "scanning"
	StateProcessing State = "per_patient_processing"
)

// ClinicianSource resolves an assigned urologist id.
type ClinicianSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*staff.Clinician, error)
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	State   State         `json:"state"`
	LastRun *SchedulerRun `json:"last_run,omitempty"`
}

// AutoBooked is published once per patient booked by a run.
type AutoBooked struct {
	RunID          uuid.UUID   `json:"run_id"`
	PatientID      uuid.UUID   `json:"patient_id"`
	UrologistID    uuid.UUID   `json:"urologist_id"`
	AppointmentIDs []uuid.UUID `json:"appointment_ids"`
}

type Scheduler struct {
	locker     lock.Locker
	runs       RunRepository
	appts      AppointmentRepository
	clinicians ClinicianSource
	publisher  events.Publisher
	logger     zerolog.Logger
	lockTTL    time.Duration
	now        func() time.Time

	mu      sync.Mutex
	state   State
	lastRun *SchedulerRun
}

func NewScheduler(locker lock.Locker, runs RunRepository, appts AppointmentRepository, clinicians ClinicianSource,
	publisher events.Publisher, lockTTL time.Duration, logger zerolog.Logger) *Scheduler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	return &Scheduler{
		locker:     locker,
		runs:       runs,
		appts:      appts,
		clinicians: clinicians,
		publisher:  publisher,
		logger:     logger.With().Str("component", "scheduler").Logger(),
		lockTTL:    lockTTL,
		now:        time.Now,
		state:      StateIdle,
	}
}

// RunDailyScheduling performs the once-a-day run. A second call on the same
// date returns ErrAlreadyRan.
func (s *Scheduler) RunDailyScheduling(ctx context.Context) (*SchedulerRun, error) {
	return s.Run(ctx, TriggerCron, false)
}

// Status reports the current state and the last run this process finished.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{State: s.state, LastRun: s.lastRun}
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run scans for eligible patients and books their follow-ups. Forced runs
// ignore the per-day marker but still take the lease.
func (s *Scheduler) Run(ctx context.Context, trigger string, force bool) (*SchedulerRun, error) {
	token, err := s.locker.TryLock(ctx, LockKey, s.lockTTL)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrLocked
	}
	stop := s.keepLease(ctx, token)
	defer func() {
		stop()
		if err := s.locker.Unlock(context.WithoutCancel(ctx), LockKey, token); err != nil {
			s.logger.Warn().Err(err).Msg("release scheduler lock")
		}
	}()

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	run := &SchedulerRun{
		RunDate:   today,
		Trigger:   trigger,
		Forced:    force,
		Status:    RunRunning,
		StartedAt: now,
	}
	claimed, err := s.runs.Claim(ctx, run)
	if err != nil {
		return nil, err
	}
	if !claimed {
		s.logger.Info().Str("trigger", trigger).Time("run_date", today).Msg("scheduler already ran today")
		return nil, ErrAlreadyRan
	}

	log := s.logger.With().Str("run_id", run.ID.String()).Str("trigger", trigger).Logger()
	log.Info().Bool("forced", force).Msg("scheduler run started")
	defer s.setState(StateIdle)

	runErr := s.process(ctx, run, now, today, log)

	finished := s.now()
	run.FinishedAt = &finished
	run.Status = RunCompleted
	if runErr != nil {
		msg := runErr.Error()
		run.Status, run.Error = RunFailed, &msg
	}
	if err := s.runs.Finish(context.WithoutCancel(ctx), run); err != nil {
		log.Error().Err(err).Msg("record scheduler run")
	}
	s.mu.Lock()
	s.lastRun = run
	s.mu.Unlock()

	if err := s.publisher.Publish(context.WithoutCancel(ctx), events.SchedulerRunCompleted, run); err != nil {
		log.Warn().Err(err).Msg("publish run completion")
	}
	log.Info().
		Str("status", run.Status).
		Int("scanned", run.Scanned).
		Int("booked", run.Booked).
		Int("appointments", run.Appointments).
		Int("skipped", run.Skipped).
		Int("excluded", run.Excluded).
		Dur("elapsed", finished.Sub(now)).
		Msg("scheduler run finished")
	return run, runErr
}

func (s *Scheduler) process(ctx context.Context, run *SchedulerRun, now, today time.Time, log zerolog.Logger) error {
	s.setState(StateScanning)
	cutoff := now.Add(-DwellDays * 24 * time.Hour)
	pts, err := s.appts.ListEligible(ctx, cutoff, today)
	if err != nil {
		return fmt.Errorf("scan eligible patients: %w", err)
	}
	run.Scanned = len(pts)

	s.setState(StateProcessing)
	for _, p := range pts {
		if err := ctx.Err(); err != nil {
			return err
		}
		plog := log.With().Str("patient_id", p.ID.String()).Logger()
		n, err := s.safeProcessPatient(ctx, run.ID, p, today, plog)
		switch {
		case errors.Is(err, errExcluded):
			run.Excluded++
		case err != nil:
			plog.Warn().Err(err).Msg("patient skipped")
			run.Skipped++
		default:
			run.Booked++
			run.Appointments += n
		}
	}
	return nil
}

var (
	errExcluded      = errors.New("excluded by no-show history")
	errNoClinician   = errors.New("no assigned urologist")
	errInactive      = errors.New("assigned urologist is inactive")
	errAlreadyBooked = errors.New("automatic follow-up already booked")
)

// safeProcessPatient confines a panic to the patient that raised it.
func (s *Scheduler) safeProcessPatient(ctx context.Context, runID uuid.UUID, p *patient.Patient, today time.Time, log zerolog.Logger) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("panic: %v", r)
		}
	}()
	return s.processPatient(ctx, runID, p, today, log)
}

func (s *Scheduler) processPatient(ctx context.Context, runID uuid.UUID, p *patient.Patient, today time.Time, log zerolog.Logger) (int, error) {
	gate, err := NoShowGate(ctx, s.appts, p)
	if err != nil {
		return 0, fmt.Errorf("no-show history: %w", err)
	}
	if gate == GateExcluded {
		log.Info().Msg("patient excluded after repeated no-shows")
		return 0, errExcluded
	}

	if p.AssignedUrologistID == nil {
		return 0, errNoClinician
	}
	c, err := s.clinicians.GetByID(ctx, *p.AssignedUrologistID)
	if errors.Is(err, staff.ErrNotFound) {
		return 0, errNoClinician
	}
	if err != nil {
		return 0, fmt.Errorf("resolve urologist: %w", err)
	}
	if !c.Active {
		return 0, errInactive
	}

	appts := PlanAppointments(p.ID, c.ID, today)
	booked, err := s.appts.BookAutomatic(ctx, p.ID, today, appts)
	if err != nil {
		return 0, err
	}
	if !booked {
		return 0, errAlreadyBooked
	}

	ids := make([]uuid.UUID, len(appts))
	for i, a := range appts {
		ids[i] = a.ID
	}
	evt := AutoBooked{RunID: runID, PatientID: p.ID, UrologistID: c.ID, AppointmentIDs: ids}
	if err := s.publisher.Publish(ctx, events.AppointmentAutoBooked, evt); err != nil {
		log.Warn().Err(err).Msg("publish auto booking")
	}
	log.Debug().Int("appointments", len(appts)).Msg("follow-ups booked")
	return len(appts), nil
}

// PlanAppointments builds the year of automatic follow-ups starting from
// the given date. Month arithmetic follows time.AddDate, so the 31st rolls
// into the next month when the target month is shorter.
func PlanAppointments(patientID, urologistID uuid.UUID, from time.Time) []*Appointment {
	uid := urologistID
	out := make([]*Appointment, len(followUpMonths))
	for i, months := range followUpMonths {
		out[i] = &Appointment{
			ID:              uuid.New(),
			PatientID:       patientID,
			AppointmentType: TypeAutomatic,
			AppointmentDate: from.AddDate(0, months, 0),
			AppointmentTime: followUpTimes[i],
			UrologistID:     &uid,
			Status:          StatusScheduled,
		}
	}
	return out
}

// keepLease refreshes the lease at half its TTL until the returned func is
// called.
func (s *Scheduler) keepLease(ctx context.Context, token string) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(s.lockTTL / 2)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if err := s.locker.Refresh(ctx, LockKey, token, s.lockTTL); err != nil {
					s.logger.Warn().Err(err).Msg("refresh scheduler lock")
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
