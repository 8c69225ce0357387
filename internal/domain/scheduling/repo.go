package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/urocare/pathway/internal/domain/patient"
)

type AppointmentRepository interface {
	// ListEligible returns patients due for automatic follow-up: on a
	// follow-up pathway since before cutoff, active or discharged, and with no
	// automatic appointment pending on or after today.
	ListEligible(ctx context.Context, cutoff, today time.Time) ([]*patient.Patient, error)
	// BookAutomatic inserts the appointments unless the patient already has a
	// pending automatic appointment from today on. It reports whether it booked.
	BookAutomatic(ctx context.Context, patientID uuid.UUID, today time.Time, appts []*Appointment) (bool, error)
	// RecentNoShows returns up to limit no-shows, newest first.
	RecentNoShows(ctx context.Context, patientID uuid.UUID, limit int) ([]*Appointment, error)
	// HasAppointmentBetween reports an appointment in one of statuses dated
	// within [from, to].
	HasAppointmentBetween(ctx context.Context, patientID uuid.UUID, from, to time.Time, statuses []string) (bool, error)
	CountCompletedByType(ctx context.Context, patientID uuid.UUID, appointmentType string) (int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
}

type RunRepository interface {
	// Claim records the start of a run. Unforced runs conflict with an
	// existing unforced run for the same date, in which case Claim reports false.
	Claim(ctx context.Context, run *SchedulerRun) (bool, error)
	Finish(ctx context.Context, run *SchedulerRun) error
	List(ctx context.Context, limit, offset int) ([]*SchedulerRun, int, error)
}
