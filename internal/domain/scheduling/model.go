package scheduling

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Appointment types.
const (
	TypeUrologist     = "urologist"
	TypeInvestigation = "investigation"
	TypeAutomatic     = "automatic"
	TypeSurgery       = "surgery"
)

// Appointment statuses.
const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusNoShow    = "no_show"
	StatusCancelled = "cancelled"
)

// Appointment maps to the appointment table.
type Appointment struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	AppointmentType string     `db:"appointment_type" json:"appointment_type"`
	AppointmentDate time.Time  `db:"appointment_date" json:"appointment_date"`
	AppointmentTime string     `db:"appointment_time" json:"appointment_time"`
	UrologistID     *uuid.UUID `db:"urologist_id" json:"urologist_id,omitempty"`
	Status          string     `db:"status" json:"status"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	// CreatedBy is nil for appointments booked by the scheduler.
	CreatedBy *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// At combines the appointment date and HH:MM time in the date's location.
func (a *Appointment) At() time.Time {
	var h, m int
	if _, err := fmt.Sscanf(a.AppointmentTime, "%d:%d", &h, &m); err != nil {
		h, m = 0, 0
	}
	d := a.AppointmentDate
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, d.Location())
}

// Run triggers.
const (
	TriggerStartup = "startup"
	TriggerCron    = "cron"
	TriggerManual  = "manual"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// SchedulerRun maps to the scheduler_run table. At most one unforced run
// exists per run date; it is the marker that stops a second automatic run
// on the same day.
type SchedulerRun struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	RunDate      time.Time  `db:"run_date" json:"run_date"`
	Trigger      string     `db:"trigger" json:"trigger"`
	Forced       bool       `db:"forced" json:"forced"`
	Status       string     `db:"status" json:"status"`
	Scanned      int        `db:"scanned" json:"scanned"`
	Booked       int        `db:"booked" json:"booked"`
	Appointments int        `db:"appointments" json:"appointments"`
	Skipped      int        `db:"skipped" json:"skipped"`
	Excluded     int        `db:"excluded" json:"excluded"`
	Error        *string    `db:"error" json:"error,omitempty"`
	StartedAt    time.Time  `db:"started_at" json:"started_at"`
	FinishedAt   *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

var (
	ErrAlreadyRan = errors.New("scheduler already ran for this date")
	ErrLocked     = errors.New("scheduler is running on another instance")
)
