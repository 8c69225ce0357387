package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/urocare/pathway/internal/domain/patient"
	"github.com/urocare/pathway/internal/platform/db"
)

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const apptCols = `id, patient_id, appointment_type, appointment_date, to_char(appointment_time, 'HH24:MI'),
	urologist_id, status, notes, created_by, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.AppointmentType, &a.AppointmentDate, &a.AppointmentTime,
		&a.UrologistID, &a.Status, &a.Notes, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *appointmentRepoPG) ListEligible(ctx context.Context, cutoff, today time.Time) ([]*patient.Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patient.Columns+` FROM patient p
		WHERE p.care_pathway = ANY($1)
		  AND p.status = ANY($2)
		  AND p.care_pathway_updated_at IS NOT NULL
		  AND p.care_pathway_updated_at <= $3
		  AND NOT EXISTS (
			SELECT 1 FROM appointment a
			WHERE a.patient_id = p.id AND a.appointment_type = $4
			  AND a.status IN ('scheduled', 'confirmed') AND a.appointment_date >= $5)
		ORDER BY p.care_pathway_updated_at, p.id`,
		EligiblePathways, eligibleStatuses, cutoff, TypeAutomatic, today)
	if err != nil {
		return nil, fmt.Errorf("list eligible patients: %w", err)
	}
	defer rows.Close()
	var items []*patient.Patient
	for rows.Next() {
		p, err := patient.Scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) BookAutomatic(ctx context.Context, patientID uuid.UUID, today time.Time, appts []*Appointment) (bool, error) {
	booked := false
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		// serialises concurrent bookings for the same patient until commit
		if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "auto-booking:"+patientID.String()); err != nil {
			return fmt.Errorf("lock patient bookings: %w", err)
		}
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (
			SELECT 1 FROM appointment WHERE patient_id = $1 AND appointment_type = $2
			  AND status IN ('scheduled', 'confirmed') AND appointment_date >= $3)`,
			patientID, TypeAutomatic, today).Scan(&exists); err != nil {
			return fmt.Errorf("check existing bookings: %w", err)
		}
		if exists {
			return nil
		}
		for _, a := range appts {
			if a.ID == uuid.Nil {
				a.ID = uuid.New()
			}
			err := q.QueryRow(ctx, `
				INSERT INTO appointment (id, patient_id, appointment_type, appointment_date, appointment_time,
					urologist_id, status, notes, created_by)
				VALUES ($1, $2, $3, $4, $5::text::time, $6, $7, $8, $9)
				RETURNING created_at, updated_at`,
				a.ID, a.PatientID, a.AppointmentType, a.AppointmentDate, a.AppointmentTime,
				a.UrologistID, a.Status, a.Notes, a.CreatedBy,
			).Scan(&a.CreatedAt, &a.UpdatedAt)
			if err != nil {
				return fmt.Errorf("insert appointment: %w", err)
			}
		}
		booked = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return booked, nil
}

func (r *appointmentRepoPG) RecentNoShows(ctx context.Context, patientID uuid.UUID, limit int) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointment
		WHERE patient_id = $1 AND status = $2
		ORDER BY appointment_date DESC, appointment_time DESC LIMIT $3`, patientID, StatusNoShow, limit)
	if err != nil {
		return nil, fmt.Errorf("list no-shows: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *appointmentRepoPG) HasAppointmentBetween(ctx context.Context, patientID uuid.UUID, from, to time.Time, statuses []string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM appointment WHERE patient_id = $1 AND status = ANY($2)
		  AND (appointment_date + appointment_time) BETWEEN $3 AND $4)`,
		patientID, statuses, from, to).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check appointments in range: %w", err)
	}
	return exists, nil
}

func (r *appointmentRepoPG) CountCompletedByType(ctx context.Context, patientID uuid.UUID, appointmentType string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment
		WHERE patient_id = $1 AND appointment_type = $2 AND status = $3`,
		patientID, appointmentType, StatusCompleted).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count appointments: %w", err)
	}
	return n, nil
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointment WHERE patient_id = $1
		ORDER BY appointment_date DESC, appointment_time DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectAppointments(rows)
	return items, total, err
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// =========== Scheduler Run Repository ===========

type runRepoPG struct{ pool *pgxpool.Pool }

func NewRunRepoPG(pool *pgxpool.Pool) RunRepository { return &runRepoPG{pool: pool} }

func (r *runRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const runCols = `id, run_date, trigger, forced, status, scanned, booked, appointments, skipped, excluded,
	error, started_at, finished_at`

func scanRun(row pgx.Row) (*SchedulerRun, error) {
	var s SchedulerRun
	err := row.Scan(&s.ID, &s.RunDate, &s.Trigger, &s.Forced, &s.Status, &s.Scanned, &s.Booked,
		&s.Appointments, &s.Skipped, &s.Excluded, &s.Error, &s.StartedAt, &s.FinishedAt)
	return &s, err
}

func (r *runRepoPG) Claim(ctx context.Context, run *SchedulerRun) (bool, error) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO scheduler_run (id, run_date, trigger, forced, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_date) WHERE NOT forced DO NOTHING
		RETURNING id`,
		run.ID, run.RunDate, run.Trigger, run.Forced, run.Status, run.StartedAt,
	).Scan(&run.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim scheduler run: %w", err)
	}
	return true, nil
}

func (r *runRepoPG) Finish(ctx context.Context, run *SchedulerRun) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE scheduler_run SET status = $2, scanned = $3, booked = $4, appointments = $5,
			skipped = $6, excluded = $7, error = $8, finished_at = $9
		WHERE id = $1`,
		run.ID, run.Status, run.Scanned, run.Booked, run.Appointments,
		run.Skipped, run.Excluded, run.Error, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("finish scheduler run: %w", err)
	}
	return nil
}

func (r *runRepoPG) List(ctx context.Context, limit, offset int) ([]*SchedulerRun, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM scheduler_run`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+runCols+` FROM scheduler_run
		ORDER BY started_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*SchedulerRun
	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}
