package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/urocare/pathway/internal/platform/db"
)

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) Repository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

// Columns is the patient column list in Scan order.
const Columns = `id, date_of_birth, gender, initial_psa, initial_psa_date, care_pathway,
	care_pathway_updated_at, assigned_urologist_id, assigned_urologist, status, created_at, updated_at`

// Scan reads one row selected with Columns.
func Scan(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.DateOfBirth, &p.Gender, &p.InitialPSA, &p.InitialPSADate, &p.CarePathway,
		&p.CarePathwayUpdatedAt, &p.AssignedUrologistID, &p.AssignedUrologist, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := Scan(r.conn(ctx).QueryRow(ctx, `SELECT `+Columns+` FROM patient WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (r *patientRepoPG) UpdatePathway(ctx context.Context, id uuid.UUID, pathway string, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET care_pathway = $2, care_pathway_updated_at = $3, updated_at = NOW()
		WHERE id = $1`, id, pathway, at)
	if err != nil {
		return fmt.Errorf("update pathway: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) ListLegacyUrologists(ctx context.Context) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+Columns+` FROM patient
		WHERE assigned_urologist_id IS NULL AND COALESCE(assigned_urologist, '') <> ''
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := Scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *patientRepoPG) SetAssignedUrologist(ctx context.Context, id, clinicianID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE patient SET assigned_urologist_id = $2 WHERE id = $1`, id, clinicianID)
	return err
}

// =========== History Repository ===========

type historyRepoPG struct{ pool *pgxpool.Pool }

func NewHistoryRepoPG(pool *pgxpool.Pool) HistoryRepository { return &historyRepoPG{pool: pool} }

func (r *historyRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

func (r *historyRepoPG) ListInvestigations(ctx context.Context, patientID uuid.UUID) (Investigations, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, test_type, test_name, test_date, status, result_flag, created_at
		FROM investigation_result WHERE patient_id = $1
		ORDER BY test_date DESC, created_at DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list investigations: %w", err)
	}
	defer rows.Close()
	var items Investigations
	for rows.Next() {
		var i Investigation
		if err := rows.Scan(&i.ID, &i.PatientID, &i.TestType, &i.TestName, &i.TestDate,
			&i.Status, &i.ResultFlag, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &i)
	}
	return items, rows.Err()
}

func (r *historyRepoPG) CountCompletedMDTMeetings(ctx context.Context, patientID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM mdt_meeting WHERE patient_id = $1 AND status = $2`,
		patientID, MDTCompleted).Scan(&n)
	return n, err
}

func (r *historyRepoPG) CountDischargeSummaries(ctx context.Context, patientID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM discharge_summary WHERE patient_id = $1 AND NOT is_deleted`,
		patientID).Scan(&n)
	return n, err
}
