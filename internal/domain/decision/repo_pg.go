package decision

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/urocare/pathway/internal/platform/db"
)

type recommendationRepoPG struct{ pool *pgxpool.Pool }

func NewRecommendationRepoPG(pool *pgxpool.Pool) Repository {
	return &recommendationRepoPG{pool: pool}
}

func (r *recommendationRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const recCols = `id, patient_id, type, priority, text, guideline_reference, evidence_level,
	action, status, created_by, created_at, updated_at`

func scanRecommendation(row pgx.Row) (*Recommendation, error) {
	var rec Recommendation
	err := row.Scan(&rec.ID, &rec.PatientID, &rec.Type, &rec.Priority, &rec.Text, &rec.GuidelineReference,
		&rec.EvidenceLevel, &rec.Action, &rec.Status, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt)
	rec.Source = SourceStored
	return &rec, err
}

func (r *recommendationRepoPG) Create(ctx context.Context, rec *Recommendation) error {
	rec.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO recommendation (id, patient_id, type, priority, text, guideline_reference,
			evidence_level, action, status, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		rec.ID, rec.PatientID, rec.Type, rec.Priority, rec.Text, rec.GuidelineReference,
		rec.EvidenceLevel, rec.Action, rec.Status, rec.CreatedBy).Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

func (r *recommendationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Recommendation, error) {
	rec, err := scanRecommendation(r.conn(ctx).QueryRow(ctx, `SELECT `+recCols+` FROM recommendation WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *recommendationRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE recommendation SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`, id, status, StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrNotPending
	}
	return nil
}

func (r *recommendationRepoPG) ListPending(ctx context.Context, patientID uuid.UUID) ([]*Recommendation, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+recCols+` FROM recommendation
		WHERE patient_id = $1 AND status = $2 ORDER BY created_at DESC`, patientID, StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}
