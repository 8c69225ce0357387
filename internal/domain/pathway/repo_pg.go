package pathway

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/urocare/pathway/internal/platform/db"
)

func encodeList(items []string) ([]byte, error) {
	if items == nil {
		items = []string{}
	}
	return json.Marshal(items)
}

func decodeList(raw []byte) ([]string, error) {
	items := []string{}
	if len(raw) == 0 {
		return items, nil
	}
	err := json.Unmarshal(raw, &items)
	return items, err
}

// =========== Validation Log Repository ===========

type validationLogRepoPG struct{ pool *pgxpool.Pool }

func NewValidationLogRepoPG(pool *pgxpool.Pool) ValidationLogRepository {
	return &validationLogRepoPG{pool: pool}
}

func (r *validationLogRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

func (r *validationLogRepoPG) Create(ctx context.Context, l *ValidationLog) error {
	errs, err := encodeList(l.Errors)
	if err != nil {
		return err
	}
	warns, err := encodeList(l.Warnings)
	if err != nil {
		return err
	}
	actions, err := encodeList(l.RequiredActions)
	if err != nil {
		return err
	}
	l.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO pathway_validation_log (id, patient_id, from_pathway, to_pathway, is_valid,
			outcome, errors, warnings, required_actions, acting_user)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at`,
		l.ID, l.PatientID, l.FromPathway, l.ToPathway, l.IsValid,
		l.Outcome, errs, warns, actions, l.ActingUser).Scan(&l.CreatedAt)
}

func (r *validationLogRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ValidationLog, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM pathway_validation_log WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, from_pathway, to_pathway, is_valid, outcome,
			errors, warnings, required_actions, acting_user, created_at
		FROM pathway_validation_log WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ValidationLog
	for rows.Next() {
		l, err := scanValidationLog(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, l)
	}
	return items, total, rows.Err()
}

func scanValidationLog(row pgx.Row) (*ValidationLog, error) {
	var l ValidationLog
	var errs, warns, actions []byte
	if err := row.Scan(&l.ID, &l.PatientID, &l.FromPathway, &l.ToPathway, &l.IsValid, &l.Outcome,
		&errs, &warns, &actions, &l.ActingUser, &l.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if l.Errors, err = decodeList(errs); err != nil {
		return nil, err
	}
	if l.Warnings, err = decodeList(warns); err != nil {
		return nil, err
	}
	if l.RequiredActions, err = decodeList(actions); err != nil {
		return nil, err
	}
	return &l, nil
}

// =========== Compliance Log Repository ===========

type complianceLogRepoPG struct{ pool *pgxpool.Pool }

func NewComplianceLogRepoPG(pool *pgxpool.Pool) ComplianceLogRepository {
	return &complianceLogRepoPG{pool: pool}
}

func (r *complianceLogRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

func (r *complianceLogRepoPG) Create(ctx context.Context, l *ComplianceLog) error {
	warns, err := encodeList(l.Warnings)
	if err != nil {
		return err
	}
	recs, err := encodeList(l.Recommendations)
	if err != nil {
		return err
	}
	l.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO compliance_check_log (id, patient_id, check_type, from_pathway, to_pathway,
			investigation_type, investigation_name, is_compliant, outcome, warnings,
			recommendations, acting_user)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at`,
		l.ID, l.PatientID, l.CheckType, l.FromPathway, l.ToPathway,
		l.InvestigationType, l.InvestigationName, l.IsCompliant, l.Outcome, warns,
		recs, l.ActingUser).Scan(&l.CreatedAt)
}

func (r *complianceLogRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ComplianceLog, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM compliance_check_log WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, check_type, from_pathway, to_pathway, investigation_type,
			investigation_name, is_compliant, outcome, warnings, recommendations, acting_user, created_at
		FROM compliance_check_log WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ComplianceLog
	for rows.Next() {
		var l ComplianceLog
		var warns, recs []byte
		if err := rows.Scan(&l.ID, &l.PatientID, &l.CheckType, &l.FromPathway, &l.ToPathway, &l.InvestigationType,
			&l.InvestigationName, &l.IsCompliant, &l.Outcome, &warns, &recs, &l.ActingUser, &l.CreatedAt); err != nil {
			return nil, 0, err
		}
		if l.Warnings, err = decodeList(warns); err != nil {
			return nil, 0, err
		}
		if l.Recommendations, err = decodeList(recs); err != nil {
			return nil, 0, err
		}
		items = append(items, &l)
	}
	return items, total, rows.Err()
}
