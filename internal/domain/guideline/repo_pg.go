package guideline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/urocare/pathway/internal/platform/db"
)

type ruleRepoPG struct{ pool *pgxpool.Pool }

func NewRuleRepoPG(pool *pgxpool.Pool) Repository { return &ruleRepoPG{pool: pool} }

func (r *ruleRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const ruleCols = `id, name, version, category, criteria, recommendation_text,
	evidence_level, active, created_at, updated_at`

func (r *ruleRepoPG) scanRule(row pgx.Row) (*Rule, error) {
	var rule Rule
	var criteria []byte
	if err := row.Scan(&rule.ID, &rule.Name, &rule.Version, &rule.Category, &criteria,
		&rule.RecommendationText, &rule.EvidenceLevel, &rule.Active, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return nil, err
	}
	if len(criteria) > 0 {
		if err := json.Unmarshal(criteria, &rule.Criteria); err != nil {
			return nil, fmt.Errorf("decode criteria for %s: %w", rule.ID, err)
		}
	}
	return &rule, nil
}

func (r *ruleRepoPG) Create(ctx context.Context, rule *Rule) error {
	criteria, err := json.Marshal(rule.Criteria)
	if err != nil {
		return err
	}
	rule.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO guideline_rule (id, name, version, category, criteria,
			recommendation_text, evidence_level, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		rule.ID, rule.Name, rule.Version, rule.Category, criteria,
		rule.RecommendationText, rule.EvidenceLevel, rule.Active).Scan(&rule.CreatedAt, &rule.UpdatedAt)
}

func (r *ruleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Rule, error) {
	rule, err := r.scanRule(r.conn(ctx).QueryRow(ctx, `SELECT `+ruleCols+` FROM guideline_rule WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

func (r *ruleRepoPG) Update(ctx context.Context, rule *Rule) error {
	criteria, err := json.Marshal(rule.Criteria)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE guideline_rule SET name=$2, version=$3, category=$4, criteria=$5,
			recommendation_text=$6, evidence_level=$7, active=$8, updated_at=NOW()
		WHERE id = $1`,
		rule.ID, rule.Name, rule.Version, rule.Category, criteria,
		rule.RecommendationText, rule.EvidenceLevel, rule.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ruleRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM guideline_rule WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ruleRepoPG) List(ctx context.Context, limit, offset int) ([]*Rule, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM guideline_rule`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+ruleCols+` FROM guideline_rule
		ORDER BY category, name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := r.collect(rows)
	return items, total, err
}

func (r *ruleRepoPG) ListActive(ctx context.Context) ([]*Rule, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+ruleCols+` FROM guideline_rule
		WHERE active ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *ruleRepoPG) collect(rows pgx.Rows) ([]*Rule, error) {
	var items []*Rule
	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rule)
	}
	return items, rows.Err()
}
