package staff

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/urocare/pathway/internal/platform/db"
)

// =========== User Repository ===========

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

func (r *userRepoPG) FindByNameAndRole(ctx context.Context, name, role string) (*User, error) {
	var u User
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, name, email, role, created_at FROM app_user
		WHERE name = $1 AND role = $2
		ORDER BY created_at LIMIT 1`, name, role).
		Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// =========== Clinician Repository ===========

type clinicianRepoPG struct{ pool *pgxpool.Pool }

func NewClinicianRepoPG(pool *pgxpool.Pool) ClinicianRepository {
	return &clinicianRepoPG{pool: pool}
}

const clinicianCols = `id, email, display_name, active, created_at`

func scanClinician(row pgx.Row) (*Clinician, error) {
	var c Clinician
	err := row.Scan(&c.ID, &c.Email, &c.DisplayName, &c.Active, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *clinicianRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Clinician, error) {
	return scanClinician(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+clinicianCols+` FROM clinician WHERE id = $1`, id))
}

func (r *clinicianRepoPG) FindActiveByEmail(ctx context.Context, email string) (*Clinician, error) {
	return scanClinician(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+clinicianCols+` FROM clinician WHERE lower(email) = lower($1) AND active`, email))
}
