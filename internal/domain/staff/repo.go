package staff

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

type UserRepository interface {
	// FindByNameAndRole matches the exact display name.
	FindByNameAndRole(ctx context.Context, name, role string) (*User, error)
}

type ClinicianRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Clinician, error)
	FindActiveByEmail(ctx context.Context, email string) (*Clinician, error)
}
