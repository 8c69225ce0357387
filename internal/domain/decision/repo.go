package decision

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("recommendation not found")
	ErrNotPending = errors.New("only pending recommendations can change status")
)

type Repository interface {
	Create(ctx context.Context, r *Recommendation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Recommendation, error)
	// UpdateStatus changes status only while the recommendation is pending and
	// returns ErrNotPending otherwise.
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	ListPending(ctx context.Context, patientID uuid.UUID) ([]*Recommendation, error)
}
