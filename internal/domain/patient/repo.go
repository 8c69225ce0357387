package patient

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("patient not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	// UpdatePathway sets care_pathway and refreshes care_pathway_updated_at.
	UpdatePathway(ctx context.Context, id uuid.UUID, pathway string, at time.Time) error
	// ListLegacyUrologists returns patients with a free-text urologist name
	// and no clinician reference.
	ListLegacyUrologists(ctx context.Context) ([]*Patient, error)
	SetAssignedUrologist(ctx context.Context, id, clinicianID uuid.UUID) error
}

// HistoryRepository reads the clinical history consulted by pathway checks.
type HistoryRepository interface {
	ListInvestigations(ctx context.Context, patientID uuid.UUID) (Investigations, error)
	CountCompletedMDTMeetings(ctx context.Context, patientID uuid.UUID) (int, error)
	CountDischargeSummaries(ctx context.Context, patientID uuid.UUID) (int, error)
}
