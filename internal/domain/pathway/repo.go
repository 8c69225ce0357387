package pathway

import (
	"context"

	"github.com/google/uuid"
)

type ValidationLogRepository interface {
	Create(ctx context.Context, l *ValidationLog) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ValidationLog, int, error)
}

type ComplianceLogRepository interface {
	Create(ctx context.Context, l *ComplianceLog) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ComplianceLog, int, error)
}
