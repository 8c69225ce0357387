package pathway

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/urocare/pathway/internal/domain/patient"
)

// AppointmentType for completed surgery lookups.
const AppointmentTypeSurgery = "surgery"

// AppointmentHistory reports completed appointments of a type.
type AppointmentHistory interface {
	CountCompletedByType(ctx context.Context, patientID uuid.UUID, appointmentType string) (int, error)
}

type need uint8

const (
	needMDT need = 1 << iota
	needDischarge
	needSurgery
)

// factLoader reads the history a check needs and nothing more.
type factLoader struct {
	patients     patient.Repository
	history      patient.HistoryRepository
	appointments AppointmentHistory
}

func (l *factLoader) load(ctx context.Context, patientID uuid.UUID, n need) (*Facts, error) {
	p, err := l.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("patient lookup: %w", err)
	}
	f := &Facts{Patient: p}
	if f.Investigations, err = l.history.ListInvestigations(ctx, patientID); err != nil {
		return nil, fmt.Errorf("investigation lookup: %w", err)
	}
	if n&needMDT != 0 {
		if f.CompletedMDTMeetings, err = l.history.CountCompletedMDTMeetings(ctx, patientID); err != nil {
			return nil, fmt.Errorf("mdt lookup: %w", err)
		}
	}
	if n&needDischarge != 0 {
		if f.DischargeSummaries, err = l.history.CountDischargeSummaries(ctx, patientID); err != nil {
			return nil, fmt.Errorf("discharge summary lookup: %w", err)
		}
	}
	if n&needSurgery != 0 {
		if f.CompletedSurgeries, err = l.appointments.CountCompletedByType(ctx, patientID, AppointmentTypeSurgery); err != nil {
			return nil, fmt.Errorf("appointment lookup: %w", err)
		}
	}
	return f, nil
}
