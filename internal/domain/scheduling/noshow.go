package scheduling

import (
	"context"

	"github.com/urocare/pathway/internal/domain/patient"
)

// NoShowLimit is the number of consecutive missed appointments that
// excludes a patient from automatic booking.
const NoShowLimit = 3

// Gate decisions.
const (
	GateClear      = "clear"
	GateBroken     = "streak_broken"
	GateRemediated = "remediated"
	GateExcluded   = "excluded"
)

var attendedStatuses = []string{StatusScheduled, StatusConfirmed, StatusCompleted}

// NoShowGate decides whether a patient's recent no-shows exclude them. The
// NoShowLimit newest no-shows count as a streak unless another live or
// attended appointment falls between the oldest and newest of them. A streak
// is forgiven when the patient record was updated after it began.
func NoShowGate(ctx context.Context, repo AppointmentRepository, p *patient.Patient) (string, error) {
	noShows, err := repo.RecentNoShows(ctx, p.ID, NoShowLimit)
	if err != nil {
		return "", err
	}
	if len(noShows) < NoShowLimit {
		return GateClear, nil
	}
	newest, oldest := noShows[0].At(), noShows[len(noShows)-1].At()
	broken, err := repo.HasAppointmentBetween(ctx, p.ID, oldest, newest, attendedStatuses)
	if err != nil {
		return "", err
	}
	if broken {
		return GateBroken, nil
	}
	if p.UpdatedAt.After(oldest) {
		return GateRemediated, nil
	}
	return GateExcluded, nil
}
