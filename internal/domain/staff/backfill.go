package staff

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/urocare/pathway/internal/domain/patient"
	"github.com/urocare/pathway/internal/platform/auth"
)

// Backfill links patients whose urologist is only recorded as a display name
// to the matching clinician. It is run once by an operator; nothing else in
// the service resolves clinicians by name.
type Backfill struct {
	patients   patient.Repository
	users      UserRepository
	clinicians ClinicianRepository
	logger     zerolog.Logger
}

func NewBackfill(patients patient.Repository, users UserRepository, clinicians ClinicianRepository, logger zerolog.Logger) *Backfill {
	return &Backfill{patients: patients, users: users, clinicians: clinicians, logger: logger}
}

// Resolve maps a legacy urologist name to an active clinician.
func (b *Backfill) Resolve(ctx context.Context, name string) (*Clinician, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNotFound
	}
	u, err := b.users.FindByNameAndRole(ctx, name, auth.RoleUrologist)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", name, err)
	}
	c, err := b.clinicians.FindActiveByEmail(ctx, u.Email)
	if err != nil {
		return nil, fmt.Errorf("clinician %q: %w", u.Email, err)
	}
	return c, nil
}

// Run resolves every unlinked patient. With dryRun set nothing is written.
func (b *Backfill) Run(ctx context.Context, dryRun bool) (*BackfillReport, error) {
	pts, err := b.patients.ListLegacyUrologists(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	report := &BackfillReport{Scanned: len(pts)}
	for _, p := range pts {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		name := ""
		if p.AssignedUrologist != nil {
			name = *p.AssignedUrologist
		}
		c, err := b.Resolve(ctx, name)
		if err != nil {
			report.Unresolved++
			ev := b.logger.Warn()
			if !errors.Is(err, ErrNotFound) {
				ev = b.logger.Error()
			}
			ev.Err(err).Str("patient_id", p.ID.String()).Msg("urologist not resolved")
			continue
		}
		if !dryRun {
			if err := b.patients.SetAssignedUrologist(ctx, p.ID, c.ID); err != nil {
				report.Unresolved++
				b.logger.Error().Err(err).Str("patient_id", p.ID.String()).Msg("link urologist")
				continue
			}
		}
		report.Linked++
	}
	b.logger.Info().Int("scanned", report.Scanned).Int("linked", report.Linked).
		Int("unresolved", report.Unresolved).Bool("dry_run", dryRun).Msg("urologist backfill finished")
	return report, nil
}
