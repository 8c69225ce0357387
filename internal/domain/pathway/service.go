package pathway

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/urocare/pathway/internal/domain/patient"
	"github.com/urocare/pathway/internal/platform/auth"
	"github.com/urocare/pathway/internal/platform/events"
)

var ErrNoChange = errors.New("patient is already on the requested pathway")

// Service fronts the validator and checker for the API. With strict set,
// degraded results are turned into rejections.
type Service struct {
	patients    patient.Repository
	validator   *Validator
	checker     *Checker
	validations ValidationLogRepository
	compliance  ComplianceLogRepository
	publisher   events.Publisher
	strict      bool
	now         func() time.Time
	logger      zerolog.Logger
}

func NewService(
	patients patient.Repository,
	validator *Validator,
	checker *Checker,
	validations ValidationLogRepository,
	compliance ComplianceLogRepository,
	publisher events.Publisher,
	strict bool,
	logger zerolog.Logger,
) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		patients:    patients,
		validator:   validator,
		checker:     checker,
		validations: validations,
		compliance:  compliance,
		publisher:   publisher,
		strict:      strict,
		now:         time.Now,
		logger:      logger,
	}
}

// CurrentPathway returns the patient's stored pathway.
func (s *Service) CurrentPathway(ctx context.Context, patientID uuid.UUID) (string, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return "", err
	}
	return p.CarePathway, nil
}

func (s *Service) Validate(ctx context.Context, patientID uuid.UUID, from, to string) *ValidationResult {
	res := s.validator.ValidateTransition(ctx, patientID, from, to)
	if s.strict {
		res.Block()
	}
	return res
}

func (s *Service) CheckPathway(ctx context.Context, patientID uuid.UUID, from, to string) *ComplianceResult {
	res := s.checker.CheckPathwayCompliance(ctx, patientID, from, to)
	if s.strict {
		res.Block()
	}
	return res
}

func (s *Service) CheckInvestigation(ctx context.Context, patientID uuid.UUID, investigationType, investigationName string) *ComplianceResult {
	res := s.checker.CheckInvestigationCompliance(ctx, patientID, investigationType, investigationName)
	if s.strict {
		res.Block()
	}
	return res
}

// ApplyTransition validates and, when allowed, moves the patient to a new
// pathway. Validation errors block the change unless force is set. The
// compliance checker runs after the change for the audit trail.
func (s *Service) ApplyTransition(ctx context.Context, patientID uuid.UUID, to string, force bool) (*Transition, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	from := p.CarePathway
	if from == to {
		return nil, ErrNoChange
	}

	t := &Transition{PatientID: patientID, FromPathway: from, ToPathway: to}
	t.Validation = s.Validate(ctx, patientID, from, to)
	if !t.Validation.IsValid && !force {
		return t, nil
	}

	at := s.now().UTC()
	if err := s.patients.UpdatePathway(ctx, patientID, to, at); err != nil {
		return nil, err
	}
	t.Applied = true
	t.Forced = !t.Validation.IsValid
	t.AppliedAt = &at

	s.logger.Info().Str("patient_id", patientID.String()).Str("from", from).Str("to", to).
		Bool("forced", t.Forced).Str("acting_user", auth.UserIDFromContext(ctx)).Msg("pathway changed")
	if err := s.publisher.Publish(ctx, events.PathwayChanged, t); err != nil {
		s.logger.Error().Err(err).Str("patient_id", patientID.String()).Msg("publish pathway change")
	}

	t.Compliance = s.checker.CheckPathwayCompliance(ctx, patientID, from, to)
	return t, nil
}

func (s *Service) ValidationLogs(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ValidationLog, int, error) {
	return s.validations.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ComplianceLogs(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ComplianceLog, int, error) {
	return s.compliance.ListByPatient(ctx, patientID, limit, offset)
}
