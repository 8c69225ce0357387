package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/urocare/pathway/internal/domain/pathway"
	"github.com/urocare/pathway/internal/domain/patient"
	"github.com/urocare/pathway/internal/platform/auth"
)

type Service struct {
	recs       Repository
	patients   patient.Repository
	history    patient.HistoryRepository
	guidelines pathway.GuidelineSource
	now        func() time.Time
	logger     zerolog.Logger
}

func NewService(recs Repository, patients patient.Repository, history patient.HistoryRepository, guidelines pathway.GuidelineSource, logger zerolog.Logger) *Service {
	return &Service{
		recs:       recs,
		patients:   patients,
		history:    history,
		guidelines: guidelines,
		now:        time.Now,
		logger:     logger,
	}
}

// RecommendationsFor merges generated recommendations with the patient's
// pending stored ones and scores the patient's risk. Lookup failures other
// than an unknown patient degrade the result instead of failing it: each
// failed lookup drops only the recommendations that depend on it, and the
// risk score is always present.
func (s *Service) RecommendationsFor(ctx context.Context, patientID uuid.UUID) (*Result, error) {
	now := s.now()
	res := &Result{PatientID: patientID, Recommendations: []*Recommendation{}, Outcome: OutcomeOK}
	degrade := func(err error) {
		s.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("recommendations degraded")
		if res.Outcome == OutcomeDegraded {
			return
		}
		res.Outcome = OutcomeDegraded
		res.Cause = err.Error()
	}

	p, err := s.patients.GetByID(ctx, patientID)
	switch {
	case errors.Is(err, patient.ErrNotFound):
		return nil, err
	case err != nil:
		degrade(fmt.Errorf("patient lookup: %w", err))
		res.RiskScore = Score(RiskInput{})
	default:
		s.generate(ctx, p, now, res, degrade)
	}

	stored, err := s.recs.ListPending(ctx, patientID)
	if err != nil {
		degrade(fmt.Errorf("stored recommendations: %w", err))
	}
	res.Recommendations = append(res.Recommendations, stored...)
	order(res.Recommendations)
	return res, nil
}

func (s *Service) generate(ctx context.Context, p *patient.Patient, now time.Time, res *Result, degrade func(error)) {
	res.Recommendations = append(res.Recommendations, fromPatient(p, now)...)

	inv, err := s.history.ListInvestigations(ctx, p.ID)
	if err != nil {
		degrade(fmt.Errorf("investigation lookup: %w", err))
		inv = nil
	} else {
		res.Recommendations = append(res.Recommendations, fromHistory(&pathway.Facts{Patient: p, Investigations: inv}, now)...)
	}
	// without history the biopsy factor is unknown and scores as absent
	res.RiskScore = Score(riskInput(p, inv, p.AgeAt(now)))

	rules, err := s.guidelines.ApplicableGuidelines(ctx, p)
	if err != nil {
		degrade(fmt.Errorf("guideline lookup: %w", err))
		return
	}
	res.Recommendations = append(res.Recommendations, fromGuidelines(p, rules, now)...)
}

// -- Stored recommendations --

func (s *Service) CreateRecommendation(ctx context.Context, r *Recommendation) error {
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if r.Text == "" {
		return fmt.Errorf("text is required")
	}
	if r.Type == "" {
		r.Type = TypeClinical
	}
	if r.Priority == "" {
		r.Priority = PriorityMedium
	}
	if _, ok := priorityRank[r.Priority]; !ok {
		return fmt.Errorf("priority must be low, medium or high")
	}
	if _, err := s.patients.GetByID(ctx, r.PatientID); err != nil {
		return err
	}
	r.Status = StatusPending
	r.Source = SourceStored
	if uid := auth.UserIDFromContext(ctx); uid != "" {
		r.CreatedBy = &uid
	}
	return s.recs.Create(ctx, r)
}

func (s *Service) GetRecommendation(ctx context.Context, id uuid.UUID) (*Recommendation, error) {
	return s.recs.GetByID(ctx, id)
}

// UpdateStatus accepts or dismisses a pending recommendation.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	if status != StatusAccepted && status != StatusDismissed {
		return fmt.Errorf("status must be %s or %s", StatusAccepted, StatusDismissed)
	}
	return s.recs.UpdateStatus(ctx, id, status)
}
