package guideline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/urocare/pathway/internal/domain/patient"
)

type Service struct {
	rules Repository
	cache *Cache
	now   func() time.Time
}

func NewService(rules Repository, cache *Cache) *Service {
	return &Service{rules: rules, cache: cache, now: time.Now}
}

// ApplicableGuidelines returns the active rules whose criteria match the patient.
func (s *Service) ApplicableGuidelines(ctx context.Context, p *patient.Patient) ([]*Rule, error) {
	rules, err := s.cache.Rules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load guidelines: %w", err)
	}
	return Applicable(rules, p, s.now()), nil
}

// ByCategory returns the active rules of one category.
func (s *Service) ByCategory(ctx context.Context, category string) ([]*Rule, error) {
	rules, err := s.cache.Rules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load guidelines: %w", err)
	}
	return InCategory(rules, category), nil
}

// -- Rule editing --

func (s *Service) CreateRule(ctx context.Context, r *Rule) error {
	if err := validateRule(r); err != nil {
		return err
	}
	if err := s.rules.Create(ctx, r); err != nil {
		return err
	}
	s.cache.Invalidate()
	return nil
}

func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (*Rule, error) {
	return s.rules.GetByID(ctx, id)
}

func (s *Service) UpdateRule(ctx context.Context, r *Rule) error {
	if err := validateRule(r); err != nil {
		return err
	}
	if err := s.rules.Update(ctx, r); err != nil {
		return err
	}
	s.cache.Invalidate()
	return nil
}

func (s *Service) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if err := s.rules.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate()
	return nil
}

func (s *Service) ListRules(ctx context.Context, limit, offset int) ([]*Rule, int, error) {
	return s.rules.List(ctx, limit, offset)
}

func validateRule(r *Rule) error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if r.Category == "" {
		return fmt.Errorf("category is required")
	}
	if r.RecommendationText == "" {
		return fmt.Errorf("recommendation_text is required")
	}
	if r.Version == "" {
		r.Version = "1"
	}
	c := r.Criteria
	if c.AgeMin != nil && c.AgeMax != nil && *c.AgeMin > *c.AgeMax {
		return fmt.Errorf("criteria.age_min must not exceed criteria.age_max")
	}
	if c.PSAMin != nil && c.PSAMax != nil && *c.PSAMin > *c.PSAMax {
		return fmt.Errorf("criteria.psa_min must not exceed criteria.psa_max")
	}
	if c.PSAMin != nil && *c.PSAMin < 0 {
		return fmt.Errorf("criteria.psa_min must not be negative")
	}
	return nil
}
