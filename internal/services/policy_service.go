package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/school-system/results-engine/internal/grading"
	"github.com/school-system/results-engine/internal/models"
	"github.com/school-system/results-engine/internal/store"
	"gorm.io/datatypes"
)

type PolicyService struct {
	store  store.Store
	cache  *grading.PolicyCache
	logger *slog.Logger
}

func NewPolicyService(s store.Store, cache *grading.PolicyCache, logger *slog.Logger) *PolicyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PolicyService{store: s, cache: cache, logger: logger}
}

// Get returns the active policy for curriculum and its rule version hash.
func (s *PolicyService) Get(ctx context.Context, curriculum models.Curriculum) (*grading.Policy, string, error) {
	if !curriculum.Valid() {
		return nil, "", fmt.Errorf("%w: unknown curriculum %q", ErrValidation, curriculum)
	}
	return s.cache.Get(ctx, curriculum)
}

// Update validates and stores a new policy, then drops the cached set so
// the next read sees it.
func (s *PolicyService) Update(ctx context.Context, userID uuid.UUID, curriculum models.Curriculum, p grading.Policy) (*grading.Policy, string, error) {
	if !curriculum.Valid() {
		return nil, "", fmt.Errorf("%w: unknown curriculum %q", ErrValidation, curriculum)
	}
	p.Curriculum = curriculum
	p.Grades.Bands = append([]grading.Band(nil), p.Grades.Bands...)
	p.Divisions = append([]grading.DivisionBand(nil), p.Divisions...)
	if err := p.Validate(); err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if err := s.save(ctx, &userID, &p); err != nil {
		return nil, "", err
	}
	s.cache.Invalidate()
	s.logger.Info("grading policy updated", "curriculum", curriculum, "user_id", userID, "rule_version", grading.RuleVersionHash(&p))
	return s.cache.Get(ctx, curriculum)
}

// SeedDefaults stores the built-in policy for every curriculum that has no
// row yet and returns the curricula it wrote.
func (s *PolicyService) SeedDefaults(ctx context.Context) ([]models.Curriculum, error) {
	rows, err := s.store.GradingPolicies(ctx)
	if err != nil {
		return nil, err
	}
	have := make(map[models.Curriculum]bool, len(rows))
	for _, r := range rows {
		have[r.Curriculum] = true
	}

	var seeded []models.Curriculum
	for _, c := range []models.Curriculum{models.CurriculumOLevel, models.CurriculumALevel} {
		if have[c] {
			continue
		}
		p, err := grading.DefaultPolicy(c)
		if err != nil {
			return seeded, err
		}
		if err := p.Validate(); err != nil {
			return seeded, err
		}
		if err := s.save(ctx, nil, p); err != nil {
			return seeded, err
		}
		seeded = append(seeded, c)
	}
	if len(seeded) > 0 {
		s.cache.Invalidate()
	}
	return seeded, nil
}

func (s *PolicyService) save(ctx context.Context, userID *uuid.UUID, p *grading.Policy) error {
	rules, err := grading.EncodePolicy(p)
	if err != nil {
		return err
	}
	row := &models.GradingPolicy{
		Curriculum: p.Curriculum,
		Rules:      datatypes.JSON(rules),
		UpdatedBy:  userID,
	}
	if err := s.store.SaveGradingPolicy(ctx, row); err != nil {
		return fmt.Errorf("save grading policy: %w", err)
	}
	return nil
}
