package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/school-system/results-engine/internal/eligibility"
	"github.com/school-system/results-engine/internal/models"
	"github.com/school-system/results-engine/internal/store"
)

type CombinationService struct {
	store  store.Store
	logger *slog.Logger
}

func NewCombinationService(s store.Store, logger *slog.Logger) *CombinationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CombinationService{store: s, logger: logger}
}

type CombinationInput struct {
	Code     string          `json:"code" validate:"required,max=50"`
	Name     string          `json:"name" validate:"max=255"`
	Subjects json.RawMessage `json:"subjects" validate:"required"`
}

// Ingest normalises an upstream combination payload and stores it under
// its code. Re-ingesting a code replaces its subject sets and bumps Version.
func (s *CombinationService) Ingest(ctx context.Context, in CombinationInput) (*models.SubjectCombination, error) {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	subjects, err := s.store.Subjects(ctx)
	if err != nil {
		return nil, err
	}
	combo, err := eligibility.Normalize(in.Subjects, eligibility.NewCatalog(subjects))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	combo.Code = in.Code
	combo.Name = strings.TrimSpace(in.Name)
	combo.Version = 1

	existing, err := s.store.CombinationByCode(ctx, in.Code)
	switch {
	case err == nil:
		combo.ID = existing.ID
		combo.CreatedAt = existing.CreatedAt
		combo.Version = existing.Version + 1
		if combo.Name == "" {
			combo.Name = existing.Name
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	if err := s.store.SaveCombination(ctx, combo); err != nil {
		return nil, fmt.Errorf("save combination %s: %w", in.Code, err)
	}
	s.logger.Info("combination ingested",
		"code", combo.Code,
		"version", combo.Version,
		"principal", len(combo.PrincipalSubjectIDs),
		"subsidiary", len(combo.SubsidiarySubjectIDs),
	)
	return combo, nil
}

// Assign sets or clears (nil) an A-Level student's combination.
func (s *CombinationService) Assign(ctx context.Context, studentID uuid.UUID, combinationID *uuid.UUID) (*models.Student, error) {
	student, err := s.store.Student(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("student %s: %w", studentID, err)
	}
	if student.Curriculum != models.CurriculumALevel {
		return nil, fmt.Errorf("%w: only A-Level students take a subject combination", ErrValidation)
	}
	if combinationID != nil {
		if _, err := s.store.Combination(ctx, *combinationID); err != nil {
			return nil, fmt.Errorf("combination %s: %w", *combinationID, err)
		}
	}
	if err := s.store.SetStudentCombination(ctx, studentID, combinationID); err != nil {
		return nil, err
	}
	student.CombinationID = combinationID
	return student, nil
}
