// Package store is the persistence boundary of the results engine. The
// engine needs lookups by id, result queries, an append-only history table
// and a transaction for locked read-modify-write of a single result.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/school-system/results-engine/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict means another writer changed the same result first. It is
	// safe to retry.
	ErrConflict = errors.New("concurrent modification")
)

// HistoryFilter selects ledger rows. Zero fields are ignored; Model narrows
// to one result collection.
type HistoryFilter struct {
	ResultID  *uuid.UUID
	StudentID *uuid.UUID
	SubjectID *uuid.UUID
	ExamID    *uuid.UUID
	Model     models.ResultModel
	Limit     int
}

func (f HistoryFilter) Empty() bool {
	return f.ResultID == nil && f.StudentID == nil && f.SubjectID == nil && f.ExamID == nil
}

func (f HistoryFilter) Matches(h *models.HistoryEntry) bool {
	switch {
	case f.Model != "" && h.ResultModel != f.Model:
		return false
	case f.ResultID != nil && h.ResultID != *f.ResultID:
		return false
	case f.StudentID != nil && h.StudentID != *f.StudentID:
		return false
	case f.SubjectID != nil && h.SubjectID != *f.SubjectID:
		return false
	case f.ExamID != nil && h.ExamID != *f.ExamID:
		return false
	}
	return true
}

// Store is implemented by Gorm for production and Memory for development
// and tests.
type Store interface {
	Student(ctx context.Context, id uuid.UUID) (*models.Student, error)
	StudentsByClass(ctx context.Context, classID uuid.UUID) ([]models.Student, error)
	Class(ctx context.Context, id uuid.UUID) (*models.Class, error)
	Subject(ctx context.Context, id uuid.UUID) (*models.Subject, error)
	Subjects(ctx context.Context) ([]models.Subject, error)
	ClassSubjectIDs(ctx context.Context, classID uuid.UUID) ([]uuid.UUID, error)
	Combination(ctx context.Context, id uuid.UUID) (*models.SubjectCombination, error)
	CombinationByCode(ctx context.Context, code string) (*models.SubjectCombination, error)
	Exam(ctx context.Context, id uuid.UUID) (*models.Exam, error)

	// Results returns the live results of the given students for one exam.
	Results(ctx context.Context, model models.ResultModel, examID uuid.UUID, studentIDs []uuid.UUID) ([]models.Result, error)
	AllResults(ctx context.Context, model models.ResultModel) ([]models.Result, error)

	// History returns matching entries ordered by timestamp, then version.
	History(ctx context.Context, filter HistoryFilter) ([]models.HistoryEntry, error)
	HistoryEntry(ctx context.Context, id uuid.UUID) (*models.HistoryEntry, error)

	GradingPolicies(ctx context.Context) ([]models.GradingPolicy, error)
	SaveGradingPolicy(ctx context.Context, p *models.GradingPolicy) error
	SaveCombination(ctx context.Context, c *models.SubjectCombination) error
	SetStudentCombination(ctx context.Context, studentID uuid.UUID, combinationID *uuid.UUID) error

	// InTx runs fn in one transaction. Nothing fn writes is visible unless it
	// returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write side. Reads through a Tx lock the rows they return for
// the rest of the transaction where the backend supports it.
type Tx interface {
	ResultByKey(model models.ResultModel, key models.ResultKey) (*models.Result, error)
	ResultByID(model models.ResultModel, id uuid.UUID) (*models.Result, error)
	// InsertResult fails with ErrConflict when the natural key is taken.
	InsertResult(model models.ResultModel, r *models.Result) error
	// UpdateResult and DeleteResult fail with ErrConflict unless the stored
	// version still equals expectedVersion.
	UpdateResult(model models.ResultModel, r *models.Result, expectedVersion int) error
	DeleteResult(model models.ResultModel, id uuid.UUID, expectedVersion int) error
	LatestHistory(model models.ResultModel, resultID uuid.UUID) (*models.HistoryEntry, error)
	AppendHistory(h *models.HistoryEntry) error
}

func tableFor(model models.ResultModel) (string, error) {
	switch model {
	case models.ResultModelOLevel:
		return "o_level_results", nil
	case models.ResultModelALevel:
		return "a_level_results", nil
	default:
		return "", fmt.Errorf("unknown result model %q", model)
	}
}

// ResultTables lists every per-curriculum results table.
func ResultTables() map[models.ResultModel]string {
	return map[models.ResultModel]string{
		models.ResultModelOLevel: "o_level_results",
		models.ResultModelALevel: "a_level_results",
	}
}
