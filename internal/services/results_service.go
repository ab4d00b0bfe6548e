package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/school-system/results-engine/internal/eligibility"
	"github.com/school-system/results-engine/internal/grading"
	"github.com/school-system/results-engine/internal/history"
	"github.com/school-system/results-engine/internal/metrics"
	"github.com/school-system/results-engine/internal/models"
	"github.com/school-system/results-engine/internal/store"
)

type ResultsService struct {
	store    store.Store
	ledger   *history.Ledger
	policies *grading.PolicyCache
	locks    *keyedMutex
	mode     EligibilityMode
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewResultsService(s store.Store, policies *grading.PolicyCache, mode EligibilityMode, m *metrics.Metrics, logger *slog.Logger) *ResultsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultsService{
		store:    s,
		ledger:   history.NewLedger(),
		policies: policies,
		locks:    newKeyedMutex(),
		mode:     mode,
		metrics:  m,
		logger:   logger,
	}
}

type MarkInput struct {
	StudentID           uuid.UUID `json:"student_id" validate:"required"`
	SubjectID           uuid.UUID `json:"subject_id" validate:"required"`
	ExamID              uuid.UUID `json:"exam_id" validate:"required"`
	MarksObtained       *float64  `json:"marks_obtained" validate:"required,gte=0,lte=100"`
	Comment             string    `json:"comment" validate:"max=2000"`
	IsPrincipalOverride *bool     `json:"is_principal_override"`
}

type MarkOutcome struct {
	Result   *models.Result     `json:"result"`
	Model    models.ResultModel `json:"result_model"`
	Created  bool               `json:"created"`
	Flagged  bool               `json:"flagged"`
	Warnings []models.Warning   `json:"warnings,omitempty"`
}

// RecordMark creates or updates the result for (student, subject, exam).
// Writing the same values again still appends an UPDATE entry.
func (s *ResultsService) RecordMark(ctx context.Context, userID uuid.UUID, in MarkInput) (*MarkOutcome, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	marks := grading.RoundMarks(*in.MarksObtained)
	if err := grading.ValidateMarks(marks); err != nil {
		return nil, err
	}

	student, err := s.store.Student(ctx, in.StudentID)
	if err != nil {
		return nil, fmt.Errorf("student %s: %w", in.StudentID, err)
	}
	subject, err := s.store.Subject(ctx, in.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("subject %s: %w", in.SubjectID, err)
	}
	if _, err := s.store.Exam(ctx, in.ExamID); err != nil {
		return nil, fmt.Errorf("exam %s: %w", in.ExamID, err)
	}
	model, ok := models.ModelFor(student.Curriculum)
	if !ok {
		return nil, fmt.Errorf("%w: student %s has no curriculum", ErrValidation, student.AdmissionNo)
	}

	out := &MarkOutcome{Model: model}
	decision, err := s.resolve(ctx, student, subject)
	out.Warnings = append(out.Warnings, decision.Warnings...)
	if err != nil {
		if !errors.Is(err, eligibility.ErrNotEligible) {
			return nil, err
		}
		if s.mode != EligibilityLenient {
			s.metrics.MarkRecorded(string(model), "rejected")
			return nil, err
		}
		out.Flagged = true
		out.Warnings = append(out.Warnings, models.Warning{
			Code:      models.WarnNotEligible,
			Message:   err.Error(),
			SubjectID: &subject.ID,
		})
	}

	policy, _, err := s.policies.Get(ctx, model.Curriculum())
	if err != nil {
		return nil, fmt.Errorf("grading policy: %w", err)
	}
	grade, points, err := policy.Grades.Evaluate(marks)
	if err != nil {
		return nil, err
	}

	next := models.ResultSnapshot{
		StudentID:     in.StudentID,
		SubjectID:     in.SubjectID,
		ExamID:        in.ExamID,
		MarksObtained: marks,
		Grade:         grade,
		Points:        points,
		Comment:       in.Comment,
		NeedsReview:   out.Flagged,
	}
	if model == models.ResultModelALevel {
		decision = eligibility.ApplyOverride(decision, in.IsPrincipalOverride)
		next.IsPrincipal = decision.IsPrincipal
		next.PrincipalOverridden = decision.Overridden
	}

	unlock := s.locks.Lock(resultLockKey(model, next.Key()))
	defer unlock()

	var change models.ChangeType
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		current, err := tx.ResultByKey(model, next.Key())
		if errors.Is(err, store.ErrNotFound) {
			r := &models.Result{}
			r.Apply(next)
			h, err := s.ledger.Create(tx, model, r, userID)
			if err != nil {
				return err
			}
			out.Result, out.Created, change = r, true, h.ChangeType
			return nil
		}
		if err != nil {
			return err
		}

		updated, h, err := s.ledger.Update(tx, model, current, next, userID, "")
		if err != nil {
			return err
		}
		out.Result, change = updated, h.ChangeType
		return nil
	})
	if err != nil {
		s.writeFailed("record_mark", err, "student_id", in.StudentID, "subject_id", in.SubjectID, "exam_id", in.ExamID)
		return nil, err
	}

	status := "saved"
	if out.Flagged {
		status = "flagged"
		s.logger.Info("mark stored for review", "student_id", in.StudentID, "subject_id", in.SubjectID, "user_id", userID)
	}
	s.metrics.MarkRecorded(string(model), status)
	s.metrics.HistoryAppended(string(change))
	return out, nil
}

// resolve runs the eligibility resolver for subject against the student's
// current registration.
func (s *ResultsService) resolve(ctx context.Context, student *models.Student, subject *models.Subject) (eligibility.Decision, error) {
	in := eligibility.Input{Student: student, Subject: subject}
	if student.Curriculum == models.CurriculumALevel {
		if student.CombinationID != nil {
			combo, err := s.store.Combination(ctx, *student.CombinationID)
			switch {
			case err == nil:
				in.Combination = combo
			case !errors.Is(err, store.ErrNotFound):
				return eligibility.Decision{}, fmt.Errorf("combination %s: %w", *student.CombinationID, err)
			}
		}
	} else {
		ids, err := s.store.ClassSubjectIDs(ctx, student.ClassID)
		if err != nil {
			return eligibility.Decision{}, fmt.Errorf("class subjects: %w", err)
		}
		in.ClassSubjects = make(map[uuid.UUID]bool, len(ids))
		for _, id := range ids {
			in.ClassSubjects[id] = true
		}
	}
	return eligibility.Resolve(in)
}

func (s *ResultsService) writeFailed(op string, err error, attrs ...any) {
	if errors.Is(err, store.ErrConflict) {
		s.metrics.Conflict(op)
		s.logger.Warn("write conflict", append([]any{"operation", op, "error", err}, attrs...)...)
		return
	}
	s.logger.Error("write failed", append([]any{"operation", op, "error", err}, attrs...)...)
}

const (
	RowSaved    = "saved"
	RowFlagged  = "flagged"
	RowRejected = "rejected"
)

type BatchRow struct {
	StudentID           uuid.UUID `json:"student_id"`
	SubjectID           uuid.UUID `json:"subject_id"`
	MarksObtained       *float64  `json:"marks_obtained"`
	Comment             string    `json:"comment"`
	IsPrincipalOverride *bool     `json:"is_principal_override"`
}

type RowStatus struct {
	Index     int              `json:"index"`
	StudentID uuid.UUID        `json:"student_id"`
	SubjectID uuid.UUID        `json:"subject_id"`
	Status    string           `json:"status"`
	Reason    string           `json:"reason,omitempty"`
	Result    *models.Result   `json:"result,omitempty"`
	Warnings  []models.Warning `json:"warnings,omitempty"`
}

// RecordBatch records each row independently. One row failing never
// affects another; rows left when ctx is cancelled are rejected.
func (s *ResultsService) RecordBatch(ctx context.Context, userID, examID uuid.UUID, rows []BatchRow) []RowStatus {
	statuses := make([]RowStatus, len(rows))
	for i, row := range rows {
		st := RowStatus{Index: i, StudentID: row.StudentID, SubjectID: row.SubjectID}
		if ctx.Err() != nil {
			st.Status, st.Reason = RowRejected, "cancelled"
			statuses[i] = st
			continue
		}

		out, err := s.RecordMark(ctx, userID, MarkInput{
			StudentID:           row.StudentID,
			SubjectID:           row.SubjectID,
			ExamID:              examID,
			MarksObtained:       row.MarksObtained,
			Comment:             row.Comment,
			IsPrincipalOverride: row.IsPrincipalOverride,
		})
		switch {
		case err != nil && ctx.Err() != nil:
			st.Status, st.Reason = RowRejected, "cancelled"
		case err != nil:
			st.Status, st.Reason = RowRejected, err.Error()
			s.logger.Info("batch row rejected", "index", i, "student_id", row.StudentID, "subject_id", row.SubjectID, "error", err)
		case out.Flagged:
			st.Status, st.Result, st.Warnings = RowFlagged, out.Result, out.Warnings
		default:
			st.Status, st.Result, st.Warnings = RowSaved, out.Result, out.Warnings
		}
		statuses[i] = st
	}
	return statuses
}

// DeleteMark removes a result and records the DELETE entry.
func (s *ResultsService) DeleteMark(ctx context.Context, userID uuid.UUID, model models.ResultModel, resultID uuid.UUID, reason string) (*models.HistoryEntry, error) {
	if !model.Valid() {
		return nil, fmt.Errorf("%w: unknown result model %q", ErrValidation, model)
	}

	var key models.ResultKey
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		r, err := tx.ResultByID(model, resultID)
		if err != nil {
			return err
		}
		key = r.Key()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("result %s: %w", resultID, err)
	}

	unlock := s.locks.Lock(resultLockKey(model, key))
	defer unlock()

	var entry *models.HistoryEntry
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		current, err := tx.ResultByID(model, resultID)
		if err != nil {
			return err
		}
		entry, err = s.ledger.Delete(tx, model, current, userID, reason)
		return err
	})
	if err != nil {
		s.writeFailed("delete_mark", err, "result_id", resultID)
		return nil, err
	}
	s.metrics.HistoryAppended(string(models.ChangeDelete))
	s.logger.Info("mark deleted", "result_id", resultID, "model", model, "user_id", userID)
	return entry, nil
}

// GetHistory returns matching ledger entries ordered by timestamp, then
// result version. At least one id filter is required.
func (s *ResultsService) GetHistory(ctx context.Context, filter store.HistoryFilter) ([]models.HistoryEntry, error) {
	if filter.Empty() {
		return nil, fmt.Errorf("%w: at least one of result_id, student_id, subject_id or exam_id is required", ErrValidation)
	}
	if filter.Model != "" && !filter.Model.Valid() {
		return nil, fmt.Errorf("%w: unknown result model %q", ErrValidation, filter.Model)
	}
	return s.store.History(ctx, filter)
}

// Revert restores the values captured by a history entry. Grade and points
// are recomputed from the restored marks under the current policy.
func (s *ResultsService) Revert(ctx context.Context, userID, entryID uuid.UUID, reason string) (*models.Result, error) {
	entry, err := s.store.HistoryEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("history entry %s: %w", entryID, err)
	}
	target, err := history.Target(entry)
	if err != nil {
		return nil, err
	}

	policy, _, err := s.policies.Get(ctx, entry.ResultModel.Curriculum())
	if err != nil {
		return nil, fmt.Errorf("grading policy: %w", err)
	}
	target.MarksObtained = grading.RoundMarks(target.MarksObtained)
	if target.Grade, target.Points, err = policy.Grades.Evaluate(target.MarksObtained); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(resultLockKey(entry.ResultModel, target.Key()))
	defer unlock()

	var restored *models.Result
	var appended *models.HistoryEntry
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		restored, appended, err = s.ledger.Revert(tx, entry, target, userID, reason)
		return err
	})
	if err != nil {
		s.writeFailed("revert", err, "history_id", entryID)
		return nil, err
	}

	s.metrics.Reverted()
	s.metrics.HistoryAppended(string(appended.ChangeType))
	s.logger.Info("result reverted",
		"result_id", restored.ID,
		"history_id", entryID,
		"version", restored.Version,
		"user_id", userID,
	)
	return restored, nil
}
