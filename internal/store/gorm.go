package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/school-system/results-engine/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Gorm is the relational Store. The *gorm.DB must be opened with
// TranslateError so duplicate natural keys surface as gorm.ErrDuplicatedKey.
type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}

func (g *Gorm) first(ctx context.Context, dest interface{}, id uuid.UUID) error {
	return translate(g.db.WithContext(ctx).First(dest, "id = ?", id).Error)
}

func (g *Gorm) Student(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	var s models.Student
	if err := g.first(ctx, &s, id); err != nil {
		return nil, err
	}
	return &s, nil
}

func (g *Gorm) StudentsByClass(ctx context.Context, classID uuid.UUID) ([]models.Student, error) {
	var students []models.Student
	err := g.db.WithContext(ctx).Where("class_id = ?", classID).Order("admission_no").Find(&students).Error
	return students, err
}

func (g *Gorm) Class(ctx context.Context, id uuid.UUID) (*models.Class, error) {
	var c models.Class
	if err := g.first(ctx, &c, id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (g *Gorm) Subject(ctx context.Context, id uuid.UUID) (*models.Subject, error) {
	var s models.Subject
	if err := g.first(ctx, &s, id); err != nil {
		return nil, err
	}
	return &s, nil
}

func (g *Gorm) Subjects(ctx context.Context) ([]models.Subject, error) {
	var subjects []models.Subject
	err := g.db.WithContext(ctx).Order("code").Find(&subjects).Error
	return subjects, err
}

func (g *Gorm) ClassSubjectIDs(ctx context.Context, classID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := g.db.WithContext(ctx).Model(&models.ClassSubject{}).
		Where("class_id = ?", classID).
		Pluck("subject_id", &ids).Error
	return ids, err
}

func (g *Gorm) Combination(ctx context.Context, id uuid.UUID) (*models.SubjectCombination, error) {
	var c models.SubjectCombination
	if err := g.first(ctx, &c, id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (g *Gorm) CombinationByCode(ctx context.Context, code string) (*models.SubjectCombination, error) {
	var c models.SubjectCombination
	if err := translate(g.db.WithContext(ctx).Where("code = ?", code).First(&c).Error); err != nil {
		return nil, err
	}
	return &c, nil
}

func (g *Gorm) Exam(ctx context.Context, id uuid.UUID) (*models.Exam, error) {
	var e models.Exam
	if err := g.first(ctx, &e, id); err != nil {
		return nil, err
	}
	return &e, nil
}

func (g *Gorm) Results(ctx context.Context, model models.ResultModel, examID uuid.UUID, studentIDs []uuid.UUID) ([]models.Result, error) {
	table, err := tableFor(model)
	if err != nil {
		return nil, err
	}
	var results []models.Result
	if len(studentIDs) == 0 {
		return results, nil
	}
	err = g.db.WithContext(ctx).Table(table).
		Where("exam_id = ? AND student_id IN ?", examID, studentIDs).
		Order("student_id, subject_id").
		Find(&results).Error
	return results, err
}

func (g *Gorm) AllResults(ctx context.Context, model models.ResultModel) ([]models.Result, error) {
	table, err := tableFor(model)
	if err != nil {
		return nil, err
	}
	var results []models.Result
	err = g.db.WithContext(ctx).Table(table).Order("id").Find(&results).Error
	return results, err
}

func (g *Gorm) History(ctx context.Context, f HistoryFilter) ([]models.HistoryEntry, error) {
	query := g.db.WithContext(ctx).Model(&models.HistoryEntry{})
	if f.Model != "" {
		query = query.Where("result_model = ?", f.Model)
	}
	if f.ResultID != nil {
		query = query.Where("result_id = ?", *f.ResultID)
	}
	if f.StudentID != nil {
		query = query.Where("student_id = ?", *f.StudentID)
	}
	if f.SubjectID != nil {
		query = query.Where("subject_id = ?", *f.SubjectID)
	}
	if f.ExamID != nil {
		query = query.Where("exam_id = ?", *f.ExamID)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}

	var entries []models.HistoryEntry
	err := query.Order("timestamp ASC, result_version ASC").Find(&entries).Error
	return entries, err
}

func (g *Gorm) HistoryEntry(ctx context.Context, id uuid.UUID) (*models.HistoryEntry, error) {
	var h models.HistoryEntry
	if err := g.first(ctx, &h, id); err != nil {
		return nil, err
	}
	return &h, nil
}

func (g *Gorm) GradingPolicies(ctx context.Context) ([]models.GradingPolicy, error) {
	var rows []models.GradingPolicy
	err := g.db.WithContext(ctx).Find(&rows).Error
	return rows, err
}

func (g *Gorm) SaveGradingPolicy(ctx context.Context, p *models.GradingPolicy) error {
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "curriculum"}},
		DoUpdates: clause.AssignmentColumns([]string{"rules", "updated_by", "updated_at"}),
	}).Create(p).Error
}

func (g *Gorm) SaveCombination(ctx context.Context, c *models.SubjectCombination) error {
	if c.ID == uuid.Nil {
		return translate(g.db.WithContext(ctx).Create(c).Error)
	}
	return translate(g.db.WithContext(ctx).Save(c).Error)
}

func (g *Gorm) SetStudentCombination(ctx context.Context, studentID uuid.UUID, combinationID *uuid.UUID) error {
	res := g.db.WithContext(ctx).Model(&models.Student{}).
		Where("id = ?", studentID).
		Update("combination_id", combinationID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{tx: tx})
	})
}

type gormTx struct {
	tx *gorm.DB
}

func (t *gormTx) locked(model models.ResultModel) (*gorm.DB, error) {
	table, err := tableFor(model)
	if err != nil {
		return nil, err
	}
	return t.tx.Table(table).Clauses(clause.Locking{Strength: "UPDATE"}), nil
}

func (t *gormTx) ResultByKey(model models.ResultModel, key models.ResultKey) (*models.Result, error) {
	q, err := t.locked(model)
	if err != nil {
		return nil, err
	}
	var r models.Result
	err = q.Where("student_id = ? AND subject_id = ? AND exam_id = ?", key.StudentID, key.SubjectID, key.ExamID).
		First(&r).Error
	if err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (t *gormTx) ResultByID(model models.ResultModel, id uuid.UUID) (*models.Result, error) {
	q, err := t.locked(model)
	if err != nil {
		return nil, err
	}
	var r models.Result
	if err := q.Where("id = ?", id).First(&r).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (t *gormTx) InsertResult(model models.ResultModel, r *models.Result) error {
	table, err := tableFor(model)
	if err != nil {
		return err
	}
	return translate(t.tx.Table(table).Create(r).Error)
}

func (t *gormTx) UpdateResult(model models.ResultModel, r *models.Result, expectedVersion int) error {
	table, err := tableFor(model)
	if err != nil {
		return err
	}
	res := t.tx.Table(table).
		Where("id = ? AND version = ?", r.ID, expectedVersion).
		Updates(map[string]interface{}{
			"marks_obtained":       r.MarksObtained,
			"grade":                r.Grade,
			"points":               r.Points,
			"is_principal":         r.IsPrincipal,
			"principal_overridden": r.PrincipalOverridden,
			"comment":              r.Comment,
			"needs_review":         r.NeedsReview,
			"version":              r.Version,
			"updated_at":           r.UpdatedAt,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: result %s is no longer at version %d", ErrConflict, r.ID, expectedVersion)
	}
	return nil
}

func (t *gormTx) DeleteResult(model models.ResultModel, id uuid.UUID, expectedVersion int) error {
	table, err := tableFor(model)
	if err != nil {
		return err
	}
	res := t.tx.Table(table).Where("id = ? AND version = ?", id, expectedVersion).Delete(&models.Result{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: result %s is no longer at version %d", ErrConflict, id, expectedVersion)
	}
	return nil
}

func (t *gormTx) LatestHistory(model models.ResultModel, resultID uuid.UUID) (*models.HistoryEntry, error) {
	var h models.HistoryEntry
	err := t.tx.Where("result_model = ? AND result_id = ?", model, resultID).
		Order("result_version DESC").
		First(&h).Error
	if err != nil {
		return nil, translate(err)
	}
	return &h, nil
}

func (t *gormTx) AppendHistory(h *models.HistoryEntry) error {
	return translate(t.tx.Create(h).Error)
}
