package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/school-system/results-engine/internal/eligibility"
	"github.com/school-system/results-engine/internal/grading"
	"github.com/school-system/results-engine/internal/metrics"
	"github.com/school-system/results-engine/internal/models"
	"github.com/school-system/results-engine/internal/ranking"
	"github.com/school-system/results-engine/internal/store"
)

// SummaryService derives totals, divisions and positions from stored marks.
// It never writes.
type SummaryService struct {
	store    store.Store
	policies *grading.PolicyCache
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewSummaryService(s store.Store, policies *grading.PolicyCache, m *metrics.Metrics, logger *slog.Logger) *SummaryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SummaryService{store: s, policies: policies, metrics: m, logger: logger}
}

type SubjectResult struct {
	ResultID    uuid.UUID `json:"result_id"`
	SubjectID   uuid.UUID `json:"subject_id"`
	SubjectCode string    `json:"subject_code"`
	SubjectName string    `json:"subject_name"`
	Marks       float64   `json:"marks"`
	Grade       string    `json:"grade"`
	Points      int       `json:"points"`
	IsPrincipal bool      `json:"is_principal"`
	Counted     bool      `json:"counted"`
	NeedsReview bool      `json:"needs_review"`
}

type StudentSummary struct {
	StudentID      uuid.UUID        `json:"student_id"`
	AdmissionNo    string           `json:"admission_no"`
	Name           string           `json:"name"`
	Subjects       []SubjectResult  `json:"subjects"`
	TotalMarks     float64          `json:"total_marks"`
	AverageMarks   float64          `json:"average_marks"`
	Division       string           `json:"division"`
	DivisionReason string           `json:"division_reason"`
	TotalPoints    int              `json:"total_points"`
	Position       int              `json:"position"`
	TotalStudents  int              `json:"total_students"`
	Warnings       []models.Warning `json:"warnings"`
}

type SubjectStatistics struct {
	SubjectID         uuid.UUID      `json:"subject_id"`
	SubjectCode       string         `json:"subject_code"`
	SubjectName       string         `json:"subject_name"`
	Count             int            `json:"count"`
	Mean              float64        `json:"mean"`
	Highest           float64        `json:"highest"`
	Lowest            float64        `json:"lowest"`
	GradeDistribution map[string]int `json:"grade_distribution"`
	PassCount         int            `json:"pass_count"`
}

type ClassSummary struct {
	ClassID              uuid.UUID           `json:"class_id"`
	ExamID               uuid.UUID           `json:"exam_id"`
	Curriculum           models.Curriculum   `json:"curriculum"`
	RuleVersion          string              `json:"rule_version"`
	Students             []StudentSummary    `json:"students"`
	DivisionDistribution map[string]int      `json:"division_distribution"`
	SubjectStatistics    []SubjectStatistics `json:"subject_statistics"`
}

// ComputeStudentSummary ranks the student's whole class and returns the
// student's own entry.
func (s *SummaryService) ComputeStudentSummary(ctx context.Context, studentID, examID uuid.UUID) (*StudentSummary, error) {
	student, err := s.store.Student(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("student %s: %w", studentID, err)
	}
	class, err := s.ComputeClassSummary(ctx, student.ClassID, examID)
	if err != nil {
		return nil, err
	}
	for i := range class.Students {
		if class.Students[i].StudentID == studentID {
			return &class.Students[i], nil
		}
	}
	return nil, fmt.Errorf("student %s in class %s: %w", studentID, student.ClassID, store.ErrNotFound)
}

func (s *SummaryService) ComputeClassSummary(ctx context.Context, classID, examID uuid.UUID) (*ClassSummary, error) {
	started := time.Now()

	class, err := s.store.Class(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", classID, err)
	}
	if _, err := s.store.Exam(ctx, examID); err != nil {
		return nil, fmt.Errorf("exam %s: %w", examID, err)
	}
	model, ok := models.ModelFor(class.Curriculum)
	if !ok {
		return nil, fmt.Errorf("%w: class %s has no curriculum", ErrValidation, class.Name)
	}
	policy, ruleVersion, err := s.policies.Get(ctx, class.Curriculum)
	if err != nil {
		return nil, fmt.Errorf("grading policy: %w", err)
	}

	students, err := s.store.StudentsByClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	subjects, err := s.subjectIndex(ctx)
	if err != nil {
		return nil, err
	}
	classSubjects, err := s.store.ClassSubjectIDs(ctx, classID)
	if err != nil {
		return nil, err
	}
	classSet := make(map[uuid.UUID]bool, len(classSubjects))
	for _, id := range classSubjects {
		classSet[id] = true
	}
	var compulsory []uuid.UUID
	for _, sub := range subjects {
		if sub.IsCompulsory && sub.Curriculum.Accepts(class.Curriculum) {
			compulsory = append(compulsory, sub.ID)
		}
	}
	sort.Slice(compulsory, func(i, j int) bool { return compulsory[i].String() < compulsory[j].String() })

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(students))
	for i := range students {
		ids[i] = students[i].ID
	}
	results, err := s.store.Results(ctx, model, examID, ids)
	if err != nil {
		return nil, err
	}
	byStudent := make(map[uuid.UUID][]models.Result, len(students))
	for _, r := range results {
		byStudent[r.StudentID] = append(byStudent[r.StudentID], r)
	}

	summary := &ClassSummary{
		ClassID:              classID,
		ExamID:               examID,
		Curriculum:           class.Curriculum,
		RuleVersion:          ruleVersion,
		Students:             make([]StudentSummary, 0, len(students)),
		DivisionDistribution: make(map[string]int),
	}
	for _, name := range policy.DivisionNames() {
		summary.DivisionDistribution[name] = 0
	}
	summary.DivisionDistribution[grading.DivisionIncomplete] = 0

	combos := make(map[uuid.UUID]*models.SubjectCombination)
	entries := make([]ranking.Entry, 0, len(students))
	for i := range students {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st := &students[i]

		var combo *models.SubjectCombination
		if class.Curriculum == models.CurriculumALevel && st.CombinationID != nil {
			if combo, err = s.combination(ctx, combos, *st.CombinationID); err != nil {
				return nil, err
			}
		}

		ss := s.studentSummary(policy, st, byStudent[st.ID], subjects, classSet, combo, compulsory)
		summary.DivisionDistribution[ss.Division]++
		summary.Students = append(summary.Students, ss)
		entries = append(entries, ranking.Entry{
			StudentID:    st.ID,
			AdmissionNo:  st.AdmissionNo,
			AverageMarks: ss.AverageMarks,
			TotalPoints:  ss.TotalPoints,
			HasResults:   len(ss.Subjects) > 0,
		})
	}

	positions := make(map[uuid.UUID]ranking.Ranked, len(entries))
	for _, r := range ranking.Rank(entries, ranking.Convention(policy.RankBy)) {
		positions[r.StudentID] = r
	}
	for i := range summary.Students {
		r := positions[summary.Students[i].StudentID]
		summary.Students[i].Position = r.Position
		summary.Students[i].TotalStudents = r.TotalStudents
	}
	sort.SliceStable(summary.Students, func(i, j int) bool {
		return summary.Students[i].Position < summary.Students[j].Position
	})

	summary.SubjectStatistics = subjectStatistics(policy, summary.Students)
	s.metrics.ObserveClassSummary(string(class.Curriculum), started)
	s.logger.Debug("class summary computed", "class_id", classID, "exam_id", examID, "students", len(students), "rule_version", ruleVersion)
	return summary, nil
}

func (s *SummaryService) subjectIndex(ctx context.Context) (map[uuid.UUID]models.Subject, error) {
	list, err := s.store.Subjects(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]models.Subject, len(list))
	for _, sub := range list {
		out[sub.ID] = sub
	}
	return out, nil
}

func (s *SummaryService) combination(ctx context.Context, cache map[uuid.UUID]*models.SubjectCombination, id uuid.UUID) (*models.SubjectCombination, error) {
	if c, ok := cache[id]; ok {
		return c, nil
	}
	c, err := s.store.Combination(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		cache[id] = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("combination %s: %w", id, err)
	}
	cache[id] = c
	return c, nil
}

// studentSummary re-derives grade and points from marks and, for A-Level,
// the principal flag from the current combination unless it was overridden.
func (s *SummaryService) studentSummary(policy *grading.Policy, st *models.Student, results []models.Result, subjects map[uuid.UUID]models.Subject, classSet map[uuid.UUID]bool, combo *models.SubjectCombination, compulsory []uuid.UUID) StudentSummary {
	ss := StudentSummary{
		StudentID:   st.ID,
		AdmissionNo: st.AdmissionNo,
		Name:        st.FullName(),
		Subjects:    make([]SubjectResult, 0, len(results)),
		Warnings:    []models.Warning{},
	}

	graded := make([]grading.Graded, 0, len(results))
	for _, r := range results {
		sub := subjects[r.SubjectID]
		marks := grading.RoundMarks(r.MarksObtained)
		grade, points, err := policy.Grades.Evaluate(marks)
		if err != nil {
			subjectID := r.SubjectID
			ss.Warnings = append(ss.Warnings, models.Warning{Code: models.WarnIncompleteData, Message: err.Error(), SubjectID: &subjectID})
			continue
		}

		principal := false
		if policy.Curriculum == models.CurriculumALevel {
			principal = r.IsPrincipal
			if !r.PrincipalOverridden {
				principal = combo != nil && combo.HasPrincipal(r.SubjectID)
			}
		}
		if sub.ID != uuid.Nil {
			_, err := eligibility.Resolve(eligibility.Input{Student: st, Subject: &sub, Combination: combo, ClassSubjects: classSet})
			if err != nil && !(combo == nil && policy.Curriculum == models.CurriculumALevel) {
				subjectID := r.SubjectID
				ss.Warnings = append(ss.Warnings, models.Warning{Code: models.WarnNotEligible, Message: err.Error(), SubjectID: &subjectID})
			}
		}

		ss.Subjects = append(ss.Subjects, SubjectResult{
			ResultID:    r.ID,
			SubjectID:   r.SubjectID,
			SubjectCode: sub.Code,
			SubjectName: sub.Name,
			Marks:       marks,
			Grade:       grade,
			Points:      points,
			IsPrincipal: principal,
			NeedsReview: r.NeedsReview,
		})
		graded = append(graded, grading.Graded{SubjectID: r.SubjectID, Marks: marks, Grade: grade, Points: points, Principal: principal})
		ss.TotalMarks += marks
	}
	sort.Slice(ss.Subjects, func(i, j int) bool { return ss.Subjects[i].SubjectCode < ss.Subjects[j].SubjectCode })

	if len(ss.Subjects) == 0 {
		ss.Division = grading.DivisionIncomplete
		ss.DivisionReason = "No results → " + grading.DivisionIncomplete
		ss.Warnings = append(ss.Warnings, models.Warning{Code: models.WarnIncompleteData, Message: "student has no results for this exam"})
		return ss
	}

	total := ss.TotalMarks
	ss.TotalMarks = round2(total)
	ss.AverageMarks = round2(total / float64(len(ss.Subjects)))

	c := grading.Classify(policy, grading.ClassifyInput{
		Results:            graded,
		CompulsorySubjects: compulsory,
		CombinationMissing: policy.Curriculum == models.CurriculumALevel && combo == nil,
	})
	ss.Division, ss.DivisionReason, ss.TotalPoints = c.Division, c.Reason, c.TotalPoints
	ss.Warnings = append(ss.Warnings, c.Warnings...)

	counted := make(map[uuid.UUID]bool, len(c.Counted))
	for _, id := range c.Counted {
		counted[id] = true
	}
	for i := range ss.Subjects {
		ss.Subjects[i].Counted = counted[ss.Subjects[i].SubjectID]
	}
	return ss
}

func subjectStatistics(policy *grading.Policy, students []StudentSummary) []SubjectStatistics {
	stats := make(map[uuid.UUID]*SubjectStatistics)
	sums := make(map[uuid.UUID]float64)
	for _, st := range students {
		for _, r := range st.Subjects {
			s, ok := stats[r.SubjectID]
			if !ok {
				s = &SubjectStatistics{
					SubjectID:         r.SubjectID,
					SubjectCode:       r.SubjectCode,
					SubjectName:       r.SubjectName,
					Highest:           r.Marks,
					Lowest:            r.Marks,
					GradeDistribution: make(map[string]int),
				}
				for _, b := range policy.Grades.Bands {
					s.GradeDistribution[b.Grade] = 0
				}
				stats[r.SubjectID] = s
			}
			s.Count++
			sums[r.SubjectID] += r.Marks
			s.Highest = math.Max(s.Highest, r.Marks)
			s.Lowest = math.Min(s.Lowest, r.Marks)
			s.GradeDistribution[r.Grade]++
			if policy.IsPass(r.Points) {
				s.PassCount++
			}
		}
	}

	out := make([]SubjectStatistics, 0, len(stats))
	for id, s := range stats {
		s.Mean = round2(sums[id] / float64(s.Count))
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubjectCode != out[j].SubjectCode {
			return out[i].SubjectCode < out[j].SubjectCode
		}
		return out[i].SubjectID.String() < out[j].SubjectID.String()
	})
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
