package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/school-system/results-engine/internal/grading"
	"github.com/school-system/results-engine/internal/metrics"
	"github.com/school-system/results-engine/internal/models"
	"github.com/school-system/results-engine/internal/store"
	"gorm.io/datatypes"
)

var marker = uuid.New()

type fixture struct {
	store    *store.Memory
	policies *grading.PolicyCache
	results  *ResultsService
	summary  *SummaryService
	exam     *models.Exam

	oClass   *models.Class
	oSubject []*models.Subject

	aClass   *models.Class
	combo    *models.SubjectCombination
	aSubject map[string]*models.Subject
}

func newFixture(t *testing.T, mode EligibilityMode) *fixture {
	t.Helper()
	m := store.NewMemory()
	cache := grading.NewPolicyCache(m, time.Minute, nil)
	reg := metrics.New(prometheus.NewRegistry())

	f := &fixture{
		store:    m,
		policies: cache,
		results:  NewResultsService(m, cache, mode, reg, nil),
		summary:  NewSummaryService(m, cache, reg, nil),
		exam:     &models.Exam{Name: "End of Term", Term: "1", AcademicYear: "2026"},
		oClass:   &models.Class{Name: "S4 East", Curriculum: models.CurriculumOLevel},
		aClass:   &models.Class{Name: "S6 Sciences", Curriculum: models.CurriculumALevel},
		aSubject: make(map[string]*models.Subject),
	}
	m.PutExam(f.exam)
	m.PutClass(f.oClass)
	m.PutClass(f.aClass)

	for i, code := range []string{"ENG", "MATH", "BIO", "CHEM", "PHY", "GEO", "HIST"} {
		s := &models.Subject{Name: code, Code: code, Curriculum: models.CurriculumOLevel, IsCompulsory: i == 0}
		m.PutSubject(s)
		m.AssignSubject(f.oClass.ID, s.ID)
		f.oSubject = append(f.oSubject, s)
	}

	for _, code := range []string{"APHY", "ACHEM", "AMATH", "GP", "SUBICT", "ABIO"} {
		s := &models.Subject{Name: code, Code: code, Curriculum: models.CurriculumALevel, IsCompulsory: code == "GP"}
		m.PutSubject(s)
		f.aSubject[code] = s
	}
	f.combo = &models.SubjectCombination{
		Code:                 "PCM",
		PrincipalSubjectIDs:  datatypes.JSONSlice[uuid.UUID]{f.aSubject["APHY"].ID, f.aSubject["ACHEM"].ID, f.aSubject["AMATH"].ID},
		SubsidiarySubjectIDs: datatypes.JSONSlice[uuid.UUID]{f.aSubject["GP"].ID, f.aSubject["SUBICT"].ID},
		Version:              1,
	}
	if err := m.SaveCombination(context.Background(), f.combo); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) oStudent(adm string) *models.Student {
	s := &models.Student{AdmissionNo: adm, FirstName: "Student", LastName: adm, Curriculum: models.CurriculumOLevel, ClassID: f.oClass.ID}
	f.store.PutStudent(s)
	return s
}

func (f *fixture) aStudent(adm string, withCombination bool) *models.Student {
	s := &models.Student{AdmissionNo: adm, FirstName: "Student", LastName: adm, Curriculum: models.CurriculumALevel, ClassID: f.aClass.ID}
	if withCombination {
		id := f.combo.ID
		s.CombinationID = &id
	}
	f.store.PutStudent(s)
	return s
}

func (f *fixture) record(t *testing.T, student *models.Student, subject *models.Subject, marks float64) *MarkOutcome {
	t.Helper()
	out, err := f.results.RecordMark(context.Background(), marker, MarkInput{
		StudentID:     student.ID,
		SubjectID:     subject.ID,
		ExamID:        f.exam.ID,
		MarksObtained: &marks,
	})
	if err != nil {
		t.Fatalf("record %s %s: %v", student.AdmissionNo, subject.Code, err)
	}
	return out
}

func (f *fixture) history(t *testing.T, resultID uuid.UUID) []models.HistoryEntry {
	t.Helper()
	h, err := f.results.GetHistory(context.Background(), store.HistoryFilter{ResultID: &resultID})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func ptr[T any](v T) *T {
	return &v
}
