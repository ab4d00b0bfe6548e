package services

import (
	"context"
	"errors"
	"testing"

	"github.com/school-system/results-engine/internal/grading"
	"github.com/school-system/results-engine/internal/models"
	"github.com/school-system/results-engine/internal/store"
)

func TestComputeClassSummary_OLevel(t *testing.T) {
	f := newFixture(t, EligibilityStrict)
	marks := map[string][]float64{
		"S001": {80, 80, 80, 80, 80, 80, 80}, // 7 points
		"S002": {80, 80, 80, 55, 40, 40, 40}, // 18 points
		"S003": {80, 80, 80, 55, 55, 40, 40}, // 17 points
	}
	for _, adm := range []string{"S001", "S002", "S003"} {
		st := f.oStudent(adm)
		for i, m := range marks[adm] {
			f.record(t, st, f.oSubject[i], m)
		}
	}
	f.oStudent("S004")

	summary, err := f.summary.ComputeClassSummary(context.Background(), f.oClass.ID, f.exam.ID)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		adm      string
		division string
		points   int
		average  float64
		position int
	}{
		{"S001", "I", 7, 80, 1},
		{"S003", "I", 17, 61.43, 2},
		{"S002", "II", 18, 59.29, 3},
		{"S004", grading.DivisionIncomplete, 0, 0, 4},
	}
	if len(summary.Students) != len(tests) {
		t.Fatalf("Expected %d students, got %d", len(tests), len(summary.Students))
	}
	for i, tt := range tests {
		t.Run(tt.adm, func(t *testing.T) {
			got := summary.Students[i]
			if got.AdmissionNo != tt.adm {
				t.Fatalf("Expected %s at index %d, got %s", tt.adm, i, got.AdmissionNo)
			}
			if got.Division != tt.division || got.TotalPoints != tt.points {
				t.Errorf("Expected Division %s with %d points, got %s with %d (%s)", tt.division, tt.points, got.Division, got.TotalPoints, got.DivisionReason)
			}
			if got.AverageMarks != tt.average || got.Position != tt.position || got.TotalStudents != 4 {
				t.Errorf("Expected avg %.2f at %d/4, got %.2f at %d/%d", tt.average, tt.position, got.AverageMarks, got.Position, got.TotalStudents)
			}
		})
	}

	wantDist := map[string]int{"I": 2, "II": 1, "III": 0, "IV": 0, "0": 0, grading.DivisionIncomplete: 1}
	for k, v := range wantDist {
		if summary.DivisionDistribution[k] != v {
			t.Errorf("Expected %d in division %s, got %d", v, k, summary.DivisionDistribution[k])
		}
	}
	if summary.RuleVersion == "" {
		t.Error("Expected a rule version hash")
	}

	var hist *SubjectStatistics
	for i := range summary.SubjectStatistics {
		if summary.SubjectStatistics[i].SubjectCode == "HIST" {
			hist = &summary.SubjectStatistics[i]
		}
	}
	if hist == nil {
		t.Fatal("Expected statistics for HIST")
	}
	if hist.Count != 3 || hist.Mean != 53.33 || hist.Highest != 80 || hist.Lowest != 40 {
		t.Errorf("Unexpected HIST statistics %+v", hist)
	}
	if hist.GradeDistribution["A"] != 1 || hist.GradeDistribution["D"] != 2 || hist.GradeDistribution["F"] != 0 || hist.PassCount != 3 {
		t.Errorf("Unexpected HIST distribution %+v pass=%d", hist.GradeDistribution, hist.PassCount)
	}

	last := summary.Students[3]
	if len(last.Warnings) == 0 || last.Warnings[0].Code != models.WarnIncompleteData {
		t.Errorf("Expected INCOMPLETE_DATA warning for student without results, got %+v", last.Warnings)
	}
}

func TestComputeClassSummary_MissingCompulsory(t *testing.T) {
	f := newFixture(t, EligibilityStrict)
	st := f.oStudent("S010")
	for i := 1; i < 7; i++ {
		f.record(t, st, f.oSubject[i], 70)
	}

	got, err := f.summary.ComputeStudentSummary(context.Background(), st.ID, f.exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	codes := map[string]bool{}
	for _, w := range got.Warnings {
		codes[w.Code] = true
	}
	if !codes[models.WarnMissingCompulsory] || !codes[models.WarnIncompleteData] {
		t.Errorf("Expected missing compulsory and incomplete data warnings, got %+v", got.Warnings)
	}
	if got.Division != "I" || got.TotalPoints != 17 {
		t.Errorf("Expected 12 points plus the missing subject at 5 for Division I/17, got %s/%d", got.Division, got.TotalPoints)
	}
}

func TestComputeClassSummary_ALevelPrincipals(t *testing.T) {
	f := newFixture(t, EligibilityStrict)
	strong := f.aStudent("A001", true)
	f.record(t, strong, f.aSubject["APHY"], 85)
	f.record(t, strong, f.aSubject["ACHEM"], 72)
	f.record(t, strong, f.aSubject["AMATH"], 65)
	f.record(t, strong, f.aSubject["GP"], 50)

	override := f.aStudent("A002", true)
	f.record(t, override, f.aSubject["APHY"], 45)
	f.record(t, override, f.aSubject["ACHEM"], 45)
	f.record(t, override, f.aSubject["AMATH"], 45)
	_, err := f.results.RecordMark(context.Background(), marker, MarkInput{
		StudentID: override.ID, SubjectID: f.aSubject["SUBICT"].ID, ExamID: f.exam.ID,
		MarksObtained: ptr(90.0), IsPrincipalOverride: ptr(true),
	})
	if err != nil {
		t.Fatal(err)
	}

	summary, err := f.summary.ComputeClassSummary(context.Background(), f.aClass.ID, f.exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	byAdm := map[string]StudentSummary{}
	for _, s := range summary.Students {
		byAdm[s.AdmissionNo] = s
	}

	if s := byAdm["A001"]; s.Division != "I" || s.TotalPoints != 6 {
		t.Errorf("Expected A001 Division I with 6 points, got %s/%d", s.Division, s.TotalPoints)
	}
	if s := byAdm["A002"]; s.Division != "II" || s.TotalPoints != 11 {
		t.Errorf("Expected override to count SUBICT as principal (II/11), got %s/%d: %s", s.Division, s.TotalPoints, s.DivisionReason)
	}
	for _, sub := range byAdm["A001"].Subjects {
		if sub.SubjectCode == "GP" && (sub.IsPrincipal || sub.Counted) {
			t.Errorf("Expected GP as uncounted subsidiary, got %+v", sub)
		}
	}
}

func TestComputeClassSummary_PolicyChangeRegrades(t *testing.T) {
	f := newFixture(t, EligibilityStrict)
	st := f.oStudent("S001")
	f.record(t, st, f.oSubject[0], 72)

	p := *grading.DefaultOLevelPolicy()
	p.Grades = grading.Table{Bands: []grading.Band{
		{Grade: "A", Min: 70, Points: 1},
		{Grade: "C", Min: 40, Points: 3},
		{Grade: "F", Min: 0, Points: 5},
	}}
	policies := NewPolicyService(f.store, f.policies, nil)
	_, hash, err := policies.Update(context.Background(), marker, models.CurriculumOLevel, p)
	if err != nil {
		t.Fatal(err)
	}

	got, err := f.summary.ComputeStudentSummary(context.Background(), st.ID, f.exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Subjects[0].Grade != "A" || got.Subjects[0].Points != 1 {
		t.Errorf("Expected 72 regraded to A under the new table, got %+v", got.Subjects[0])
	}
	class, _ := f.summary.ComputeClassSummary(context.Background(), f.oClass.ID, f.exam.ID)
	if class.RuleVersion != hash {
		t.Errorf("Expected rule version %s, got %s", hash, class.RuleVersion)
	}
}

func TestComputeClassSummary_Errors(t *testing.T) {
	f := newFixture(t, EligibilityStrict)
	f.oStudent("S001")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.summary.ComputeClassSummary(ctx, f.oClass.ID, f.exam.ID); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if _, err := f.summary.ComputeClassSummary(context.Background(), f.exam.ID, f.exam.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown class, got %v", err)
	}
}
