package eligibility

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/school-system/results-engine/internal/models"
	"gorm.io/datatypes"
)

func subject(code string, curriculum models.Curriculum, compulsory bool) *models.Subject {
	return &models.Subject{
		BaseModel:    models.BaseModel{ID: uuid.New()},
		Name:         code + " name",
		Code:         code,
		Curriculum:   curriculum,
		IsCompulsory: compulsory,
	}
}

func TestResolve_OLevel(t *testing.T) {
	student := &models.Student{AdmissionNo: "S001", Curriculum: models.CurriculumOLevel}
	math := subject("MATH", models.CurriculumOLevel, false)
	english := subject("ENG", models.CurriculumBoth, true)
	art := subject("ART", models.CurriculumOLevel, false)
	econ := subject("ECON", models.CurriculumALevel, false)
	classSubjects := map[uuid.UUID]bool{math.ID: true}

	tests := []struct {
		name     string
		subject  *models.Subject
		eligible bool
		role     Role
	}{
		{"Class Subject", math, true, RoleClassSubject},
		{"Compulsory Not Assigned", english, true, RoleCompulsory},
		{"Not Assigned", art, false, ""},
		{"A-Level Only Subject", econ, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Resolve(Input{Student: student, Subject: tt.subject, ClassSubjects: classSubjects})
			if tt.eligible {
				if err != nil || !d.Eligible || d.Role != tt.role {
					t.Errorf("Expected eligible as %s, got %+v (%v)", tt.role, d, err)
				}
				return
			}
			if !errors.Is(err, ErrNotEligible) {
				t.Errorf("Expected ErrNotEligible, got %v", err)
			}
		})
	}
}

func TestResolve_ALevelCombination(t *testing.T) {
	physics := subject("PHY", models.CurriculumALevel, false)
	math := subject("MATH", models.CurriculumALevel, false)
	gp := subject("GP", models.CurriculumALevel, true)
	ict := subject("ICT", models.CurriculumALevel, false)
	history := subject("HIST", models.CurriculumALevel, false)

	combo := &models.SubjectCombination{
		Code:                 "PCM",
		PrincipalSubjectIDs:  datatypes.JSONSlice[uuid.UUID]{physics.ID, math.ID},
		SubsidiarySubjectIDs: datatypes.JSONSlice[uuid.UUID]{ict.ID, math.ID},
	}
	student := &models.Student{AdmissionNo: "A001", Curriculum: models.CurriculumALevel}

	tests := []struct {
		name      string
		subject   *models.Subject
		role      Role
		principal bool
	}{
		{"Principal", physics, RolePrincipal, true},
		{"Listed In Both Sets", math, RolePrincipal, true},
		{"Subsidiary", ict, RoleSubsidiary, false},
		{"Compulsory Unlisted", gp, RoleSubsidiary, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Resolve(Input{Student: student, Subject: tt.subject, Combination: combo})
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if d.Role != tt.role || d.DefaultPrincipal != tt.principal || d.IsPrincipal != tt.principal {
				t.Errorf("Expected %s/%v, got %+v", tt.role, tt.principal, d)
			}
		})
	}

	if _, err := Resolve(Input{Student: student, Subject: history, Combination: combo}); !errors.Is(err, ErrNotEligible) {
		t.Errorf("Expected ErrNotEligible for subject outside combination, got %v", err)
	}
}

func TestResolve_ALevelMissingCombination(t *testing.T) {
	student := &models.Student{AdmissionNo: "A002", Curriculum: models.CurriculumALevel}
	gp := subject("GP", models.CurriculumALevel, true)
	physics := subject("PHY", models.CurriculumALevel, false)

	d, err := Resolve(Input{Student: student, Subject: gp})
	if err != nil || !d.Eligible || len(d.Warnings) != 1 || d.Warnings[0].Code != models.WarnMissingCombination {
		t.Errorf("Expected compulsory subject eligible with warning, got %+v (%v)", d, err)
	}

	if _, err := Resolve(Input{Student: student, Subject: physics}); !errors.Is(err, ErrNotEligible) {
		t.Errorf("Expected ErrNotEligible, got %v", err)
	}
}

func TestApplyOverride(t *testing.T) {
	ict := subject("ICT", models.CurriculumALevel, false)
	combo := &models.SubjectCombination{Code: "X", SubsidiarySubjectIDs: datatypes.JSONSlice[uuid.UUID]{ict.ID}}
	student := &models.Student{Curriculum: models.CurriculumALevel}

	d, err := Resolve(Input{Student: student, Subject: ict, Combination: combo})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	yes := true
	over := ApplyOverride(d, &yes)
	if !over.IsPrincipal || !over.Overridden || over.DefaultPrincipal {
		t.Errorf("Expected override to win and keep default visible, got %+v", over)
	}

	back := ApplyOverride(over, nil)
	if back.IsPrincipal || back.Overridden {
		t.Errorf("Expected absent override to fall back to default, got %+v", back)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	physics := subject("PHY", models.CurriculumALevel, false)
	combo := &models.SubjectCombination{Code: "P", PrincipalSubjectIDs: datatypes.JSONSlice[uuid.UUID]{physics.ID}}
	student := &models.Student{Curriculum: models.CurriculumALevel}

	first, _ := Resolve(Input{Student: student, Subject: physics, Combination: combo})
	for i := 0; i < 20; i++ {
		d, _ := Resolve(Input{Student: student, Subject: physics, Combination: combo})
		if d.Role != first.Role || d.IsPrincipal != first.IsPrincipal {
			t.Fatalf("Decision changed between calls: %+v vs %+v", first, d)
		}
	}
}
