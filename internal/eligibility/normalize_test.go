package eligibility

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/school-system/results-engine/internal/models"
)

func testCatalog() (*Catalog, map[string]models.Subject) {
	subjects := []models.Subject{
		*subject("PHY", models.CurriculumALevel, false),
		*subject("CHEM", models.CurriculumALevel, false),
		*subject("MATH", models.CurriculumALevel, false),
		*subject("GP", models.CurriculumALevel, true),
		*subject("SUBICT", models.CurriculumALevel, false),
		*subject("AGR", models.CurriculumOLevel, false),
	}
	subjects[0].Name = "Physics"
	byCode := make(map[string]models.Subject, len(subjects))
	for _, s := range subjects {
		byCode[s.Code] = s
	}
	return NewCatalog(subjects), byCode
}

func TestNormalize_Shapes(t *testing.T) {
	catalog, s := testCatalog()
	phy, chem, math, gp, ict := s["PHY"].ID, s["CHEM"].ID, s["MATH"].ID, s["GP"].ID, s["SUBICT"].ID

	tests := []struct {
		name       string
		payload    string
		principal  []uuid.UUID
		subsidiary []uuid.UUID
	}{
		{
			"Array Of IDs",
			fmt.Sprintf(`["%s","%s","%s","%s"]`, phy, chem, math, gp),
			[]uuid.UUID{phy, chem, math},
			[]uuid.UUID{gp},
		},
		{
			"Object With Codes",
			`{"principal":["PHY","chem","MATH"],"subsidiary":["GP","SUBICT"]}`,
			[]uuid.UUID{phy, chem, math},
			[]uuid.UUID{gp, ict},
		},
		{
			"Nested Objects And Names",
			fmt.Sprintf(`{"principal_subjects":[{"name":"physics"},{"id":"%s"},{"code":"MATH"}],"subsidiary_subjects":[{"subject_code":"GP"}]}`, chem),
			[]uuid.UUID{phy, chem, math},
			[]uuid.UUID{gp},
		},
		{
			"Subjects With Roles",
			`{"subjects":[{"code":"PHY","role":"principal"},{"code":"GP","is_principal":false},{"code":"MATH","is_principal":true}]}`,
			[]uuid.UUID{phy, math},
			[]uuid.UUID{gp},
		},
		{
			"Listed Twice Becomes Principal",
			`{"principal":["PHY","MATH"],"subsidiary":["MATH","GP"]}`,
			[]uuid.UUID{phy, math},
			[]uuid.UUID{gp},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			combo, err := Normalize(json.RawMessage(tt.payload), catalog)
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if !sameIDs(combo.PrincipalSubjectIDs, tt.principal) {
				t.Errorf("Expected principals %v, got %v", tt.principal, combo.PrincipalSubjectIDs)
			}
			if !sameIDs(combo.SubsidiarySubjectIDs, tt.subsidiary) {
				t.Errorf("Expected subsidiaries %v, got %v", tt.subsidiary, combo.SubsidiarySubjectIDs)
			}
		})
	}
}

func TestNormalize_Rejects(t *testing.T) {
	catalog, _ := testCatalog()

	tests := []struct {
		name    string
		payload string
		err     error
	}{
		{"Empty", ``, ErrMalformedCombination},
		{"Scalar", `42`, ErrMalformedCombination},
		{"No Subjects", `{"principal":[]}`, ErrMalformedCombination},
		{"Unknown Code", `["PHYS"]`, ErrUnresolvedSubject},
		{"No Substring Matching", `["Phys"]`, ErrUnresolvedSubject},
		{"O-Level Subject", `["AGR"]`, ErrUnresolvedSubject},
		{"Unknown ID", fmt.Sprintf(`[{"id":"%s"}]`, uuid.New()), ErrUnresolvedSubject},
		{"Bad ID", `[{"id":"not-a-uuid"}]`, ErrMalformedCombination},
		{"Missing Role", `{"subjects":[{"code":"PHY"}]}`, ErrMalformedCombination},
		{"Number Element", `[1]`, ErrMalformedCombination},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Normalize(json.RawMessage(tt.payload), catalog); !errors.Is(err, tt.err) {
				t.Errorf("Expected %v, got %v", tt.err, err)
			}
		})
	}
}

func sameIDs(got []uuid.UUID, want []uuid.UUID) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
