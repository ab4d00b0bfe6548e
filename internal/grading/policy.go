package grading

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/school-system/results-engine/internal/models"
)

var ErrInvalidPolicy = errors.New("invalid grading policy")

const (
	RankByAverage = "average"
	RankByPoints  = "points"

	DivisionIncomplete = "INCOMPLETE"
)

// DivisionBand covers point totals in [Min, Max].
type DivisionBand struct {
	Division string `json:"division"`
	Min      int    `json:"min"`
	Max      int    `json:"max"`
}

// Policy is everything a deployment can tune about grading one curriculum.
// Policies handed out by PolicyCache are shared and must not be modified.
type Policy struct {
	Curriculum models.Curriculum `json:"curriculum"`
	Grades     Table             `json:"grades"`
	FailGrade  string            `json:"fail_grade"`
	Divisions  []DivisionBand    `json:"divisions"`
	// FallbackDivision classifies any total above the last band.
	FallbackDivision string `json:"fallback_division"`
	// BestOf is how many subjects (O-Level) or principals (A-Level) count.
	BestOf int `json:"best_of"`
	// SubsidiaryCount adds the best N subsidiary points to A-Level totals.
	SubsidiaryCount   int    `json:"subsidiary_count"`
	MinimumSubjects   int    `json:"minimum_subjects"`
	BlockBelowMinimum bool   `json:"block_below_minimum"`
	RankBy            string `json:"rank_by"`
}

// DefaultOLevelPolicy is used when a deployment has not configured its own.
func DefaultOLevelPolicy() *Policy {
	return &Policy{
		Curriculum: models.CurriculumOLevel,
		Grades: Table{Bands: []Band{
			{Grade: "A", Min: 75, Points: 1},
			{Grade: "B", Min: 65, Points: 2},
			{Grade: "C", Min: 50, Points: 3},
			{Grade: "D", Min: 30, Points: 4},
			{Grade: "F", Min: 0, Points: 5},
		}},
		FailGrade: "F",
		Divisions: []DivisionBand{
			{Division: "I", Min: 7, Max: 17},
			{Division: "II", Min: 18, Max: 21},
			{Division: "III", Min: 22, Max: 25},
			{Division: "IV", Min: 26, Max: 33},
		},
		FallbackDivision: "0",
		BestOf:           7,
		MinimumSubjects:  7,
		RankBy:           RankByAverage,
	}
}

// DefaultALevelPolicy is used when a deployment has not configured its own.
func DefaultALevelPolicy() *Policy {
	return &Policy{
		Curriculum: models.CurriculumALevel,
		Grades: Table{Bands: []Band{
			{Grade: "A", Min: 80, Points: 1},
			{Grade: "B", Min: 70, Points: 2},
			{Grade: "C", Min: 60, Points: 3},
			{Grade: "D", Min: 50, Points: 4},
			{Grade: "S", Min: 40, Points: 5},
			{Grade: "F", Min: 0, Points: 6},
		}},
		FailGrade: "F",
		Divisions: []DivisionBand{
			{Division: "I", Min: 3, Max: 9},
			{Division: "II", Min: 10, Max: 12},
			{Division: "III", Min: 13, Max: 17},
			{Division: "IV", Min: 18, Max: 19},
			{Division: "V", Min: 20, Max: 21},
		},
		FallbackDivision: "0",
		BestOf:           3,
		MinimumSubjects:  3,
		RankBy:           RankByAverage,
	}
}

func DefaultPolicy(c models.Curriculum) (*Policy, error) {
	switch c {
	case models.CurriculumOLevel:
		return DefaultOLevelPolicy(), nil
	case models.CurriculumALevel:
		return DefaultALevelPolicy(), nil
	default:
		return nil, fmt.Errorf("%w: unknown curriculum %q", ErrInvalidPolicy, c)
	}
}

// Validate checks internal consistency and puts bands in canonical order.
func (p *Policy) Validate() error {
	if !p.Curriculum.Valid() {
		return fmt.Errorf("%w: unknown curriculum %q", ErrInvalidPolicy, p.Curriculum)
	}
	if err := p.Grades.Validate(); err != nil {
		return err
	}
	if p.FailGrade != "" {
		if _, err := p.Grades.Points(p.FailGrade); err != nil {
			return fmt.Errorf("%w: fail grade: %v", ErrInvalidPolicy, err)
		}
	}
	if p.BestOf < 1 {
		return fmt.Errorf("%w: best_of must be positive", ErrInvalidPolicy)
	}
	if p.SubsidiaryCount < 0 {
		return fmt.Errorf("%w: subsidiary_count must not be negative", ErrInvalidPolicy)
	}
	if p.MinimumSubjects == 0 {
		p.MinimumSubjects = p.BestOf
	}
	if p.FallbackDivision == "" {
		p.FallbackDivision = "0"
	}
	switch p.RankBy {
	case "":
		p.RankBy = RankByAverage
	case RankByAverage, RankByPoints:
	default:
		return fmt.Errorf("%w: rank_by %q", ErrInvalidPolicy, p.RankBy)
	}

	if len(p.Divisions) == 0 {
		return fmt.Errorf("%w: no division bands", ErrInvalidPolicy)
	}
	sort.SliceStable(p.Divisions, func(i, j int) bool { return p.Divisions[i].Min < p.Divisions[j].Min })
	for i, d := range p.Divisions {
		if d.Division == "" || d.Min > d.Max {
			return fmt.Errorf("%w: division band %d is malformed", ErrInvalidPolicy, i)
		}
		if i > 0 && d.Min <= p.Divisions[i-1].Max {
			return fmt.Errorf("%w: divisions %s and %s overlap", ErrInvalidPolicy, p.Divisions[i-1].Division, d.Division)
		}
	}
	return nil
}

// DivisionFor maps a point total to the first band whose Max is not below it.
// Totals above every band get FallbackDivision. Callers pad missing subjects
// with FailPoints first, so a short total never lands in a better band.
func (p *Policy) DivisionFor(total int) string {
	for _, d := range p.Divisions {
		if total <= d.Max {
			return d.Division
		}
	}
	return p.FallbackDivision
}

// DivisionNames lists every division the policy can produce, best first.
func (p *Policy) DivisionNames() []string {
	names := make([]string, 0, len(p.Divisions)+1)
	for _, d := range p.Divisions {
		names = append(names, d.Division)
	}
	return append(names, p.FallbackDivision)
}

// FailPoints is the points value of the fail grade, or of the worst band
// when the fail grade is not in the table.
func (p *Policy) FailPoints() int {
	if p.FailGrade != "" {
		if fp, err := p.Grades.Points(p.FailGrade); err == nil {
			return fp
		}
	}
	return p.Grades.Worst().Points
}

// IsPass reports whether points beat the policy's fail grade.
func (p *Policy) IsPass(points int) bool {
	return points < p.FailPoints()
}

// DecodePolicy builds a validated Policy from its persisted row.
func DecodePolicy(row models.GradingPolicy) (*Policy, error) {
	var p Policy
	if err := json.Unmarshal(row.Rules, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	p.Curriculum = row.Curriculum
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// EncodePolicy is the inverse of DecodePolicy.
func EncodePolicy(p *Policy) ([]byte, error) {
	return json.Marshal(p)
}
