package grading

import (
	"errors"
	"math"
	"testing"
)

func TestOLevelTable_Grade(t *testing.T) {
	table := DefaultOLevelPolicy().Grades

	tests := []struct {
		marks    float64
		expected string
		points   int
	}{
		{100, "A", 1},
		{75, "A", 1},
		{74.99, "B", 2},
		{65, "B", 2},
		{64.5, "C", 3},
		{50, "C", 3},
		{49, "D", 4},
		{30, "D", 4},
		{29.99, "F", 5},
		{0, "F", 5},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			grade, points, err := table.Evaluate(tt.marks)
			if err != nil {
				t.Fatalf("Mark %.2f: unexpected error %v", tt.marks, err)
			}
			if grade != tt.expected || points != tt.points {
				t.Errorf("Mark %.2f: expected %s/%d, got %s/%d", tt.marks, tt.expected, tt.points, grade, points)
			}
		})
	}
}

func TestALevelTable_Grade(t *testing.T) {
	table := DefaultALevelPolicy().Grades

	tests := []struct {
		name     string
		marks    float64
		expected string
		points   int
	}{
		{"Top", 95, "A", 1},
		{"A Lower Bound", 80, "A", 1},
		{"B", 70, "B", 2},
		{"C", 60, "C", 3},
		{"D", 50, "D", 4},
		{"Subsidiary Pass", 40, "S", 5},
		{"Just Below Subsidiary", 39.5, "F", 6},
		{"Zero", 0, "F", 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grade, points, err := table.Evaluate(tt.marks)
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if grade != tt.expected || points != tt.points {
				t.Errorf("Expected %s/%d, got %s/%d", tt.expected, tt.points, grade, points)
			}
		})
	}
}

func TestTable_OutOfRange(t *testing.T) {
	table := DefaultOLevelPolicy().Grades

	for _, marks := range []float64{-0.01, 100.01, -50, 1000, math.NaN(), math.Inf(1)} {
		if _, err := table.Grade(marks); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Mark %v: expected ErrOutOfRange, got %v", marks, err)
		}
	}
}

func TestRoundMarks(t *testing.T) {
	table := DefaultOLevelPolicy().Grades

	tests := []struct {
		marks float64
		want  float64
		grade string
	}{
		{74.996, 75, "A"},
		{74.994, 74.99, "B"},
		{64.995, 65, "B"},
		{49.999, 50, "C"},
		{29.9949, 29.99, "F"},
		{99.999, 100, "A"},
		{0.004, 0, "F"},
		{68, 68, "B"},
	}

	for _, tt := range tests {
		got := RoundMarks(tt.marks)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("RoundMarks(%v): expected %v, got %v", tt.marks, tt.want, got)
			continue
		}
		if grade, _ := table.Grade(got); grade != tt.grade {
			t.Errorf("Mark %v: expected %s after rounding, got %s", tt.marks, tt.grade, grade)
		}
	}
}

func TestTable_TotalAndMonotonic(t *testing.T) {
	table := DefaultOLevelPolicy().Grades

	prev := 0
	for m := 0.0; m <= 100.0; m += 0.25 {
		_, points, err := table.Evaluate(m)
		if err != nil {
			t.Fatalf("Mark %.2f: unexpected error %v", m, err)
		}
		if prev != 0 && points > prev {
			t.Fatalf("Mark %.2f: points went from %d up to %d", m, prev, points)
		}
		prev = points

		again, _, _ := table.Evaluate(m)
		first, _ := table.Grade(m)
		if again != first {
			t.Fatalf("Mark %.2f: non-deterministic grade %s vs %s", m, first, again)
		}
	}
}

func TestTable_Points(t *testing.T) {
	table := DefaultALevelPolicy().Grades

	if p, err := table.Points("S"); err != nil || p != 5 {
		t.Errorf("Expected S=5, got %d (%v)", p, err)
	}
	if _, err := DefaultOLevelPolicy().Grades.Points("S"); !errors.Is(err, ErrUnknownGrade) {
		t.Errorf("Expected ErrUnknownGrade for S on O-Level, got %v", err)
	}
}

func TestTable_ValidateOrdersAndRejects(t *testing.T) {
	table := Table{Bands: []Band{
		{Grade: "F", Min: 0, Points: 5},
		{Grade: "A", Min: 75, Points: 1},
		{Grade: "C", Min: 50, Points: 3},
	}}
	if err := table.Validate(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if table.Bands[0].Grade != "A" || table.Bands[2].Grade != "F" {
		t.Errorf("Expected bands sorted high to low, got %+v", table.Bands)
	}

	bad := []struct {
		name  string
		table Table
	}{
		{"Empty", Table{}},
		{"No Zero Band", Table{Bands: []Band{{Grade: "A", Min: 50, Points: 1}}}},
		{"Duplicate Min", Table{Bands: []Band{{Grade: "A", Min: 0, Points: 1}, {Grade: "B", Min: 0, Points: 2}}}},
		{"Duplicate Grade", Table{Bands: []Band{{Grade: "A", Min: 50, Points: 1}, {Grade: "A", Min: 0, Points: 2}}}},
		{"Above 100", Table{Bands: []Band{{Grade: "A", Min: 101, Points: 1}, {Grade: "F", Min: 0, Points: 2}}}},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.table.Validate(); !errors.Is(err, ErrInvalidTable) {
				t.Errorf("Expected ErrInvalidTable, got %v", err)
			}
		})
	}
}

func TestPolicy_Validate(t *testing.T) {
	p := DefaultOLevelPolicy()
	p.Divisions = append(p.Divisions, DivisionBand{Division: "X", Min: 30, Max: 40})
	if err := p.Validate(); !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("Expected overlap to be rejected, got %v", err)
	}

	p = DefaultALevelPolicy()
	p.RankBy = "alphabetical"
	if err := p.Validate(); !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("Expected bad rank_by to be rejected, got %v", err)
	}

	for _, p := range []*Policy{DefaultOLevelPolicy(), DefaultALevelPolicy()} {
		if err := p.Validate(); err != nil {
			t.Errorf("Default %s policy invalid: %v", p.Curriculum, err)
		}
	}
}

func TestRuleVersionHash(t *testing.T) {
	a := RuleVersionHash(DefaultOLevelPolicy())
	b := RuleVersionHash(DefaultOLevelPolicy())
	if a != b || len(a) != 16 {
		t.Errorf("Expected stable 16-char hash, got %q and %q", a, b)
	}

	changed := DefaultOLevelPolicy()
	changed.Grades.Bands[0].Min = 80
	if RuleVersionHash(changed) == a {
		t.Error("Expected hash to change with the rules")
	}
}
