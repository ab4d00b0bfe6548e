package grading

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrOutOfRange   = errors.New("marks out of range")
	ErrUnknownGrade = errors.New("unknown grade")
	ErrInvalidTable = errors.New("invalid grading table")
)

const (
	MinMarks = 0.0
	MaxMarks = 100.0

	// MarksScale is the number of decimal places a mark is stored with.
	MarksScale = 2
)

// Band maps every mark >= Min (up to the next band) to Grade and Points.
type Band struct {
	Grade  string  `json:"grade"`
	Min    float64 `json:"min"`
	Points int     `json:"points"`
}

// Table is a grade band table for one curriculum.
type Table struct {
	Bands []Band `json:"bands"`
}

// ValidateMarks rejects anything outside [0,100]. Values are never clamped.
func ValidateMarks(marks float64) error {
	if math.IsNaN(marks) || math.IsInf(marks, 0) {
		return fmt.Errorf("%w: %v is not a number", ErrOutOfRange, marks)
	}
	if marks < MinMarks || marks > MaxMarks {
		return fmt.Errorf("%w: %.2f not in [0,100]", ErrOutOfRange, marks)
	}
	return nil
}

// RoundMarks rounds marks to the stored scale. Marks must be rounded before
// grading, otherwise a value such as 74.996 is graded below the 75.00 the
// database keeps.
func RoundMarks(marks float64) float64 {
	scale := math.Pow10(MarksScale)
	return math.Round(marks*scale) / scale
}

// Grade returns the band whose Min is the highest value not above marks, so a
// mark sitting exactly on an edge takes the higher band.
func (t Table) Grade(marks float64) (string, error) {
	b, err := t.band(marks)
	if err != nil {
		return "", err
	}
	return b.Grade, nil
}

// Points returns the points attached to grade.
func (t Table) Points(grade string) (int, error) {
	for _, b := range t.Bands {
		if b.Grade == grade {
			return b.Points, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownGrade, grade)
}

// Evaluate returns both grade and points for marks.
func (t Table) Evaluate(marks float64) (string, int, error) {
	b, err := t.band(marks)
	if err != nil {
		return "", 0, err
	}
	return b.Grade, b.Points, nil
}

func (t Table) band(marks float64) (Band, error) {
	if err := ValidateMarks(marks); err != nil {
		return Band{}, err
	}
	found := -1
	for i, b := range t.Bands {
		if marks >= b.Min && (found < 0 || b.Min > t.Bands[found].Min) {
			found = i
		}
	}
	if found < 0 {
		return Band{}, fmt.Errorf("%w: no band covers %.2f", ErrInvalidTable, marks)
	}
	return t.Bands[found], nil
}

// Validate checks that the table is total over [0,100] and unambiguous, and
// sorts bands from highest to lowest.
func (t *Table) Validate() error {
	if len(t.Bands) == 0 {
		return fmt.Errorf("%w: no bands", ErrInvalidTable)
	}
	sort.SliceStable(t.Bands, func(i, j int) bool { return t.Bands[i].Min > t.Bands[j].Min })

	grades := make(map[string]bool, len(t.Bands))
	for i, b := range t.Bands {
		if b.Grade == "" {
			return fmt.Errorf("%w: band %d has no grade", ErrInvalidTable, i)
		}
		if grades[b.Grade] {
			return fmt.Errorf("%w: grade %s listed twice", ErrInvalidTable, b.Grade)
		}
		grades[b.Grade] = true
		if b.Min < MinMarks || b.Min > MaxMarks {
			return fmt.Errorf("%w: band %s starts at %.2f", ErrInvalidTable, b.Grade, b.Min)
		}
		if i > 0 && b.Min == t.Bands[i-1].Min {
			return fmt.Errorf("%w: bands %s and %s share min %.2f", ErrInvalidTable, t.Bands[i-1].Grade, b.Grade, b.Min)
		}
	}
	if t.Bands[len(t.Bands)-1].Min != MinMarks {
		return fmt.Errorf("%w: lowest band must start at 0", ErrInvalidTable)
	}
	return nil
}

// Worst returns the lowest band, the one every failing mark falls into.
func (t Table) Worst() Band {
	worst := t.Bands[0]
	for _, b := range t.Bands[1:] {
		if b.Min < worst.Min {
			worst = b
		}
	}
	return worst
}

// RuleVersionHash fingerprints a policy so reports can be traced to the exact
// rules that produced them.
func RuleVersionHash(p *Policy) string {
	data, err := json.Marshal(p)
	if err != nil {
		return hashRuleVersion(string(p.Curriculum))
	}
	return hashRuleVersion(string(data))
}

func hashRuleVersion(version string) string {
	hash := sha256.Sum256([]byte(version))
	return fmt.Sprintf("%x", hash[:8])
}
