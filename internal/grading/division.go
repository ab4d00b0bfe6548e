package grading

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/school-system/results-engine/internal/models"
)

// Graded is one re-derived subject result fed to the classifier.
type Graded struct {
	SubjectID uuid.UUID
	Marks     float64
	Grade     string
	Points    int
	Principal bool
}

// ClassifyInput carries the results plus what is known about the student's
// registration, so missing data can be reported next to the division.
type ClassifyInput struct {
	Results            []Graded
	CompulsorySubjects []uuid.UUID
	CombinationMissing bool
}

type Classification struct {
	Division    string
	TotalPoints int
	Counted     []uuid.UUID
	Reason      string
	Warnings    []models.Warning
}

// Classify selects the qualifying subjects and maps their point total to a
// division. It never blocks on incomplete data unless the policy says so.
func Classify(p *Policy, in ClassifyInput) Classification {
	if p.Curriculum == models.CurriculumALevel {
		return classifyALevel(p, in)
	}
	return classifyOLevel(p, in)
}

func classifyOLevel(p *Policy, in ClassifyInput) Classification {
	var out Classification
	out.Warnings = missingCompulsory(in)

	best := bestByPoints(in.Results, p.BestOf)
	out.TotalPoints, out.Counted = sumPoints(best)
	missing := p.BestOf - len(best)
	out.TotalPoints += missing * p.FailPoints()

	if len(in.Results) < p.MinimumSubjects {
		out.Warnings = append(out.Warnings, models.Warning{
			Code:    models.WarnIncompleteData,
			Message: fmt.Sprintf("%d of %d required subjects have results", len(in.Results), p.MinimumSubjects),
		})
		if p.BlockBelowMinimum {
			out.Division = DivisionIncomplete
			out.Reason = fmt.Sprintf("Only %d subjects → %s", len(in.Results), DivisionIncomplete)
			return out
		}
	}

	out.Division = p.DivisionFor(out.TotalPoints)
	out.Reason = fmt.Sprintf("Best %d points: %v%s = %d → Division %s", len(best), pointsOf(best), padding(p, missing), out.TotalPoints, out.Division)
	return out
}

func classifyALevel(p *Policy, in ClassifyInput) Classification {
	var out Classification
	if in.CombinationMissing {
		out.Warnings = append(out.Warnings, models.Warning{
			Code:    models.WarnMissingCombination,
			Message: "student has no subject combination; only results with an overridden principal flag count as principals",
		})
	}
	out.Warnings = append(out.Warnings, missingCompulsory(in)...)

	var principals, subsidiaries []Graded
	for _, r := range in.Results {
		if r.Principal {
			principals = append(principals, r)
		} else {
			subsidiaries = append(subsidiaries, r)
		}
	}

	best := bestByPoints(principals, p.BestOf)
	counted := best
	missing := p.BestOf - len(best)
	if p.SubsidiaryCount > 0 {
		subs := bestByPoints(subsidiaries, p.SubsidiaryCount)
		counted = append(append([]Graded{}, best...), subs...)
		missing += p.SubsidiaryCount - len(subs)
	}
	out.TotalPoints, out.Counted = sumPoints(counted)
	out.TotalPoints += missing * p.FailPoints()

	if len(principals) < p.MinimumSubjects {
		out.Warnings = append(out.Warnings, models.Warning{
			Code:    models.WarnIncompleteData,
			Message: fmt.Sprintf("%d of %d required principal subjects have results", len(principals), p.MinimumSubjects),
		})
		if p.BlockBelowMinimum {
			out.Division = DivisionIncomplete
			out.Reason = fmt.Sprintf("Only %d principals → %s", len(principals), DivisionIncomplete)
			return out
		}
	}

	out.Division = p.DivisionFor(out.TotalPoints)
	out.Reason = fmt.Sprintf("Best %d principals: %v", len(best), pointsOf(best))
	if p.SubsidiaryCount > 0 {
		out.Reason += fmt.Sprintf(" + subsidiaries: %v", pointsOf(counted[len(best):]))
	}
	out.Reason += fmt.Sprintf("%s = %d → Division %s", padding(p, missing), out.TotalPoints, out.Division)
	return out
}

// bestByPoints orders by points ascending (lower is better), then marks
// descending, then subject id, and keeps the first n.
func bestByPoints(results []Graded, n int) []Graded {
	sorted := make([]Graded, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Points != b.Points {
			return a.Points < b.Points
		}
		if a.Marks != b.Marks {
			return a.Marks > b.Marks
		}
		return a.SubjectID.String() < b.SubjectID.String()
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// padding describes the fail points charged for missing slots.
func padding(p *Policy, missing int) string {
	if missing <= 0 {
		return ""
	}
	return fmt.Sprintf(" + %d missing × %d", missing, p.FailPoints())
}

func sumPoints(results []Graded) (int, []uuid.UUID) {
	total := 0
	ids := make([]uuid.UUID, 0, len(results))
	for _, r := range results {
		total += r.Points
		ids = append(ids, r.SubjectID)
	}
	return total, ids
}

func pointsOf(results []Graded) []int {
	pts := make([]int, len(results))
	for i, r := range results {
		pts[i] = r.Points
	}
	return pts
}

func missingCompulsory(in ClassifyInput) []models.Warning {
	present := make(map[uuid.UUID]bool, len(in.Results))
	for _, r := range in.Results {
		present[r.SubjectID] = true
	}
	var warnings []models.Warning
	for _, id := range in.CompulsorySubjects {
		if present[id] {
			continue
		}
		subjectID := id
		warnings = append(warnings, models.Warning{
			Code:      models.WarnMissingCompulsory,
			Message:   "compulsory subject has no result",
			SubjectID: &subjectID,
		})
	}
	return warnings
}
