// Package ranking orders students within a class and exam.
package ranking

import (
	"math"
	"sort"

	"github.com/google/uuid"
)

type Convention string

const (
	// ByAverage ranks by average marks, highest first.
	ByAverage Convention = "average"
	// ByPoints ranks by total points, lowest first.
	ByPoints Convention = "points"
)

type Entry struct {
	StudentID    uuid.UUID
	AdmissionNo  string
	AverageMarks float64
	TotalPoints  int
	HasResults   bool
}

type Ranked struct {
	Entry
	Position      int
	TotalStudents int
}

// Rank assigns standard competition positions (1,2,2,4). Entries tied on
// average and points share a position; admission number only fixes their
// order in the output. Students without results always come last.
func Rank(entries []Entry, convention Convention) []Ranked {
	out := make([]Ranked, len(entries))
	for i, e := range entries {
		out[i] = Ranked{Entry: e, TotalStudents: len(entries)}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Entry, out[j].Entry
		if c := compare(a, b, convention); c != 0 {
			return c < 0
		}
		if a.AdmissionNo != b.AdmissionNo {
			return a.AdmissionNo < b.AdmissionNo
		}
		return a.StudentID.String() < b.StudentID.String()
	})

	for i := range out {
		if i > 0 && compare(out[i-1].Entry, out[i].Entry, convention) == 0 {
			out[i].Position = out[i-1].Position
			continue
		}
		out[i].Position = i + 1
	}
	return out
}

// compare returns <0 when a ranks above b, 0 when they tie.
func compare(a, b Entry, convention Convention) int {
	if a.HasResults != b.HasResults {
		if a.HasResults {
			return -1
		}
		return 1
	}

	avgA, avgB := round2(a.AverageMarks), round2(b.AverageMarks)
	byAverage := func() int {
		switch {
		case avgA > avgB:
			return -1
		case avgA < avgB:
			return 1
		}
		return 0
	}
	byPoints := func() int { return a.TotalPoints - b.TotalPoints }

	if convention == ByPoints {
		if c := byPoints(); c != 0 {
			return c
		}
		return byAverage()
	}
	if c := byAverage(); c != 0 {
		return c
	}
	return byPoints()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
