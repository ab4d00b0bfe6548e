package ranking

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
)

func entry(adm string, avg float64, points int) Entry {
	return Entry{StudentID: uuid.New(), AdmissionNo: adm, AverageMarks: avg, TotalPoints: points, HasResults: true}
}

func positions(ranked []Ranked) map[string]int {
	out := make(map[string]int, len(ranked))
	for _, r := range ranked {
		out[r.AdmissionNo] = r.Position
	}
	return out
}

func TestRank_NoTies(t *testing.T) {
	entries := []Entry{
		entry("S03", 55.5, 25),
		entry("S01", 81.0, 9),
		entry("S04", 40.25, 30),
		entry("S02", 72.0, 14),
	}

	ranked := Rank(entries, ByAverage)
	expected := []string{"S01", "S02", "S03", "S04"}
	for i, r := range ranked {
		if r.AdmissionNo != expected[i] || r.Position != i+1 {
			t.Errorf("Position %d: expected %s, got %s at %d", i+1, expected[i], r.AdmissionNo, r.Position)
		}
		if r.TotalStudents != 4 {
			t.Errorf("Expected TotalStudents 4, got %d", r.TotalStudents)
		}
	}
}

func TestRank_CompetitionTies(t *testing.T) {
	entries := []Entry{
		entry("S04", 60, 20),
		entry("S03", 70, 15),
		entry("S02", 70, 15),
		entry("S01", 80, 10),
	}

	ranked := Rank(entries, ByAverage)
	got := []int{ranked[0].Position, ranked[1].Position, ranked[2].Position, ranked[3].Position}
	want := []int{1, 2, 2, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected positions %v, got %v", want, got)
		}
	}
	if ranked[1].AdmissionNo != "S02" || ranked[2].AdmissionNo != "S03" {
		t.Errorf("Expected tied entries ordered by admission number, got %s then %s", ranked[1].AdmissionNo, ranked[2].AdmissionNo)
	}
}

func TestRank_PointsBreakAverageTie(t *testing.T) {
	ranked := Rank([]Entry{entry("S01", 70, 16), entry("S02", 70, 15)}, ByAverage)
	p := positions(ranked)
	if p["S02"] != 1 || p["S01"] != 2 {
		t.Errorf("Expected fewer points to win the tie, got %v", p)
	}
}

func TestRank_ByPoints(t *testing.T) {
	ranked := Rank([]Entry{
		entry("S01", 90, 12),
		entry("S02", 60, 8),
		entry("S03", 65, 8),
	}, ByPoints)
	p := positions(ranked)
	if p["S03"] != 1 || p["S02"] != 2 || p["S01"] != 3 {
		t.Errorf("Expected points ascending then average, got %v", p)
	}
}

func TestRank_NoResultsLast(t *testing.T) {
	empty := Entry{StudentID: uuid.New(), AdmissionNo: "S00"}
	ranked := Rank([]Entry{empty, entry("S09", 10, 35)}, ByPoints)
	if ranked[0].AdmissionNo != "S09" || ranked[1].Position != 2 {
		t.Errorf("Expected student without results last, got %+v", ranked)
	}
}

func TestRank_RoundingTies(t *testing.T) {
	ranked := Rank([]Entry{entry("S01", 66.666666, 20), entry("S02", 66.6666661, 20)}, ByAverage)
	if ranked[0].Position != ranked[1].Position {
		t.Errorf("Expected averages equal at 2dp to tie, got %d and %d", ranked[0].Position, ranked[1].Position)
	}
}

func TestRank_IndependentOfInputOrder(t *testing.T) {
	base := []Entry{
		entry("S01", 80, 10), entry("S02", 70, 15), entry("S03", 70, 15),
		entry("S04", 65, 18), entry("S05", 65, 18), entry("S06", 65, 18),
		entry("S07", 50, 25), entry("S08", 0, 0),
	}
	want := Rank(base, ByAverage)

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 25; round++ {
		shuffled := append([]Entry(nil), base...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got := Rank(shuffled, ByAverage)
		for i := range want {
			if got[i].StudentID != want[i].StudentID || got[i].Position != want[i].Position {
				t.Fatalf("Round %d: ranking depends on input order at %d", round, i)
			}
		}
	}
}
