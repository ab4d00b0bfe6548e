package history

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/school-system/results-engine/internal/models"
	"github.com/school-system/results-engine/internal/store"
)

var ErrBrokenChain = errors.New("history chain is inconsistent")

// Projection is the state a result's ledger implies. State is nil when the
// last entry is a DELETE.
type Projection struct {
	ResultID uuid.UUID
	State    *models.ResultSnapshot
	Version  int
}

// Replay folds the entries of one result, in version order, into its
// projected state. Each entry's previous values must match the state the
// entries before it produced.
func Replay(entries []models.HistoryEntry) (Projection, error) {
	if len(entries) == 0 {
		return Projection{}, fmt.Errorf("%w: no entries", ErrBrokenChain)
	}
	sorted := append([]models.HistoryEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ResultVersion < sorted[j].ResultVersion })

	p := Projection{ResultID: sorted[0].ResultID}
	for i := range sorted {
		h := &sorted[i]
		if h.ResultID != p.ResultID {
			return p, fmt.Errorf("%w: entry %s belongs to result %s", ErrBrokenChain, h.ID, h.ResultID)
		}
		if h.ResultVersion <= p.Version {
			return p, fmt.Errorf("%w: version %d repeats at entry %s", ErrBrokenChain, h.ResultVersion, h.ID)
		}

		switch h.ChangeType {
		case models.ChangeCreate:
			if p.State != nil {
				return p, fmt.Errorf("%w: CREATE at version %d over a live result", ErrBrokenChain, h.ResultVersion)
			}
		case models.ChangeUpdate, models.ChangeDelete:
			prev := h.Previous()
			if p.State == nil || prev == nil || *prev != *p.State {
				return p, fmt.Errorf("%w: %s at version %d does not follow version %d", ErrBrokenChain, h.ChangeType, h.ResultVersion, p.Version)
			}
		default:
			return p, fmt.Errorf("%w: unknown change type %q", ErrBrokenChain, h.ChangeType)
		}

		p.State = h.New()
		p.Version = h.ResultVersion
	}
	return p, nil
}

const (
	DriftMissingHistory = "missing_history"
	DriftBrokenChain    = "broken_chain"
	DriftDeletedInLog   = "deleted_in_ledger"
	DriftVersion        = "version_mismatch"
	DriftValues         = "value_mismatch"
	DriftOrphan         = "orphan_history"
)

type Drift struct {
	ResultID uuid.UUID `json:"result_id"`
	Kind     string    `json:"kind"`
	Detail   string    `json:"detail"`
}

type Report struct {
	Model   models.ResultModel `json:"model"`
	Results int                `json:"results"`
	Entries int                `json:"entries"`
	Drift   []Drift            `json:"drift"`
}

func (r *Report) OK() bool {
	return len(r.Drift) == 0
}

// Verify compares every live result of model with its ledger projection.
func Verify(ctx context.Context, s store.Store, model models.ResultModel) (*Report, error) {
	results, err := s.AllResults(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	entries, err := s.History(ctx, store.HistoryFilter{Model: model})
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	chains := make(map[uuid.UUID][]models.HistoryEntry)
	for _, h := range entries {
		chains[h.ResultID] = append(chains[h.ResultID], h)
	}

	report := &Report{Model: model, Results: len(results), Entries: len(entries)}
	live := make(map[uuid.UUID]bool, len(results))
	for i := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r := &results[i]
		live[r.ID] = true

		chain, ok := chains[r.ID]
		if !ok {
			report.add(r.ID, DriftMissingHistory, "live result has no ledger entries")
			continue
		}
		p, err := Replay(chain)
		switch {
		case err != nil:
			report.add(r.ID, DriftBrokenChain, err.Error())
		case p.State == nil:
			report.add(r.ID, DriftDeletedInLog, fmt.Sprintf("ledger ends with DELETE at version %d", p.Version))
		case p.Version != r.Version:
			report.add(r.ID, DriftVersion, fmt.Sprintf("ledger at %d, result at %d", p.Version, r.Version))
		case *p.State != r.Snapshot():
			report.add(r.ID, DriftValues, fmt.Sprintf("ledger has %.2f (%s), result has %.2f (%s)", p.State.MarksObtained, p.State.Grade, r.MarksObtained, r.Grade))
		}
	}

	ids := make([]uuid.UUID, 0, len(chains))
	for id := range chains {
		if !live[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		p, err := Replay(chains[id])
		if err != nil {
			report.add(id, DriftBrokenChain, err.Error())
			continue
		}
		if p.State != nil {
			report.add(id, DriftOrphan, fmt.Sprintf("ledger shows a live result at version %d", p.Version))
		}
	}
	return report, nil
}

func (r *Report) add(id uuid.UUID, kind, detail string) {
	r.Drift = append(r.Drift, Drift{ResultID: id, Kind: kind, Detail: detail})
}
