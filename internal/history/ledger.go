// Package history owns the marks ledger. Every change to a Result goes
// through a Ledger method, which writes the result and its HistoryEntry in
// the same transaction.
package history

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/school-system/results-engine/internal/models"
	"github.com/school-system/results-engine/internal/store"
)

var (
	ErrNotRestorable = errors.New("history entry has no state to restore")
	// ErrSuperseded is returned when a deleted result cannot be recreated
	// because another result now holds its natural key.
	ErrSuperseded = errors.New("result key is held by a newer result")
)

type Ledger struct {
	now func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

func (l *Ledger) entry(model models.ResultModel, resultID uuid.UUID, key models.ResultKey, version int, change models.ChangeType, prev, next *models.ResultSnapshot, user uuid.UUID, reason string) *models.HistoryEntry {
	return &models.HistoryEntry{
		ResultID:       resultID,
		ResultModel:    model,
		ResultVersion:  version,
		ChangeType:     change,
		PreviousValues: models.WrapSnapshot(prev),
		NewValues:      models.WrapSnapshot(next),
		StudentID:      key.StudentID,
		SubjectID:      key.SubjectID,
		ExamID:         key.ExamID,
		UserID:         user,
		Reason:         reason,
		Timestamp:      l.now(),
	}
}

// Create inserts r at version 1 and appends its CREATE entry. r.ID may be
// preset; otherwise one is assigned.
func (l *Ledger) Create(tx store.Tx, model models.ResultModel, r *models.Result, user uuid.UUID) (*models.HistoryEntry, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.Version = 1
	now := l.now()
	r.CreatedAt, r.UpdatedAt = now, now
	if err := tx.InsertResult(model, r); err != nil {
		return nil, fmt.Errorf("insert result: %w", err)
	}

	snap := r.Snapshot()
	h := l.entry(model, r.ID, r.Key(), r.Version, models.ChangeCreate, nil, &snap, user, "")
	if err := tx.AppendHistory(h); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}
	return h, nil
}

// Update moves before to the values in after at version+1. The natural key
// of before is kept whatever after says.
func (l *Ledger) Update(tx store.Tx, model models.ResultModel, before *models.Result, after models.ResultSnapshot, user uuid.UUID, reason string) (*models.Result, *models.HistoryEntry, error) {
	return l.update(tx, model, before, after, user, reason, nil)
}

func (l *Ledger) update(tx store.Tx, model models.ResultModel, before *models.Result, after models.ResultSnapshot, user uuid.UUID, reason string, revertedFrom *uuid.UUID) (*models.Result, *models.HistoryEntry, error) {
	prev := before.Snapshot()
	next := *before
	after.StudentID, after.SubjectID, after.ExamID = before.StudentID, before.SubjectID, before.ExamID
	next.Apply(after)
	next.Version = before.Version + 1
	next.UpdatedAt = l.now()

	if err := tx.UpdateResult(model, &next, before.Version); err != nil {
		return nil, nil, fmt.Errorf("update result: %w", err)
	}
	snap := next.Snapshot()
	h := l.entry(model, next.ID, next.Key(), next.Version, models.ChangeUpdate, &prev, &snap, user, reason)
	h.RevertedFromID = revertedFrom
	if err := tx.AppendHistory(h); err != nil {
		return nil, nil, fmt.Errorf("append history: %w", err)
	}
	return &next, h, nil
}

// Delete removes current and appends a DELETE entry carrying its last state.
func (l *Ledger) Delete(tx store.Tx, model models.ResultModel, current *models.Result, user uuid.UUID, reason string) (*models.HistoryEntry, error) {
	if err := tx.DeleteResult(model, current.ID, current.Version); err != nil {
		return nil, fmt.Errorf("delete result: %w", err)
	}
	prev := current.Snapshot()
	h := l.entry(model, current.ID, current.Key(), current.Version+1, models.ChangeDelete, &prev, nil, user, reason)
	if err := tx.AppendHistory(h); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}
	return h, nil
}

// Target returns the state a revert to entry would restore.
func Target(entry *models.HistoryEntry) (models.ResultSnapshot, error) {
	if entry.ChangeType == models.ChangeDelete {
		return models.ResultSnapshot{}, fmt.Errorf("%w: entry %s is a DELETE", ErrNotRestorable, entry.ID)
	}
	s := entry.New()
	if s == nil {
		return models.ResultSnapshot{}, fmt.Errorf("%w: entry %s has no new values", ErrNotRestorable, entry.ID)
	}
	return *s, nil
}

// Revert restores restore onto the result entry belongs to. A live result
// gets an UPDATE; a deleted one is recreated under its old id with a CREATE
// whose version continues the ledger. The appended entry references entry.
func (l *Ledger) Revert(tx store.Tx, entry *models.HistoryEntry, restore models.ResultSnapshot, user uuid.UUID, reason string) (*models.Result, *models.HistoryEntry, error) {
	if _, err := Target(entry); err != nil {
		return nil, nil, err
	}
	model := entry.ResultModel
	restore.StudentID, restore.SubjectID, restore.ExamID = entry.StudentID, entry.SubjectID, entry.ExamID
	revertedFrom := entry.ID

	current, err := tx.ResultByID(model, entry.ResultID)
	switch {
	case err == nil:
		return l.update(tx, model, current, restore, user, reason, &revertedFrom)
	case !errors.Is(err, store.ErrNotFound):
		return nil, nil, fmt.Errorf("load result: %w", err)
	}

	if holder, err := tx.ResultByKey(model, restore.Key()); err == nil {
		return nil, nil, fmt.Errorf("%w: result %s", ErrSuperseded, holder.ID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("load result by key: %w", err)
	}

	latest, err := tx.LatestHistory(model, entry.ResultID)
	if err != nil {
		return nil, nil, fmt.Errorf("load latest history: %w", err)
	}

	r := &models.Result{}
	r.ID = entry.ResultID
	r.Apply(restore)
	r.Version = latest.ResultVersion + 1
	now := l.now()
	r.CreatedAt, r.UpdatedAt = now, now
	if err := tx.InsertResult(model, r); err != nil {
		return nil, nil, fmt.Errorf("recreate result: %w", err)
	}

	snap := r.Snapshot()
	h := l.entry(model, r.ID, r.Key(), r.Version, models.ChangeCreate, nil, &snap, user, reason)
	h.RevertedFromID = &revertedFrom
	if err := tx.AppendHistory(h); err != nil {
		return nil, nil, fmt.Errorf("append history: %w", err)
	}
	return r, h, nil
}
