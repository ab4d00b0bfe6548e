package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/school-system/results-engine/internal/models"
)

func newResult() *models.Result {
	return &models.Result{
		StudentID:     uuid.New(),
		SubjectID:     uuid.New(),
		ExamID:        uuid.New(),
		MarksObtained: 64,
		Grade:         "C",
		Points:        3,
		Version:       1,
	}
}

func TestMemory_TxCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r := newResult()

	failed := errors.New("boom")
	err := m.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertResult(models.ResultModelOLevel, r); err != nil {
			return err
		}
		if _, err := tx.ResultByKey(models.ResultModelOLevel, r.Key()); err != nil {
			t.Fatalf("Expected staged insert to be visible inside the transaction, got %v", err)
		}
		return failed
	})
	if !errors.Is(err, failed) {
		t.Fatalf("Expected callback error, got %v", err)
	}
	if all, _ := m.AllResults(ctx, models.ResultModelOLevel); len(all) != 0 {
		t.Fatalf("Expected rollback to discard insert, got %d rows", len(all))
	}

	err = m.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertResult(models.ResultModelOLevel, r); err != nil {
			return err
		}
		return tx.AppendHistory(&models.HistoryEntry{ResultID: r.ID, ResultModel: models.ResultModelOLevel, ResultVersion: 1, ChangeType: models.ChangeCreate})
	})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if all, _ := m.AllResults(ctx, models.ResultModelOLevel); len(all) != 1 {
		t.Fatalf("Expected 1 committed row, got %d", len(all))
	}
	if all, _ := m.AllResults(ctx, models.ResultModelALevel); len(all) != 0 {
		t.Errorf("Expected A-Level collection untouched, got %d rows", len(all))
	}
	if h, _ := m.History(ctx, HistoryFilter{ResultID: &r.ID}); len(h) != 1 {
		t.Errorf("Expected 1 history entry, got %d", len(h))
	}
}

func TestMemory_NaturalKeyConflict(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r := newResult()

	if err := m.InTx(ctx, func(tx Tx) error { return tx.InsertResult(models.ResultModelOLevel, r) }); err != nil {
		t.Fatal(err)
	}
	dup := *r
	dup.ID = uuid.Nil
	err := m.InTx(ctx, func(tx Tx) error { return tx.InsertResult(models.ResultModelOLevel, &dup) })
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict for duplicate key, got %v", err)
	}

	// The same key in the other collection is a different result.
	other := *r
	other.ID = uuid.Nil
	if err := m.InTx(ctx, func(tx Tx) error { return tx.InsertResult(models.ResultModelALevel, &other) }); err != nil {
		t.Errorf("Expected separate collections, got %v", err)
	}
}

func TestMemory_VersionCheck(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r := newResult()
	if err := m.InTx(ctx, func(tx Tx) error { return tx.InsertResult(models.ResultModelOLevel, r) }); err != nil {
		t.Fatal(err)
	}

	stale := *r
	stale.Version = 3
	err := m.InTx(ctx, func(tx Tx) error { return tx.UpdateResult(models.ResultModelOLevel, &stale, 2) })
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict on stale update, got %v", err)
	}
	err = m.InTx(ctx, func(tx Tx) error { return tx.DeleteResult(models.ResultModelOLevel, r.ID, 5) })
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict on stale delete, got %v", err)
	}

	next := *r
	next.Version = 2
	next.MarksObtained = 80
	if err := m.InTx(ctx, func(tx Tx) error { return tx.UpdateResult(models.ResultModelOLevel, &next, 1) }); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if err := m.InTx(ctx, func(tx Tx) error { return tx.DeleteResult(models.ResultModelOLevel, r.ID, 2) }); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	err = m.InTx(ctx, func(tx Tx) error {
		_, err := tx.ResultByID(models.ResultModelOLevel, r.ID)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemory_LatestHistory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id := uuid.New()

	err := m.InTx(ctx, func(tx Tx) error {
		for v := 1; v <= 3; v++ {
			if err := tx.AppendHistory(&models.HistoryEntry{ResultID: id, ResultModel: models.ResultModelALevel, ResultVersion: v}); err != nil {
				return err
			}
		}
		latest, err := tx.LatestHistory(models.ResultModelALevel, id)
		if err != nil {
			return err
		}
		if latest.ResultVersion != 3 {
			t.Errorf("Expected latest staged version 3, got %d", latest.ResultVersion)
		}
		if _, err := tx.LatestHistory(models.ResultModelOLevel, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected no O-Level history, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := NewMemory().InTx(ctx, func(tx Tx) error { called = true; return nil })
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("Expected cancelled transaction not to run, got err=%v called=%v", err, called)
	}
}

func TestHistoryFilter_Matches(t *testing.T) {
	student := uuid.New()
	h := &models.HistoryEntry{ResultModel: models.ResultModelOLevel, StudentID: student, SubjectID: uuid.New()}

	if !(HistoryFilter{StudentID: &student}).Matches(h) {
		t.Error("Expected student filter to match")
	}
	if (HistoryFilter{Model: models.ResultModelALevel}).Matches(h) {
		t.Error("Expected model filter to exclude other collection")
	}
	other := uuid.New()
	if (HistoryFilter{SubjectID: &other}).Matches(h) {
		t.Error("Expected subject filter to exclude")
	}
	if !(HistoryFilter{}).Empty() {
		t.Error("Expected zero filter to be empty")
	}
}
