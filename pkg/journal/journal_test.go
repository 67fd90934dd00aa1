package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-dms/pkg/session"
)

func setupTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "alerts.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	alerts := []session.Alert{
		{Stream: "cab-1", Kind: session.AlertDistracted, Active: true, Frame: 12, DistractedTime: 0.375, At: base},
		{Stream: "cab-2", Kind: session.AlertDrowsy, Active: true, Frame: 64, ClosedTime: 8, At: base.Add(time.Second)},
		{Stream: "cab-1", Kind: session.AlertDistracted, Active: false, Frame: 13, At: base.Add(2 * time.Second)},
	}
	for _, a := range alerts {
		id, err := j.Record(ctx, a)
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		if id == "" {
			t.Error("Record should return an ID")
		}
	}

	all, err := j.Recent(ctx, "", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Got %d entries, want 3", len(all))
	}
	if all[0].Frame != 13 || all[2].Frame != 12 {
		t.Errorf("Entries should be newest first: %+v", all)
	}

	cab1, err := j.Recent(ctx, "cab-1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(cab1) != 2 {
		t.Fatalf("Got %d cab-1 entries, want 2", len(cab1))
	}
	got := cab1[1]
	if got.Kind != session.AlertDistracted || !got.Active || got.DistractedTime != 0.375 {
		t.Errorf("Unexpected entry %+v", got)
	}
	if !got.At.Equal(base) {
		t.Errorf("At = %v, want %v", got.At, base)
	}

	limited, _ := j.Recent(ctx, "", 1)
	if len(limited) != 1 {
		t.Errorf("Limit not applied: %d entries", len(limited))
	}
}

func TestRecentEmpty(t *testing.T) {
	j := setupTestJournal(t)

	entries, err := j.Recent(context.Background(), "nobody", 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("Expected empty non-nil slice, got %v", entries)
	}
}

func TestHandleAlert(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	var sink session.AlertSink = j
	if err := sink.HandleAlert(ctx, session.Alert{Stream: "cab-1", Kind: session.AlertCalibrationReset, Active: true}); err != nil {
		t.Fatalf("HandleAlert: %v", err)
	}

	n, err := j.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestReopenKeepsAlerts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.db")
	ctx := context.Background()

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	j.Record(ctx, session.Alert{Stream: "cab-1", Kind: session.AlertDrowsy, Active: true})
	j.Close()

	j, err = Open(path)
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	defer j.Close()

	if n, _ := j.Count(ctx); n != 1 {
		t.Errorf("Count after reopen = %d, want 1", n)
	}
}

func TestClosed(t *testing.T) {
	j := setupTestJournal(t)
	j.Close()

	if _, err := j.Record(context.Background(), session.Alert{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, err := j.Recent(context.Background(), "", 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}
