package recurrence_test

import (
	"context"
	"testing"
	"time"

	"github.com/NgigiN/budget/internal/recurrence"
)

func TestRollForward(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	// Templates written straight to storage, as left by earlier runs.
	stale := rent(day(2023, time.February, 15), true)
	stale.SeriesID = "rent-series"
	if err := db.Transactions.Insert(ctx, &stale); err != nil {
		t.Fatal(err)
	}
	current := rent(day(2023, time.April, 10), true)
	current.Description = "Gym"
	if err := db.Transactions.Insert(ctx, &current); err != nil {
		t.Fatal(err)
	}

	roller := recurrence.NewRoller(db.Transactions, newExpander(db))
	n, err := roller.RollForward(ctx)
	if err != nil {
		t.Fatalf("RollForward: %v", err)
	}
	if n != 2 {
		t.Errorf("created %d occurrences, want 2", n)
	}

	series, err := db.Transactions.FindSeries(ctx, "rent-series")
	if err != nil {
		t.Fatal(err)
	}
	assertOccurrences(t, series, []time.Time{
		day(2023, time.February, 15),
		day(2023, time.March, 15),
		day(2023, time.April, 15),
	})

	monthly, err := db.Transactions.FindMonthly(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(monthly) != 2 {
		t.Fatalf("expected 2 templates after rollover, got %d", len(monthly))
	}

	n, err = roller.RollForward(ctx)
	if err != nil {
		t.Fatalf("second RollForward: %v", err)
	}
	if n != 0 {
		t.Errorf("second rollover created %d occurrences, want 0", n)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	db := openDB(t)
	roller := recurrence.NewRoller(db.Transactions, newExpander(db))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		roller.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
