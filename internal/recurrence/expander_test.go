package recurrence_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/NgigiN/budget/internal/recurrence"
	"github.com/NgigiN/budget/internal/storage"
)

var now = time.Date(2023, time.April, 15, 12, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func openDB(t *testing.T) *storage.Database {
	t.Helper()
	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "budget.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newExpander(db *storage.Database) *recurrence.Expander {
	return recurrence.NewExpander(db.Transactions, recurrence.WithClock(func() time.Time { return now }))
}

func rent(date time.Time, monthly bool) storage.Transaction {
	return storage.Transaction{
		Description: "Rent",
		Type:        storage.TypeExpense,
		Value:       decimal.RequireFromString("850.00"),
		Date:        date,
		IsMonthly:   monthly,
	}
}

func assertOccurrences(t *testing.T, got []storage.Transaction, dates []time.Time) {
	t.Helper()
	if len(got) != len(dates) {
		t.Fatalf("got %d records, want %d", len(got), len(dates))
	}
	for i, tx := range got {
		if !tx.Date.Equal(dates[i]) {
			t.Errorf("record %d dated %s, want %s", i, tx.Date, dates[i])
		}
		last := i == len(got)-1
		if tx.IsMonthly != last {
			t.Errorf("record %d IsMonthly = %v, want %v", i, tx.IsMonthly, last)
		}
		if tx.ID == 0 {
			t.Errorf("record %d has no id", i)
		}
	}
}

func TestCreateOneOff(t *testing.T) {
	db := openDB(t)
	e := newExpander(db)

	got, err := e.Create(context.Background(), rent(day(2023, time.January, 15), false))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	if got[0].IsMonthly || !got[0].Date.Equal(day(2023, time.January, 15)) {
		t.Errorf("unexpected record %+v", got[0])
	}
	if got[0].SeriesID != "" {
		t.Errorf("one-off transaction should not start a series, got %q", got[0].SeriesID)
	}
}

func TestCreateMonthlyWithinMonth(t *testing.T) {
	db := openDB(t)
	e := newExpander(db)

	got, err := e.Create(context.Background(), rent(day(2023, time.April, 1), true))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	assertOccurrences(t, got, []time.Time{day(2023, time.April, 1)})
}

func TestCreateMonthlyOneMonthOwed(t *testing.T) {
	db := openDB(t)
	e := newExpander(db)

	got, err := e.Create(context.Background(), rent(day(2023, time.March, 15), true))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	assertOccurrences(t, got, []time.Time{day(2023, time.March, 15), day(2023, time.April, 15)})
}

func TestCreateMonthlyManyMonthsOwed(t *testing.T) {
	db := openDB(t)
	e := newExpander(db)

	draft := rent(day(2023, time.January, 15), true)
	got, err := e.Create(context.Background(), draft)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	assertOccurrences(t, got, []time.Time{
		day(2023, time.January, 15),
		day(2023, time.February, 15),
		day(2023, time.March, 15),
		day(2023, time.April, 15),
	})

	series := got[0].SeriesID
	if series == "" {
		t.Fatal("expected a series id")
	}
	for _, tx := range got {
		if tx.SeriesID != series {
			t.Errorf("record %d in series %q, want %q", tx.ID, tx.SeriesID, series)
		}
		if !tx.Value.Equal(draft.Value) || tx.Description != draft.Description {
			t.Errorf("record %d does not copy the draft: %+v", tx.ID, tx)
		}
	}

	if !draft.IsMonthly || draft.ID != 0 || draft.SeriesID != "" {
		t.Errorf("draft was mutated: %+v", draft)
	}

	monthly, err := db.Transactions.FindMonthly(context.Background())
	if err != nil {
		t.Fatalf("FindMonthly: %v", err)
	}
	if len(monthly) != 1 || !monthly[0].Date.Equal(day(2023, time.April, 15)) {
		t.Errorf("expected the April occurrence to be the only template, got %+v", monthly)
	}
}

func TestCreateHydratesRelations(t *testing.T) {
	db := openDB(t)
	e := newExpander(db)
	ctx := context.Background()

	checking := &storage.Account{Name: "Checking"}
	savings := &storage.Account{Name: "Savings"}
	home := &storage.Category{Name: "Home"}
	for _, err := range []error{
		db.Accounts.Create(ctx, checking),
		db.Accounts.Create(ctx, savings),
		db.Categories.Create(ctx, home),
	} {
		if err != nil {
			t.Fatal(err)
		}
	}

	draft := storage.Transaction{
		Description:          "Savings plan",
		Type:                 storage.TypeTransfer,
		Value:                decimal.NewFromInt(100),
		Date:                 day(2023, time.February, 1),
		SourceAccountID:      storage.Ref(checking.ID),
		DestinationAccountID: storage.Ref(savings.ID),
		CategoryID:           storage.Ref(home.ID),
		IsMonthly:            true,
	}
	got, err := e.Create(ctx, draft)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	for _, tx := range got {
		if tx.SourceAccount == nil || tx.SourceAccount.Name != "Checking" {
			t.Errorf("record %d: source account not loaded: %+v", tx.ID, tx.SourceAccount)
		}
		if tx.DestinationAccount == nil || tx.DestinationAccount.Name != "Savings" {
			t.Errorf("record %d: destination account not loaded: %+v", tx.ID, tx.DestinationAccount)
		}
		if tx.Category == nil || tx.Category.Name != "Home" {
			t.Errorf("record %d: category not loaded: %+v", tx.ID, tx.Category)
		}
	}
}

func TestCreateRejectsInvalidDraft(t *testing.T) {
	db := openDB(t)
	e := newExpander(db)

	draft := rent(day(2023, time.January, 15), true)
	draft.Type = "gift"
	if _, err := e.Create(context.Background(), draft); !errors.Is(err, storage.ErrInvalidTransaction) {
		t.Errorf("expected ErrInvalidTransaction, got %v", err)
	}
}

func TestUpdatePlain(t *testing.T) {
	db := openDB(t)
	e := newExpander(db)
	ctx := context.Background()

	created, err := e.Create(ctx, rent(day(2023, time.April, 1), false))
	if err != nil {
		t.Fatal(err)
	}
	id := created[0].ID

	draft := rent(day(2023, time.April, 2), false)
	draft.Description = "Rent (adjusted)"
	got, err := e.Update(ctx, draft, id)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(got) != 1 || got[0].ID != id {
		t.Fatalf("expected the single updated record, got %+v", got)
	}
	if got[0].Description != "Rent (adjusted)" || !got[0].Date.Equal(day(2023, time.April, 2)) {
		t.Errorf("update not applied: %+v", got[0])
	}
}

func TestUpdateMissing(t *testing.T) {
	db := openDB(t)
	e := newExpander(db)

	_, err := e.Update(context.Background(), rent(day(2023, time.April, 1), false), 42)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateExpandsMonthly(t *testing.T) {
	db := openDB(t)
	e := newExpander(db)
	ctx := context.Background()

	created, err := e.Create(ctx, rent(day(2023, time.February, 15), false))
	if err != nil {
		t.Fatal(err)
	}
	id := created[0].ID

	got, err := e.Update(ctx, rent(day(2023, time.February, 15), true), id)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	assertOccurrences(t, got, []time.Time{
		day(2023, time.February, 15),
		day(2023, time.March, 15),
		day(2023, time.April, 15),
	})
	if got[0].ID != id {
		t.Errorf("first occurrence should be the updated row %d, got %d", id, got[0].ID)
	}

	stored, err := db.Transactions.FindOneFull(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if stored.IsMonthly {
		t.Errorf("updated row %d kept its monthly flag", id)
	}
}

func TestUpdateOneMonthOwed(t *testing.T) {
	db := openDB(t)
	e := newExpander(db)
	ctx := context.Background()

	created, err := e.Create(ctx, rent(day(2023, time.March, 15), false))
	if err != nil {
		t.Fatal(err)
	}

	got, err := e.Update(ctx, rent(day(2023, time.March, 15), true), created[0].ID)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	assertOccurrences(t, got, []time.Time{day(2023, time.March, 15), day(2023, time.April, 15)})
}

var errBoom = errors.New("boom")

// failingStore counts writes and fails the insert numbered failAt.
type failingStore struct {
	mu      sync.Mutex
	inserts int
	updates int
	failAt  int
	nextID  uint
}

func (s *failingStore) Insert(_ context.Context, tx *storage.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.inserts == s.failAt {
		return errBoom
	}
	s.nextID++
	tx.ID = s.nextID
	return nil
}

func (s *failingStore) UpdateByID(context.Context, uint, storage.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	return nil
}

func (s *failingStore) FindByID(_ context.Context, id uint) (*storage.Transaction, error) {
	tx := rent(day(2023, time.February, 15), false)
	tx.ID = id
	return &tx, nil
}

func (s *failingStore) FindByIDs(context.Context, []uint) ([]storage.Transaction, error) {
	return nil, errors.New("should not be called after a failed write")
}

func TestCreateFanOutFailure(t *testing.T) {
	store := &failingStore{failAt: 2}
	e := recurrence.NewExpander(store, recurrence.WithClock(func() time.Time { return now }))

	_, err := e.Create(context.Background(), rent(day(2023, time.January, 15), true))
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected the insert error, got %v", err)
	}
	// Siblings are not cancelled: every write was attempted.
	if store.inserts != 4 {
		t.Errorf("expected 4 attempted inserts, got %d", store.inserts)
	}
}

func TestUpdateFanOutFailure(t *testing.T) {
	store := &failingStore{failAt: 1}
	e := recurrence.NewExpander(store, recurrence.WithClock(func() time.Time { return now }))

	_, err := e.Update(context.Background(), rent(day(2023, time.February, 15), true), 7)
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected the insert error, got %v", err)
	}
	if store.updates != 1 || store.inserts != 2 {
		t.Errorf("expected 1 update and 2 inserts, got %d and %d", store.updates, store.inserts)
	}
}

func TestUpdateKeepsSeriesAndReference(t *testing.T) {
	db := openDB(t)
	e := newExpander(db)
	ctx := context.Background()

	ref := "TIH5CRR635"
	tpl := rent(day(2023, time.April, 1), true)
	tpl.SeriesID = "rent-series"
	tpl.Reference = &ref
	if err := db.Transactions.Insert(ctx, &tpl); err != nil {
		t.Fatal(err)
	}

	// An edit draft carries neither a series nor a reference.
	draft := rent(day(2023, time.April, 2), true)
	draft.Description = "Rent (adjusted)"
	got, err := e.Update(ctx, draft, tpl.ID)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	if got[0].SeriesID != "rent-series" {
		t.Errorf("series %q, want rent-series", got[0].SeriesID)
	}
	if got[0].Reference == nil || *got[0].Reference != ref {
		t.Errorf("reference %v, want %s", got[0].Reference, ref)
	}
	series, err := db.Transactions.FindSeries(ctx, "rent-series")
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 1 || series[0].ID != tpl.ID {
		t.Errorf("expected row %d to stay in its series, got %+v", tpl.ID, series)
	}
}

func TestUpdateExpansionJoinsExistingSeries(t *testing.T) {
	db := openDB(t)
	e := newExpander(db)
	ctx := context.Background()

	tpl := rent(day(2023, time.February, 15), true)
	tpl.SeriesID = "rent-series"
	if err := db.Transactions.Insert(ctx, &tpl); err != nil {
		t.Fatal(err)
	}
	got, err := e.Update(ctx, rent(day(2023, time.February, 15), true), tpl.ID)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	for _, tx := range got {
		if tx.SeriesID != "rent-series" {
			t.Errorf("record %d in series %q, want rent-series", tx.ID, tx.SeriesID)
		}
	}
}

func TestUpdateMonthlyWithoutOwedMonthsStaysMonthly(t *testing.T) {
	db := openDB(t)
	e := newExpander(db)
	ctx := context.Background()

	created, err := e.Create(ctx, rent(day(2023, time.April, 1), false))
	if err != nil {
		t.Fatal(err)
	}
	got, err := e.Update(ctx, rent(day(2023, time.April, 10), true), created[0].ID)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(got) != 1 || !got[0].IsMonthly {
		t.Errorf("expected the row to become the monthly template, got %+v", got)
	}
}
