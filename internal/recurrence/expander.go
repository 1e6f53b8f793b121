package recurrence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/NgigiN/budget/internal/storage"
)

// Store is the part of the transaction proxy the expander writes through.
type Store interface {
	Insert(ctx context.Context, tx *storage.Transaction) error
	UpdateByID(ctx context.Context, id uint, tx storage.Transaction) error
	FindByIDs(ctx context.Context, ids []uint) ([]storage.Transaction, error)
	FindByID(ctx context.Context, id uint) (*storage.Transaction, error)
}

// Expander creates and updates transactions, materializing the months owed
// by monthly ones.
type Expander struct {
	store Store
	now   func() time.Time
}

type Option func(*Expander)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Expander) { e.now = now }
}

func NewExpander(store Store, opts ...Option) *Expander {
	e := &Expander{store: store, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Owed returns the occurrence dates tx is owed, nil when tx is not monthly.
func (e *Expander) Owed(tx storage.Transaction) []time.Time {
	if !tx.IsMonthly {
		return nil
	}
	return RemainingMonths(tx.Date, e.now())
}

// Create stores draft. A monthly draft with owed months is stored as a
// plain row at its own date, followed by one row per owed month; only the
// last of those keeps the monthly flag. The stored rows are returned
// hydrated, ordered by date.
func (e *Expander) Create(ctx context.Context, draft storage.Transaction) ([]storage.Transaction, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	draft = startSeries(draft.Draft())

	dates := e.Owed(draft)
	if len(dates) == 0 {
		if err := e.store.Insert(ctx, &draft); err != nil {
			return nil, err
		}
		return e.store.FindByIDs(ctx, []uint{draft.ID})
	}

	plan := occurrences(draft, dates)
	ids := make([]uint, len(plan))
	var g errgroup.Group
	for i := range plan {
		i := i
		g.Go(func() error {
			if err := e.store.Insert(ctx, &plan[i]); err != nil {
				return err
			}
			ids[i] = plan[i].ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to expand monthly transaction: %w", err)
	}
	return e.store.FindByIDs(ctx, ids)
}

// Update rewrites row id with draft. Owed months are expanded as in Create,
// except that row id takes the place of the first, non-monthly, occurrence.
// The series and reference of row id are kept unless draft sets its own.
func (e *Expander) Update(ctx context.Context, draft storage.Transaction, id uint) ([]storage.Transaction, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	stored, err := e.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	draft = draft.Draft()
	if draft.SeriesID == "" {
		draft.SeriesID = stored.SeriesID
	}
	if draft.Reference == nil && stored.Reference != nil {
		ref := *stored.Reference
		draft.Reference = &ref
	}
	draft = startSeries(draft)

	dates := e.Owed(draft)
	if len(dates) == 0 {
		if err := e.store.UpdateByID(ctx, id, draft); err != nil {
			return nil, err
		}
		return e.store.FindByIDs(ctx, []uint{id})
	}

	plan := occurrences(draft, dates)
	ids := make([]uint, len(plan))
	ids[0] = id
	var g errgroup.Group
	g.Go(func() error {
		return e.store.UpdateByID(ctx, id, plan[0])
	})
	for i := 1; i < len(plan); i++ {
		i := i
		g.Go(func() error {
			if err := e.store.Insert(ctx, &plan[i]); err != nil {
				return err
			}
			ids[i] = plan[i].ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to expand monthly transaction %d: %w", id, err)
	}
	return e.store.FindByIDs(ctx, ids)
}

// occurrences lays out the rows of an expansion: draft at its own date
// with the flag cleared, then one copy per date, the last one monthly.
func occurrences(draft storage.Transaction, dates []time.Time) []storage.Transaction {
	first := draft.Draft()
	first.IsMonthly = false

	plan := make([]storage.Transaction, 0, len(dates)+1)
	plan = append(plan, first)
	for i, date := range dates {
		plan = append(plan, draft.Occurrence(date, i == len(dates)-1))
	}
	return plan
}

func startSeries(tx storage.Transaction) storage.Transaction {
	if tx.IsMonthly && tx.SeriesID == "" {
		tx.SeriesID = uuid.NewString()
	}
	return tx
}
