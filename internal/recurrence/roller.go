package recurrence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/NgigiN/budget/internal/storage"
)

// Templates lists the monthly templates waiting for their next occurrence.
type Templates interface {
	FindMonthly(ctx context.Context) ([]storage.Transaction, error)
}

// Roller brings every monthly template up to date.
type Roller struct {
	templates Templates
	expander  *Expander
}

func NewRoller(templates Templates, expander *Expander) *Roller {
	return &Roller{templates: templates, expander: expander}
}

// RollForward expands each template that is owed at least one month and
// returns how many occurrences were created. A failing template does not
// stop the others; their errors are joined.
func (r *Roller) RollForward(ctx context.Context) (int, error) {
	templates, err := r.templates.FindMonthly(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	var errs []error
	for _, tpl := range templates {
		if len(r.expander.Owed(tpl)) == 0 {
			continue
		}
		rows, err := r.expander.Update(ctx, tpl, tpl.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("template %d: %w", tpl.ID, err))
			continue
		}
		created += len(rows) - 1
	}
	return created, errors.Join(errs...)
}

// Run rolls forward once, then on every tick of interval until ctx is done.
func (r *Roller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := r.RollForward(ctx)
		if err != nil {
			log.Printf("rollover: %v", err)
		}
		if n > 0 {
			log.Printf("rollover: created %d monthly occurrences", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
