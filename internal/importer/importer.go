// Package importer stores pasted M-PESA confirmations as transactions,
// skipping the ones already recorded.
package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/NgigiN/budget/internal/mpesa"
	"github.com/NgigiN/budget/internal/storage"
)

// ErrDuplicate marks a confirmation that is already stored.
var ErrDuplicate = errors.New("already imported")

// Lookup finds transactions already stored.
type Lookup interface {
	FindByReference(ctx context.Context, ref string) (*storage.Transaction, error)
	FindDuplicates(ctx context.Context, probe storage.Transaction) ([]storage.Transaction, error)
}

// Creator stores a draft, expanding it when monthly.
type Creator interface {
	Create(ctx context.Context, draft storage.Transaction) ([]storage.Transaction, error)
}

// Finder resolves a named record, creating it when missing.
type Finder[T any] interface {
	FirstOrCreate(ctx context.Context, where T) (*T, error)
}

type Importer struct {
	lookup     Lookup
	creator    Creator
	accounts   Finder[storage.Account]
	categories Finder[storage.Category]
	wallet     string
}

// New returns an importer booking every confirmation on the account named
// wallet, created on first use.
func New(lookup Lookup, creator Creator, accounts Finder[storage.Account], categories Finder[storage.Category], wallet string) *Importer {
	return &Importer{
		lookup:     lookup,
		creator:    creator,
		accounts:   accounts,
		categories: categories,
		wallet:     wallet,
	}
}

// Failure records why one entry of a batch was not imported.
type Failure struct {
	Index int
	Err   error
}

func (f Failure) Error() string { return fmt.Sprintf("transaction %d: %v", f.Index+1, f.Err) }

type Result struct {
	Imported []storage.Transaction
	Skipped  []string
	Failed   []Failure
}

// Import stores every confirmation found in content. Entries that fail
// are reported in the result and do not stop the batch.
func (im *Importer) Import(ctx context.Context, content string) Result {
	var res Result
	for i, entry := range mpesa.Split(content) {
		rows, err := im.ImportEntry(ctx, entry)
		var dup duplicateError
		switch {
		case errors.As(err, &dup):
			res.Skipped = append(res.Skipped, dup.code)
		case err != nil:
			res.Failed = append(res.Failed, Failure{Index: i, Err: err})
		default:
			res.Imported = append(res.Imported, rows...)
		}
	}
	return res
}

type duplicateError struct{ code string }

func (e duplicateError) Error() string { return fmt.Sprintf("%s: %v", e.code, ErrDuplicate) }
func (e duplicateError) Unwrap() error { return ErrDuplicate }

// ImportEntry stores one confirmation and, when it carries a fee, the fee
// as a second expense.
func (im *Importer) ImportEntry(ctx context.Context, entry mpesa.Entry) ([]storage.Transaction, error) {
	msg, err := mpesa.Parse(entry.Message)
	if err != nil {
		return nil, err
	}
	wallet, err := im.accounts.FirstOrCreate(ctx, storage.Account{Name: im.wallet})
	if err != nil {
		return nil, err
	}
	category, err := im.categories.FirstOrCreate(ctx, storage.Category{Name: entry.Category})
	if err != nil {
		return nil, err
	}

	draft := storage.Transaction{
		Description: describe(msg.Counterparty, entry.Reason),
		Value:       msg.Amount,
		Date:        msg.At,
		CategoryID:  storage.Ref(category.ID),
		Reference:   &msg.Code,
	}
	if msg.Direction.Outgoing() {
		draft.Type = storage.TypeExpense
		draft.SourceAccountID = storage.Ref(wallet.ID)
	} else {
		draft.Type = storage.TypeIncome
		draft.DestinationAccountID = storage.Ref(wallet.ID)
	}

	if err := im.ensureNew(ctx, draft); err != nil {
		return nil, err
	}
	rows, err := im.creator.Create(ctx, draft)
	if err != nil {
		return nil, err
	}

	if msg.Cost.IsPositive() {
		fees, err := im.categories.FirstOrCreate(ctx, storage.Category{Name: "fees"})
		if err != nil {
			return rows, err
		}
		ref := msg.Code + "/cost"
		fee, err := im.creator.Create(ctx, storage.Transaction{
			Description:     "Transaction cost " + msg.Code,
			Type:            storage.TypeExpense,
			Value:           msg.Cost,
			Date:            msg.At,
			SourceAccountID: storage.Ref(wallet.ID),
			CategoryID:      storage.Ref(fees.ID),
			Reference:       &ref,
		})
		if err != nil {
			return rows, err
		}
		rows = append(rows, fee...)
	}
	return rows, nil
}

// ensureNew fails with ErrDuplicate when draft's reference is known, or
// when a matching transaction exists within a day of it.
func (im *Importer) ensureNew(ctx context.Context, draft storage.Transaction) error {
	code := *draft.Reference
	_, err := im.lookup.FindByReference(ctx, code)
	switch {
	case err == nil:
		return duplicateError{code: code}
	case !errors.Is(err, storage.ErrNotFound):
		return err
	}

	matches, err := im.lookup.FindDuplicates(ctx, draft)
	if err != nil {
		return err
	}
	if len(matches) > 0 {
		return duplicateError{code: code}
	}
	return nil
}

func describe(party, reason string) string {
	if reason == "" {
		return party
	}
	return fmt.Sprintf("%s (%s)", reason, party)
}
