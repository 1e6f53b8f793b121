package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionType classifies a transaction.
type TransactionType string

const (
	TypeIncome   TransactionType = "income"
	TypeExpense  TransactionType = "expense"
	TypeTransfer TransactionType = "transfer"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeIncome, TypeExpense, TypeTransfer:
		return true
	}
	return false
}

var ErrInvalidTransaction = errors.New("invalid transaction")

// Account is a passive record referenced by transactions.
type Account struct {
	gorm.Model
	Name string `gorm:"uniqueIndex;not null"`
}

// Category is a passive record referenced by transactions.
type Category struct {
	gorm.Model
	Name string `gorm:"uniqueIndex;not null"`
}

// Transaction represents a stored financial transaction. When IsMonthly is
// set the row is the template of a recurrence chain.
type Transaction struct {
	gorm.Model
	Description          string
	Type                 TransactionType `gorm:"size:16;not null;index"`
	Value                decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	Date                 time.Time       `gorm:"not null;index"`
	SourceAccountID      *uint           `gorm:"index"`
	DestinationAccountID *uint           `gorm:"index"`
	CategoryID           *uint           `gorm:"index"`
	IsMonthly            bool            `gorm:"not null;default:false;index"`
	SeriesID             string          `gorm:"size:36;index"`
	Reference            *string         `gorm:"uniqueIndex"`

	SourceAccount      *Account  `gorm:"foreignKey:SourceAccountID"`
	DestinationAccount *Account  `gorm:"foreignKey:DestinationAccountID"`
	Category           *Category `gorm:"foreignKey:CategoryID"`
}

// BeforeSave keeps dates in UTC so textual timestamps compare in order.
func (t *Transaction) BeforeSave(tx *gorm.DB) error {
	t.Date = t.Date.UTC()
	return nil
}

// Validate checks the fields a draft needs before it is written.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.Description) == "" {
		return fmt.Errorf("%w: description is empty", ErrInvalidTransaction)
	}
	if !t.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, t.Type)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("%w: date is zero", ErrInvalidTransaction)
	}
	if t.Type == TypeTransfer && t.DestinationAccountID == nil {
		return fmt.Errorf("%w: transfer without destination account", ErrInvalidTransaction)
	}
	return nil
}

// Occurrence returns a fresh draft copied from t, dated on date, with the
// given monthly flag. Identity, timestamps and loaded relations are dropped,
// as is the external reference, which belongs to the original row only.
func (t Transaction) Occurrence(date time.Time, monthly bool) Transaction {
	return Transaction{
		Description:          t.Description,
		Type:                 t.Type,
		Value:                t.Value,
		Date:                 date,
		SourceAccountID:      cloneID(t.SourceAccountID),
		DestinationAccountID: cloneID(t.DestinationAccountID),
		CategoryID:           cloneID(t.CategoryID),
		IsMonthly:            monthly,
		SeriesID:             t.SeriesID,
	}
}

// Draft returns t stripped of identity and relations, keeping every
// business column.
func (t Transaction) Draft() Transaction {
	d := t.Occurrence(t.Date, t.IsMonthly)
	if t.Reference != nil {
		ref := *t.Reference
		d.Reference = &ref
	}
	return d
}

func cloneID(id *uint) *uint {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// Ref returns a pointer to v, for optional account and category references.
func Ref(v uint) *uint { return &v }
