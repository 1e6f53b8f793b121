package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// writableColumns lists the business columns an update rewrites. Naming
// them makes gorm write zero values too, so is_monthly can be cleared.
var writableColumns = []string{
	"description",
	"type",
	"value",
	"date",
	"source_account_id",
	"destination_account_id",
	"category_id",
	"is_monthly",
	"series_id",
	"reference",
}

// TransactionProxy holds the fixed set of transaction queries.
type TransactionProxy struct {
	*Proxy[Transaction]
	db *gorm.DB
}

func NewTransactionProxy(db *gorm.DB) *TransactionProxy {
	return &TransactionProxy{Proxy: NewProxy[Transaction](db), db: db}
}

// full eagerly resolves both accounts and the category.
func (p *TransactionProxy) full(ctx context.Context) *gorm.DB {
	return p.db.WithContext(ctx).
		Preload("SourceAccount").
		Preload("DestinationAccount").
		Preload("Category")
}

func (p *TransactionProxy) FindAllFull(ctx context.Context) ([]Transaction, error) {
	var out []Transaction
	if err := p.full(ctx).Order("date, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return out, nil
}

func (p *TransactionProxy) FindOneFull(ctx context.Context, id uint) (*Transaction, error) {
	var tx Transaction
	if err := p.full(ctx).First(&tx, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load transaction %d: %w", id, err)
	}
	return &tx, nil
}

// FindFrom returns the transactions leaving accountID, plus the transfers
// arriving on it.
func (p *TransactionProxy) FindFrom(ctx context.Context, accountID uint) ([]Transaction, error) {
	var out []Transaction
	err := p.full(ctx).
		Where("source_account_id = ?", accountID).
		Or("destination_account_id = ? AND type = ?", accountID, TypeTransfer).
		Order("date, id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions of account %d: %w", accountID, err)
	}
	return out, nil
}

func (p *TransactionProxy) FindMonthly(ctx context.Context) ([]Transaction, error) {
	var out []Transaction
	if err := p.db.WithContext(ctx).Where("is_monthly = ?", true).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list monthly transactions: %w", err)
	}
	return out, nil
}

// FindByIDs reloads exactly the given rows, ordered by date then id.
func (p *TransactionProxy) FindByIDs(ctx context.Context, ids []uint) ([]Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []Transaction
	if err := p.full(ctx).Where("id IN ?", ids).Order("date, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to load transactions %v: %w", ids, err)
	}
	return out, nil
}

// FindSeries returns every occurrence sharing seriesID.
func (p *TransactionProxy) FindSeries(ctx context.Context, seriesID string) ([]Transaction, error) {
	var out []Transaction
	if err := p.full(ctx).Where("series_id = ?", seriesID).Order("date, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list series %s: %w", seriesID, err)
	}
	return out, nil
}

// FindByReference looks a transaction up by its external reference.
func (p *TransactionProxy) FindByReference(ctx context.Context, ref string) (*Transaction, error) {
	var tx Transaction
	if err := p.db.WithContext(ctx).Where("reference = ?", ref).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("transaction %q: %w", ref, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load transaction %q: %w", ref, err)
	}
	return &tx, nil
}

// FindDuplicates returns the transactions matching probe exactly on
// description, type, value, accounts and category, dated strictly less
// than one day away from probe.Date.
func (p *TransactionProxy) FindDuplicates(ctx context.Context, probe Transaction) ([]Transaction, error) {
	date := probe.Date.UTC()
	var out []Transaction
	err := p.full(ctx).
		Where(map[string]any{
			"description":            probe.Description,
			"type":                   probe.Type,
			"source_account_id":      probe.SourceAccountID,
			"destination_account_id": probe.DestinationAccountID,
			"category_id":            probe.CategoryID,
		}).
		Where("value = ?", probe.Value).
		Where("date > ? AND date < ?", date.AddDate(0, 0, -1), date.AddDate(0, 0, 1)).
		Order("date, id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up duplicates: %w", err)
	}
	return out, nil
}

// Insert stores tx and sets its ID.
func (p *TransactionProxy) Insert(ctx context.Context, tx *Transaction) error {
	if err := p.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

// UpdateByID rewrites every business column of row id with tx.
func (p *TransactionProxy) UpdateByID(ctx context.Context, id uint, tx Transaction) error {
	tx.Date = tx.Date.UTC()
	res := p.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("id = ?", id).
		Select(writableColumns).
		Updates(&tx)
	if res.Error != nil {
		return fmt.Errorf("failed to update transaction %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetNonMonthly clears the recurrence flag of row id.
func (p *TransactionProxy) SetNonMonthly(ctx context.Context, id uint) error {
	res := p.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("id = ?", id).
		Update("is_monthly", false)
	if res.Error != nil {
		return fmt.Errorf("failed to clear monthly flag of %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	return nil
}

// Since returns the transactions dated on or after from, for reports.
func (p *TransactionProxy) Since(ctx context.Context, from time.Time) ([]Transaction, error) {
	var out []Transaction
	if err := p.full(ctx).Where("date >= ?", from.UTC()).Order("date, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions since %s: %w", from.Format(time.DateOnly), err)
	}
	return out, nil
}

// CategoryTotal sums the transactions of one category and type. Name is
// empty for transactions without a category.
type CategoryTotal struct {
	CategoryID *uint
	Name       string
	Type       TransactionType
	Total      decimal.Decimal
	Count      int
}

// SummarizeByCategory totals the stored transactions per category and type.
func (p *TransactionProxy) SummarizeByCategory(ctx context.Context) ([]CategoryTotal, error) {
	var out []CategoryTotal
	err := p.db.WithContext(ctx).
		Model(&Transaction{}).
		Select("transactions.category_id, COALESCE(categories.name, '') AS name, transactions.type, SUM(transactions.value) AS total, COUNT(*) AS count").
		Joins("LEFT JOIN categories ON categories.id = transactions.category_id").
		Group("transactions.category_id, transactions.type").
		Order("name, transactions.type").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarize transactions: %w", err)
	}
	return out, nil
}

func (p *TransactionProxy) FindByCategory(ctx context.Context, categoryID uint) ([]Transaction, error) {
	var out []Transaction
	if err := p.full(ctx).Where("category_id = ?", categoryID).Order("date, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions of category %d: %w", categoryID, err)
	}
	return out, nil
}
