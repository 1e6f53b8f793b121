package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Proxy is the generic CRUD layer shared by every model. Model-specific
// proxies embed it and add their own queries.
type Proxy[T any] struct {
	db *gorm.DB
}

func NewProxy[T any](db *gorm.DB) *Proxy[T] {
	return &Proxy[T]{db: db}
}

func (p *Proxy[T]) Create(ctx context.Context, v *T) error {
	if err := p.db.WithContext(ctx).Create(v).Error; err != nil {
		return fmt.Errorf("failed to create %T: %w", v, err)
	}
	return nil
}

func (p *Proxy[T]) FindAll(ctx context.Context) ([]T, error) {
	var out []T
	if err := p.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list %T: %w", out, err)
	}
	return out, nil
}

func (p *Proxy[T]) FindByID(ctx context.Context, id uint) (*T, error) {
	v := new(T)
	if err := p.db.WithContext(ctx).First(v, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%T %d: %w", v, id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load %T %d: %w", v, id, err)
	}
	return v, nil
}

// FindOne returns the first row matching the non-zero fields of where.
func (p *Proxy[T]) FindOne(ctx context.Context, where T) (*T, error) {
	v := new(T)
	if err := p.db.WithContext(ctx).Where(&where).Order("id").First(v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%T %+v: %w", v, where, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load %T: %w", v, err)
	}
	return v, nil
}

// Update overwrites every column of row id with the values of v, zero
// values included, then returns the stored row.
func (p *Proxy[T]) Update(ctx context.Context, id uint, v *T) (*T, error) {
	res := p.db.WithContext(ctx).
		Model(new(T)).
		Where("id = ?", id).
		Select("*").
		Omit("id", "created_at", "deleted_at").
		Updates(v)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update %T %d: %w", v, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%T %d: %w", v, id, ErrNotFound)
	}
	return p.FindByID(ctx, id)
}

func (p *Proxy[T]) Delete(ctx context.Context, id uint) error {
	res := p.db.WithContext(ctx).Delete(new(T), id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete %d: %w", id, ErrNotFound)
	}
	return nil
}

// FirstOrCreate returns the first row matching the non-zero fields of
// where, creating it from where when none exists.
func (p *Proxy[T]) FirstOrCreate(ctx context.Context, where T) (*T, error) {
	v := new(T)
	if err := p.db.WithContext(ctx).Where(&where).FirstOrCreate(v).Error; err != nil {
		return nil, fmt.Errorf("failed to find or create %T: %w", v, err)
	}
	return v, nil
}
