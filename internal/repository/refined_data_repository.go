package repository

import (
	"context"
	"errors"

	"golang-ibov-predictor/internal/entity"
	"golang-ibov-predictor/pkg/common"

	"gorm.io/gorm"
)

// ErrRebuildLocked is returned when another refinement run already holds the
// advisory lock on refined_data.
var ErrRebuildLocked = errors.New("refined dataset rebuild already in progress")

// RefinedDataStore is the write surface available inside a rebuild
// transaction.
type RefinedDataStore interface {
	DeleteAll(ctx context.Context) error
	Insert(ctx context.Context, record *entity.RefinedData) error
	FindAll(ctx context.Context) ([]entity.RefinedData, error)
	UpdateLabel(ctx context.Context, id uint, label float64) error
}

// RefinedDataRepository manages the derived training dataset. The dataset is
// exclusively owned by the refinement pipeline and fully rewritten on each run.
type RefinedDataRepository interface {
	RefinedDataStore
	// Rebuild runs fn inside a single transaction holding the refinement
	// advisory lock, so the delete-all and the rewrite land atomically. A
	// concurrent rebuild fails fast with ErrRebuildLocked.
	Rebuild(ctx context.Context, fn func(store RefinedDataStore) error) error
	FindAllOrdered(ctx context.Context) ([]entity.RefinedData, error)
	FindLatestByCode(ctx context.Context, code string) (*entity.RefinedData, error)
	CountByLabel(ctx context.Context, label float64) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// NewRefinedDataRepository creates a new GORM-based refined data repository.
func NewRefinedDataRepository(db *gorm.DB) RefinedDataRepository {
	return &refinedDataRepository{db: db}
}

type refinedDataRepository struct {
	db *gorm.DB
}

func (r *refinedDataRepository) Rebuild(ctx context.Context, fn func(store RefinedDataStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked bool
		if err := tx.Raw("SELECT pg_try_advisory_xact_lock(?)", common.AdvisoryLockRefinement).Scan(&locked).Error; err != nil {
			return err
		}
		if !locked {
			return ErrRebuildLocked
		}
		return fn(&refinedDataRepository{db: tx})
	})
}

// DeleteAll removes every refined row.
func (r *refinedDataRepository) DeleteAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Where("1 = 1").Delete(&entity.RefinedData{}).Error
}

// Insert stores one refined row.
func (r *refinedDataRepository) Insert(ctx context.Context, record *entity.RefinedData) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// FindAll retrieves all refined rows.
func (r *refinedDataRepository) FindAll(ctx context.Context) ([]entity.RefinedData, error) {
	var records []entity.RefinedData
	if err := r.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// UpdateLabel overwrites the label column of one row.
func (r *refinedDataRepository) UpdateLabel(ctx context.Context, id uint, label float64) error {
	return r.db.WithContext(ctx).Model(&entity.RefinedData{}).
		Where("id = ?", id).
		Update("label", label).Error
}

// FindAllOrdered retrieves all refined rows ordered by reference date, the
// order the trainer needs for its temporal split.
func (r *refinedDataRepository) FindAllOrdered(ctx context.Context) ([]entity.RefinedData, error) {
	var records []entity.RefinedData
	err := r.db.WithContext(ctx).Order("reference_date ASC, code ASC").Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// FindLatestByCode retrieves the most recent refined row for an asset.
func (r *refinedDataRepository) FindLatestByCode(ctx context.Context, code string) (*entity.RefinedData, error) {
	var record entity.RefinedData
	err := r.db.WithContext(ctx).
		Where("code = ?", code).
		Order("reference_date DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// CountByLabel counts rows carrying the given final label.
func (r *refinedDataRepository) CountByLabel(ctx context.Context, label float64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.RefinedData{}).
		Where("label = ?", label).
		Count(&count).Error
	return count, err
}

// Count returns the number of refined rows.
func (r *refinedDataRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.RefinedData{}).Count(&count).Error
	return count, err
}
