package repository

import (
	"context"
	"errors"
	"time"

	"golang-ibov-predictor/internal/entity"

	"gorm.io/gorm"
)

// IndexAssetRepository defines the query surface over the snapshot store. The
// refinement pipeline only reads; writes come from the scraper.
type IndexAssetRepository interface {
	Create(ctx context.Context, asset *entity.IndexAsset) error
	Exists(ctx context.Context, code string, date time.Time) (bool, error)
	FindByCodeAndDate(ctx context.Context, code string, date time.Time) (*entity.IndexAsset, error)
	FindRange(ctx context.Context, code string, from, to time.Time) ([]entity.IndexAsset, error)
	FindAll(ctx context.Context) ([]entity.IndexAsset, error)
	Count(ctx context.Context) (int64, error)
}

// NewIndexAssetRepository creates a new GORM-based index asset repository.
func NewIndexAssetRepository(db *gorm.DB) IndexAssetRepository {
	return &indexAssetRepository{db: db}
}

type indexAssetRepository struct {
	db *gorm.DB
}

// Create inserts a new snapshot row.
func (r *indexAssetRepository) Create(ctx context.Context, asset *entity.IndexAsset) error {
	return r.db.WithContext(ctx).Create(asset).Error
}

// Exists reports whether a snapshot for (code, date) is already stored.
func (r *indexAssetRepository) Exists(ctx context.Context, code string, date time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.IndexAsset{}).
		Where("code = ? AND date = ?", code, date.Format("2006-01-02")).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindByCodeAndDate retrieves the snapshot for one asset on one day. It
// returns (nil, nil) when no row exists so feature lookups can fail soft.
func (r *indexAssetRepository) FindByCodeAndDate(ctx context.Context, code string, date time.Time) (*entity.IndexAsset, error) {
	var asset entity.IndexAsset
	err := r.db.WithContext(ctx).
		Where("code = ? AND date = ?", code, date.Format("2006-01-02")).
		First(&asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// FindRange retrieves all snapshots for an asset with date in [from, to],
// inclusive, ordered by date.
func (r *indexAssetRepository) FindRange(ctx context.Context, code string, from, to time.Time) ([]entity.IndexAsset, error) {
	var assets []entity.IndexAsset
	err := r.db.WithContext(ctx).
		Where("code = ? AND date >= ? AND date <= ?", code, from.Format("2006-01-02"), to.Format("2006-01-02")).
		Order("date ASC").
		Find(&assets).Error
	if err != nil {
		return nil, err
	}
	return assets, nil
}

// FindAll retrieves every snapshot ordered by date then code.
func (r *indexAssetRepository) FindAll(ctx context.Context) ([]entity.IndexAsset, error) {
	var assets []entity.IndexAsset
	if err := r.db.WithContext(ctx).Order("date ASC, code ASC").Find(&assets).Error; err != nil {
		return nil, err
	}
	return assets, nil
}

// Count returns the number of stored snapshots.
func (r *indexAssetRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.IndexAsset{}).Count(&count).Error
	return count, err
}
