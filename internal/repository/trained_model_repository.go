package repository

import (
	"context"
	"errors"

	"golang-ibov-predictor/internal/entity"

	"gorm.io/gorm"
)

// TrainedModelRepository manages trained model metadata rows.
type TrainedModelRepository interface {
	// SaveAsActive deactivates every stored model and inserts the new one as
	// active, in one transaction.
	SaveAsActive(ctx context.Context, model *entity.TrainedModel) error
	FindActive(ctx context.Context) (*entity.TrainedModel, error)
	FindRecent(ctx context.Context, limit int) ([]entity.TrainedModel, error)
}

// NewTrainedModelRepository creates a new GORM-based trained model repository.
func NewTrainedModelRepository(db *gorm.DB) TrainedModelRepository {
	return &trainedModelRepository{db: db}
}

type trainedModelRepository struct {
	db *gorm.DB
}

func (r *trainedModelRepository) SaveAsActive(ctx context.Context, model *entity.TrainedModel) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.TrainedModel{}).
			Where("active = ?", true).
			Update("active", false).Error; err != nil {
			return err
		}
		model.Active = true
		return tx.Create(model).Error
	})
}

// FindActive retrieves the currently active model, or (nil, nil) when none
// has been trained yet.
func (r *trainedModelRepository) FindActive(ctx context.Context) (*entity.TrainedModel, error) {
	var model entity.TrainedModel
	err := r.db.WithContext(ctx).Where("active = ?", true).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model, nil
}

// FindRecent retrieves the most recently trained models, newest first.
func (r *trainedModelRepository) FindRecent(ctx context.Context, limit int) ([]entity.TrainedModel, error) {
	var models []entity.TrainedModel
	err := r.db.WithContext(ctx).
		Order("trained_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return models, nil
}
