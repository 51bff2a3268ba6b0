package entity

import (
	"time"

	"gorm.io/datatypes"
)

// TrainedModel records the metadata of one trained classifier version. At most
// one row is active at a time; training a new model deactivates the rest.
type TrainedModel struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"not null" json:"name"`
	Version      string         `gorm:"not null" json:"version"`
	Algorithm    string         `gorm:"not null" json:"algorithm"`
	Accuracy     float64        `json:"accuracy"`
	Precision    float64        `json:"precision"`
	Recall       float64        `json:"recall"`
	F1Score      float64        `gorm:"column:f1_score" json:"f1_score"`
	TrainSamples int            `json:"train_samples"`
	TestSamples  int            `json:"test_samples"`
	Features     datatypes.JSON `gorm:"type:jsonb" json:"features"`
	ModelPath    string         `gorm:"not null" json:"model_path"`
	Active       bool           `gorm:"default:true" json:"active"`
	TrainedAt    time.Time      `gorm:"autoCreateTime" json:"trained_at"`
}

func (TrainedModel) TableName() string {
	return "trained_models"
}
