package entity

import (
	"time"
)

// RefinedData is one feature-engineered training row derived from an
// IndexAsset snapshot. The set is fully rebuilt on every refinement run.
//
// Label is a float column: during a refinement run it first holds the
// continuous forward-looking score, then the batch discretization pass
// overwrites it with the final class (0 SELL, 1 HOLD, 2 BUY).
type RefinedData struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Code             string    `gorm:"not null;index" json:"code"`
	Name             string    `gorm:"not null" json:"name"`
	ParticipationPct float64   `gorm:"not null" json:"participation_pct"`
	TheoreticalQty   float64   `gorm:"not null" json:"theoretical_qty"`
	TypeON           int       `gorm:"column:type_on;default:0" json:"type_on"`
	TypePN           int       `gorm:"column:type_pn;default:0" json:"type_pn"`
	VariationPct     *float64  `json:"variation_pct"`
	RollingMean7d    *float64  `gorm:"column:rolling_mean_7d" json:"rolling_mean_7d"`
	RollingStdDev7d  *float64  `gorm:"column:rolling_stddev_7d" json:"rolling_stddev_7d"`
	Label            float64   `json:"label"`
	ReferenceDate    time.Time `gorm:"type:date;not null" json:"reference_date"`
	ProcessedAt      time.Time `gorm:"autoCreateTime" json:"processed_at"`
}

func (RefinedData) TableName() string {
	return "refined_data"
}
