package entity

import (
	"time"
)

// IndexAsset is one scraped observation of an asset in the IBOV composition,
// one row per asset per trading day. Participation and TheoreticalQty keep the
// locale-formatted text exactly as B3 publishes it; parsing happens at read
// time in the refinement pipeline.
type IndexAsset struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Code           string    `gorm:"not null;uniqueIndex:idx_index_assets_code_date" json:"code"`
	Name           string    `gorm:"not null" json:"name"`
	Type           string    `json:"type"`
	Participation  string    `json:"participation"`
	TheoreticalQty string    `json:"theoretical_qty"`
	Date           time.Time `gorm:"type:date;not null;uniqueIndex:idx_index_assets_code_date" json:"date"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (IndexAsset) TableName() string {
	return "index_assets"
}
