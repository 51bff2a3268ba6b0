package dto

import (
	"time"

	"golang-ibov-predictor/internal/entity"
)

// RefineResult summarizes one full-rebuild refinement run.
type RefineResult struct {
	Processed     int     `json:"processed"`
	Saved         int     `json:"saved"`
	Buy           int     `json:"buy"`
	Hold          int     `json:"hold"`
	Sell          int     `json:"sell"`
	ThresholdLow  float64 `json:"threshold_low"`
	ThresholdHigh float64 `json:"threshold_high"`
}

// TrainResult summarizes one training run.
type TrainResult struct {
	Version      string  `json:"version"`
	Algorithm    string  `json:"algorithm"`
	Accuracy     float64 `json:"accuracy"`
	Precision    float64 `json:"precision"`
	Recall       float64 `json:"recall"`
	F1Score      float64 `json:"f1_score"`
	TrainSamples int     `json:"train_samples"`
	TestSamples  int     `json:"test_samples"`
	ModelPath    string  `json:"model_path"`
}

// PredictionResponse is the recommendation served for one asset.
type PredictionResponse struct {
	Code           string             `json:"code"`
	Name           string             `json:"name"`
	Recommendation string             `json:"recommendation"`
	Confidence     float64            `json:"confidence"`
	Probabilities  map[string]float64 `json:"probabilities"`
	ReferenceDate  time.Time          `json:"reference_date"`
	ModelVersion   string             `json:"model_version"`
	Features       map[string]float64 `json:"features"`
	Explanation    string             `json:"explanation,omitempty"`
}

// LabelDistribution counts refined rows per final class.
type LabelDistribution struct {
	Total int64 `json:"total"`
	Buy   int64 `json:"buy"`
	Hold  int64 `json:"hold"`
	Sell  int64 `json:"sell"`
}

// MetricsResponse reports the active model, recent history and the label
// distribution of the current refined dataset.
type MetricsResponse struct {
	ActiveModel  *entity.TrainedModel  `json:"active_model"`
	History      []entity.TrainedModel `json:"history"`
	Distribution LabelDistribution     `json:"distribution"`
}
