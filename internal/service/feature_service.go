package service

import (
	"context"
	"strings"
	"time"

	"golang-ibov-predictor/internal/repository"
	"golang-ibov-predictor/pkg/logger"
	"golang-ibov-predictor/pkg/utils"

	"gonum.org/v1/gonum/stat"
)

// rollingWindowDays is the trailing calendar window for the rolling features.
const rollingWindowDays = 7

// FeatureService computes the engineered signals for one asset and reference
// date from the snapshot store. Every operation fails soft: a missing
// snapshot, an unparseable value or a zero divisor yields nil, never an error,
// matching how the dataset tolerates gaps in the scraped history. Only real
// storage failures propagate.
type FeatureService interface {
	// Variation returns the percentage change of participation relative to the
	// previous calendar day, or nil when that day is absent or unparseable.
	Variation(ctx context.Context, code string, date time.Time) (*float64, error)
	// RollingMean returns the mean participation over the trailing window
	// ending at date, inclusive, or nil when the window is empty.
	RollingMean(ctx context.Context, code string, date time.Time) (*float64, error)
	// RollingStdDev returns the population standard deviation over the same
	// window, or nil when fewer than 2 snapshots fall inside it.
	RollingStdDev(ctx context.Context, code string, date time.Time) (*float64, error)
	// ClassifyType reports the ordinary/preferred share flags from the
	// free-text type column. The flags are independent.
	ClassifyType(typeString string) (on bool, pn bool)
}

// NewFeatureService creates a new feature service.
func NewFeatureService(assetRepo repository.IndexAssetRepository, log *logger.Logger) FeatureService {
	return &featureService{assetRepo: assetRepo, logger: log}
}

type featureService struct {
	assetRepo repository.IndexAssetRepository
	logger    *logger.Logger
}

func (s *featureService) Variation(ctx context.Context, code string, date time.Time) (*float64, error) {
	today, err := s.assetRepo.FindByCodeAndDate(ctx, code, date)
	if err != nil {
		return nil, err
	}
	yesterday, err := s.assetRepo.FindByCodeAndDate(ctx, code, date.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}
	if today == nil || yesterday == nil {
		return nil, nil
	}

	current, ok := utils.ParseLocaleFloat(today.Participation)
	if !ok {
		s.logger.Debug("unparseable participation", logger.StringField("code", code), logger.StringField("value", today.Participation))
		return nil, nil
	}
	previous, ok := utils.ParseLocaleFloat(yesterday.Participation)
	if !ok || previous == 0 {
		return nil, nil
	}

	v := (current - previous) / previous * 100
	return &v, nil
}

func (s *featureService) RollingMean(ctx context.Context, code string, date time.Time) (*float64, error) {
	window, err := s.window(ctx, code, date)
	if err != nil {
		return nil, err
	}
	if len(window) == 0 {
		return nil, nil
	}
	m := stat.Mean(window, nil)
	return &m, nil
}

func (s *featureService) RollingStdDev(ctx context.Context, code string, date time.Time) (*float64, error) {
	window, err := s.window(ctx, code, date)
	if err != nil {
		return nil, err
	}
	if len(window) < 2 {
		return nil, nil
	}
	sd := stat.PopStdDev(window, nil)
	return &sd, nil
}

func (s *featureService) ClassifyType(typeString string) (bool, bool) {
	upper := strings.ToUpper(typeString)
	return strings.Contains(upper, "ON"), strings.Contains(upper, "PN")
}

// window collects the parseable participations in [date-7d, date].
func (s *featureService) window(ctx context.Context, code string, date time.Time) ([]float64, error) {
	assets, err := s.assetRepo.FindRange(ctx, code, date.AddDate(0, 0, -rollingWindowDays), date)
	if err != nil {
		return nil, err
	}
	values := make([]float64, 0, len(assets))
	for _, a := range assets {
		if v, ok := utils.ParseLocaleFloat(a.Participation); ok {
			values = append(values, v)
		}
	}
	return values, nil
}
