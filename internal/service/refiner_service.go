package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang-ibov-predictor/internal/dto"
	"golang-ibov-predictor/internal/entity"
	"golang-ibov-predictor/internal/repository"
	"golang-ibov-predictor/pkg/common"
	"golang-ibov-predictor/pkg/logger"
	"golang-ibov-predictor/pkg/utils"
)

const (
	// minSnapshotsDefault is the smallest snapshot count a refinement run
	// accepts before failing with ErrInsufficientData.
	minSnapshotsDefault = 5

	// Forward-score policy. The weights are tunable, the structure is not:
	// every component is strictly forward-looking, asset-relative and
	// ratio-based.
	weightDayAhead  = 0.4
	weightThreeDay  = 0.3
	weightTechnical = 0.3

	// noiseBound bounds the uniform perturbation added to every score. The
	// noise is deliberate: without it the label would be a deterministic
	// function of the features and the classifier would memorize it. Each run
	// draws from a freshly seeded source, so labels legitimately differ
	// between runs over identical snapshots.
	noiseBound = 0.02

	pipelineLockTTL = 10 * time.Minute
)

// PipelineLocker is the cross-process lease guarding refinement and training.
// pkg/redis.Client satisfies it.
type PipelineLocker interface {
	AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key string) error
}

// RefinerService rebuilds the refined training dataset from the snapshot
// store: features per row, a continuous forward-looking score per row, then a
// batch tercile pass that turns scores into SELL/HOLD/BUY labels.
type RefinerService interface {
	Refine(ctx context.Context) (*dto.RefineResult, error)
}

// RefinerOption customizes a refiner service.
type RefinerOption func(*refinerService)

// WithRandFactory injects the per-run random source. Tests pass a fixed seed;
// production keeps the default wall-clock seeding.
func WithRandFactory(f func() *rand.Rand) RefinerOption {
	return func(s *refinerService) { s.newRand = f }
}

// WithMinSnapshots overrides the minimum snapshot count.
func WithMinSnapshots(n int) RefinerOption {
	return func(s *refinerService) { s.minSnapshots = n }
}

// NewRefinerService creates a new refiner service. locker may be nil when no
// cross-process coordination is available (tests).
func NewRefinerService(
	assetRepo repository.IndexAssetRepository,
	refinedRepo repository.RefinedDataRepository,
	features FeatureService,
	locker PipelineLocker,
	log *logger.Logger,
	opts ...RefinerOption,
) RefinerService {
	s := &refinerService{
		assetRepo:    assetRepo,
		refinedRepo:  refinedRepo,
		features:     features,
		locker:       locker,
		logger:       log,
		minSnapshots: minSnapshotsDefault,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type refinerService struct {
	assetRepo    repository.IndexAssetRepository
	refinedRepo  repository.RefinedDataRepository
	features     FeatureService
	locker       PipelineLocker
	logger       *logger.Logger
	minSnapshots int
	newRand      func() *rand.Rand
	mu           sync.Mutex
}

func (s *refinerService) Refine(ctx context.Context) (*dto.RefineResult, error) {
	if !s.mu.TryLock() {
		return nil, ErrRefinementRunning
	}
	defer s.mu.Unlock()

	if s.locker != nil {
		ok, err := s.locker.AcquireLease(ctx, common.RedisKeyPipelineLock, pipelineLockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire pipeline lease: %w", err)
		}
		if !ok {
			return nil, ErrRefinementRunning
		}
		defer func() {
			if err := s.locker.ReleaseLease(context.WithoutCancel(ctx), common.RedisKeyPipelineLock); err != nil {
				s.logger.Warn("Failed to release pipeline lease", logger.ErrorField(err))
			}
		}()
	}

	rng := s.newRand()
	result := &dto.RefineResult{}

	err := s.refinedRepo.Rebuild(ctx, func(store repository.RefinedDataStore) error {
		if err := store.DeleteAll(ctx); err != nil {
			return fmt.Errorf("failed to clear refined dataset: %w", err)
		}

		assets, err := s.assetRepo.FindAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to load snapshots: %w", err)
		}
		result.Processed = len(assets)
		if len(assets) < s.minSnapshots {
			return fmt.Errorf("%w: %d snapshots stored, need at least %d", ErrInsufficientData, len(assets), s.minSnapshots)
		}

		// Phase 1: one scored row per snapshot. Always produces a row, even
		// when every forward lookup misses.
		seen := make(map[string]bool, len(assets))
		for i := range assets {
			asset := &assets[i]
			key := asset.Code + "|" + asset.Date.Format("2006-01-02")
			if seen[key] {
				continue
			}
			seen[key] = true

			record, err := s.buildRecord(ctx, asset)
			if err != nil {
				return err
			}

			score, err := s.score(ctx, asset, record)
			if err != nil {
				return err
			}
			record.Label = score + (rng.Float64()*2-1)*noiseBound

			if err := store.Insert(ctx, record); err != nil {
				return fmt.Errorf("failed to insert refined row for %s: %w", asset.Code, err)
			}
			result.Saved++
		}

		// Phase 2: batch discretization. Runs strictly after every score in
		// the batch is written, because the thresholds are a function of the
		// whole population.
		records, err := store.FindAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to reload refined rows: %w", err)
		}
		scores := make([]float64, len(records))
		for i, r := range records {
			scores[i] = r.Label
		}
		low, high := tercileThresholds(scores)
		result.ThresholdLow, result.ThresholdHigh = low, high

		for _, r := range records {
			label := discretize(r.Label, low, high)
			if err := store.UpdateLabel(ctx, r.ID, float64(label)); err != nil {
				return fmt.Errorf("failed to label refined row %d: %w", r.ID, err)
			}
			switch label {
			case common.LabelBuy:
				result.Buy++
			case common.LabelHold:
				result.Hold++
			default:
				result.Sell++
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrRebuildLocked) {
			return nil, ErrRefinementRunning
		}
		return nil, err
	}

	s.logger.Info("Refined dataset rebuilt",
		logger.IntField("processed", result.Processed),
		logger.IntField("saved", result.Saved),
		logger.IntField("buy", result.Buy),
		logger.IntField("hold", result.Hold),
		logger.IntField("sell", result.Sell),
	)
	return result, nil
}

// buildRecord computes the feature columns for one snapshot. Parse failures
// degrade to zero values; window misses stay nil.
func (s *refinerService) buildRecord(ctx context.Context, asset *entity.IndexAsset) (*entity.RefinedData, error) {
	participation, _ := utils.ParseLocaleFloat(asset.Participation)
	quantity, _ := utils.ParseLocaleQuantity(asset.TheoreticalQty)

	on, pn := s.features.ClassifyType(asset.Type)

	variation, err := s.features.Variation(ctx, asset.Code, asset.Date)
	if err != nil {
		return nil, err
	}
	mean, err := s.features.RollingMean(ctx, asset.Code, asset.Date)
	if err != nil {
		return nil, err
	}
	stddev, err := s.features.RollingStdDev(ctx, asset.Code, asset.Date)
	if err != nil {
		return nil, err
	}

	record := &entity.RefinedData{
		Code:             asset.Code,
		Name:             asset.Name,
		ParticipationPct: participation,
		TheoreticalQty:   quantity / 1_000_000,
		VariationPct:     variation,
		RollingMean7d:    mean,
		RollingStdDev7d:  stddev,
		ReferenceDate:    asset.Date,
	}
	if on {
		record.TypeON = 1
	}
	if pn {
		record.TypePN = 1
	}
	return record, nil
}

// score combines the day-ahead and three-day-ahead participation ratios with a
// technical component. Forward lookups that miss contribute zero; a record is
// always scored.
func (s *refinerService) score(ctx context.Context, asset *entity.IndexAsset, record *entity.RefinedData) (float64, error) {
	s1, err := s.forwardScore(ctx, asset, record.ParticipationPct, 1)
	if err != nil {
		return 0, err
	}
	s3, err := s.forwardScore(ctx, asset, record.ParticipationPct, 3)
	if err != nil {
		return 0, err
	}

	// Technical component: day-over-day trend damped by window volatility.
	tech := 0.0
	if record.VariationPct != nil {
		tech += *record.VariationPct / 100
	}
	if record.RollingStdDev7d != nil {
		tech -= *record.RollingStdDev7d
	}

	return weightDayAhead*s1 + weightThreeDay*s3 + weightTechnical*tech, nil
}

func (s *refinerService) forwardScore(ctx context.Context, asset *entity.IndexAsset, today float64, horizonDays int) (float64, error) {
	if today == 0 {
		return 0, nil
	}
	future, err := s.assetRepo.FindByCodeAndDate(ctx, asset.Code, asset.Date.AddDate(0, 0, horizonDays))
	if err != nil {
		return 0, err
	}
	if future == nil {
		return 0, nil
	}
	futurePart, ok := utils.ParseLocaleFloat(future.Participation)
	if !ok {
		return 0, nil
	}
	return (futurePart - today) / today, nil
}

// tercileThresholds computes the rank-based cut points over the whole score
// population: low at rank ⌊n/3⌋ and high at rank ⌊2n/3⌋ of the ascending
// sort. Populations of 3 or fewer fall back to min and max.
func tercileThresholds(scores []float64) (low, high float64) {
	n := len(scores)
	if n == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	if n <= 3 {
		return sorted[0], sorted[n-1]
	}
	return sorted[n/3], sorted[2*n/3]
}

func discretize(score, low, high float64) int {
	switch {
	case score >= high:
		return common.LabelBuy
	case score >= low:
		return common.LabelHold
	default:
		return common.LabelSell
	}
}
