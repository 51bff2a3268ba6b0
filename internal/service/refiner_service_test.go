package service

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-ibov-predictor/internal/entity"
	"golang-ibov-predictor/pkg/common"
)

func seededRand(seed int64) func() *rand.Rand {
	return func() *rand.Rand { return rand.New(rand.NewSource(seed)) }
}

// seedSnapshots stores one snapshot per code per consecutive day, with
// participation drifting so scores spread out.
func seedSnapshots(repo *fakeAssetRepo, codes []string, days int) {
	start := day(2025, time.March, 3)
	for ci, code := range codes {
		for d := 0; d < days; d++ {
			participation := fmt.Sprintf("%d,%02d", ci+1, (d*7+ci*3)%100)
			repo.add(code, code+" SA", "ON NM", participation, "1.000.000", start.AddDate(0, 0, d))
		}
	}
}

func newRefinerForTest(assets *fakeAssetRepo, refined *fakeRefinedRepo, opts ...RefinerOption) RefinerService {
	log := newTestLogger()
	features := NewFeatureService(assets, log)
	return NewRefinerService(assets, refined, features, nil, log, opts...)
}

func TestRefinerService_Refine(t *testing.T) {
	ctx := context.Background()

	t.Run("rebuilds one row per unique snapshot", func(t *testing.T) {
		assets := &fakeAssetRepo{}
		seedSnapshots(assets, []string{"PETR4", "VALE3", "ITUB4"}, 6)
		refined := &fakeRefinedRepo{}

		svc := newRefinerForTest(assets, refined, WithRandFactory(seededRand(42)))
		result, err := svc.Refine(ctx)
		require.NoError(t, err)

		assert.Equal(t, 18, result.Processed)
		assert.Equal(t, 18, result.Saved)
		assert.Equal(t, result.Saved, result.Buy+result.Hold+result.Sell)

		records, err := refined.FindAll(ctx)
		require.NoError(t, err)
		require.Len(t, records, 18)
		for _, r := range records {
			assert.Contains(t, []float64{
				float64(common.LabelSell),
				float64(common.LabelHold),
				float64(common.LabelBuy),
			}, r.Label)
		}
	})

	t.Run("label classes stay balanced", func(t *testing.T) {
		assets := &fakeAssetRepo{}
		seedSnapshots(assets, []string{"PETR4", "VALE3", "ITUB4", "BBAS3"}, 9)
		refined := &fakeRefinedRepo{}

		svc := newRefinerForTest(assets, refined, WithRandFactory(seededRand(7)))
		result, err := svc.Refine(ctx)
		require.NoError(t, err)

		n := result.Saved
		third := float64(n) / 3
		bound := math.Ceil(third)
		assert.LessOrEqual(t, math.Abs(float64(result.Sell)-third), bound)
		assert.LessOrEqual(t, math.Abs(float64(result.Hold)-third), bound)
		assert.LessOrEqual(t, math.Abs(float64(result.Buy)-third), bound)

		// The buy count is exactly the population at or above the high cut.
		records, err := refined.FindAll(ctx)
		require.NoError(t, err)
		buys := 0
		for _, r := range records {
			if r.Label == float64(common.LabelBuy) {
				buys++
			}
		}
		assert.Equal(t, result.Buy, buys)
		assert.Positive(t, buys)
	})

	t.Run("features are deterministic across differently seeded runs", func(t *testing.T) {
		assets := &fakeAssetRepo{}
		seedSnapshots(assets, []string{"PETR4", "VALE3"}, 8)

		type featureRow struct {
			participation float64
			qty           float64
			variation     *float64
			mean          *float64
			stddev        *float64
		}
		collect := func(seed int64) map[string]featureRow {
			refined := &fakeRefinedRepo{}
			svc := newRefinerForTest(assets, refined, WithRandFactory(seededRand(seed)))
			result, err := svc.Refine(ctx)
			require.NoError(t, err)

			records, err := refined.FindAll(ctx)
			require.NoError(t, err)
			require.Len(t, records, result.Saved)
			rows := make(map[string]featureRow, len(records))
			for _, r := range records {
				key := r.Code + "|" + r.ReferenceDate.Format("2006-01-02")
				rows[key] = featureRow{
					participation: r.ParticipationPct,
					qty:           r.TheoreticalQty,
					variation:     r.VariationPct,
					mean:          r.RollingMean7d,
					stddev:        r.RollingStdDev7d,
				}
			}
			return rows
		}

		first := collect(1)
		second := collect(999)
		require.Equal(t, len(first), len(second))
		for key, a := range first {
			b, ok := second[key]
			require.True(t, ok, "row %s missing from second run", key)
			assert.Equal(t, a.participation, b.participation)
			assert.Equal(t, a.qty, b.qty)
			assert.Equal(t, a.variation, b.variation)
			assert.Equal(t, a.mean, b.mean)
			assert.Equal(t, a.stddev, b.stddev)
		}
	})

	t.Run("labeling starts only after every row is scored", func(t *testing.T) {
		assets := &fakeAssetRepo{}
		seedSnapshots(assets, []string{"PETR4", "VALE3"}, 5)
		refined := &fakeRefinedRepo{}

		svc := newRefinerForTest(assets, refined, WithRandFactory(seededRand(23)))
		_, err := svc.Refine(ctx)
		require.NoError(t, err)

		lastInsert, firstUpdate := -1, len(refined.ops)
		for i, op := range refined.ops {
			if op == "insert" {
				lastInsert = i
			} else if i < firstUpdate {
				firstUpdate = i
			}
		}
		assert.Less(t, lastInsert, firstUpdate, "discretization must not interleave with scoring")
	})

	t.Run("duplicate snapshots collapse to one row", func(t *testing.T) {
		assets := &fakeAssetRepo{}
		seedSnapshots(assets, []string{"PETR4"}, 5)
		// Same code and date stored twice, as after an interrupted backfill.
		assets.add("PETR4", "PETROBRAS", "ON NM", "1,00", "1.000.000", day(2025, time.March, 3))

		refined := &fakeRefinedRepo{}
		svc := newRefinerForTest(assets, refined, WithRandFactory(seededRand(3)))
		result, err := svc.Refine(ctx)
		require.NoError(t, err)

		assert.Equal(t, 6, result.Processed)
		assert.Equal(t, 5, result.Saved)
	})

	t.Run("always scores a row even without forward snapshots", func(t *testing.T) {
		assets := &fakeAssetRepo{}
		// Isolated days, no day-ahead or three-day-ahead neighbors.
		assets.add("PETR4", "PETROBRAS", "ON NM", "1,10", "1.000.000", day(2025, time.March, 3))
		assets.add("VALE3", "VALE", "ON NM", "2,20", "1.000.000", day(2025, time.March, 10))
		assets.add("ITUB4", "ITAUUNIBANCO", "PN N1", "3,30", "1.000.000", day(2025, time.March, 17))

		refined := &fakeRefinedRepo{}
		svc := newRefinerForTest(assets, refined,
			WithRandFactory(seededRand(11)),
			WithMinSnapshots(3),
		)
		result, err := svc.Refine(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, result.Saved)
	})

	t.Run("insufficient snapshots roll the rebuild back", func(t *testing.T) {
		assets := &fakeAssetRepo{}
		assets.add("PETR4", "PETROBRAS", "ON NM", "1,10", "1.000.000", day(2025, time.March, 3))

		refined := &fakeRefinedRepo{}
		refined.records = []entity.RefinedData{{ID: 1, Code: "PETR4", Label: 2, ReferenceDate: day(2025, time.February, 10)}}
		refined.nextID = 1

		svc := newRefinerForTest(assets, refined, WithRandFactory(seededRand(5)))
		_, err := svc.Refine(ctx)
		require.ErrorIs(t, err, ErrInsufficientData)

		records, err := refined.FindAll(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 1, "previous dataset must survive a failed rebuild")
	})

	t.Run("empty store fails with insufficient data", func(t *testing.T) {
		svc := newRefinerForTest(&fakeAssetRepo{}, &fakeRefinedRepo{}, WithRandFactory(seededRand(5)))
		_, err := svc.Refine(ctx)
		assert.ErrorIs(t, err, ErrInsufficientData)
	})

	t.Run("denied lease maps to refinement running", func(t *testing.T) {
		assets := &fakeAssetRepo{}
		seedSnapshots(assets, []string{"PETR4", "VALE3"}, 4)
		locker := &fakeLocker{denied: true}

		log := newTestLogger()
		svc := NewRefinerService(assets, &fakeRefinedRepo{}, NewFeatureService(assets, log), locker, log,
			WithRandFactory(seededRand(13)))
		_, err := svc.Refine(ctx)
		assert.ErrorIs(t, err, ErrRefinementRunning)
		assert.Equal(t, 1, locker.acquires)
		assert.Zero(t, locker.releases)
	})

	t.Run("advisory lock contention maps to refinement running", func(t *testing.T) {
		assets := &fakeAssetRepo{}
		seedSnapshots(assets, []string{"PETR4", "VALE3"}, 4)
		refined := &fakeRefinedRepo{locked: true}

		svc := newRefinerForTest(assets, refined, WithRandFactory(seededRand(17)))
		_, err := svc.Refine(ctx)
		assert.ErrorIs(t, err, ErrRefinementRunning)
	})

	t.Run("releases the lease after a successful run", func(t *testing.T) {
		assets := &fakeAssetRepo{}
		seedSnapshots(assets, []string{"PETR4", "VALE3"}, 4)
		locker := &fakeLocker{}

		log := newTestLogger()
		svc := NewRefinerService(assets, &fakeRefinedRepo{}, NewFeatureService(assets, log), locker, log,
			WithRandFactory(seededRand(19)))
		_, err := svc.Refine(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, locker.acquires)
		assert.Equal(t, 1, locker.releases)
	})
}

func TestTercileThresholds(t *testing.T) {
	tests := []struct {
		name     string
		scores   []float64
		wantLow  float64
		wantHigh float64
	}{
		{"empty population", nil, 0, 0},
		{"single score is both cuts", []float64{0.5}, 0.5, 0.5},
		{"three or fewer fall back to min and max", []float64{0.3, 0.1, 0.2}, 0.1, 0.3},
		{"rank based cuts", []float64{9, 1, 5, 3, 7, 2, 8, 4, 6}, 4, 7},
		{"duplicates keep rank semantics", []float64{1, 1, 1, 2, 2, 2}, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			low, high := tercileThresholds(tt.scores)
			assert.Equal(t, tt.wantLow, low)
			assert.Equal(t, tt.wantHigh, high)
		})
	}
}

func TestDiscretize(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  int
	}{
		{"below low is sell", 0.05, common.LabelSell},
		{"at low is hold", 0.1, common.LabelHold},
		{"between cuts is hold", 0.15, common.LabelHold},
		{"at high is buy", 0.2, common.LabelBuy},
		{"above high is buy", 0.9, common.LabelBuy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, discretize(tt.score, 0.1, 0.2))
		})
	}
}
