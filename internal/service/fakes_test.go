package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang-ibov-predictor/internal/entity"
	"golang-ibov-predictor/internal/repository"
	"golang-ibov-predictor/pkg/logger"
)

func newTestLogger() *logger.Logger {
	log, err := logger.New("error", "console")
	if err != nil {
		panic(err)
	}
	return log
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fakeAssetRepo struct {
	mu     sync.Mutex
	assets []entity.IndexAsset
	nextID uint
}

func (f *fakeAssetRepo) add(code, name, typ, participation, qty string, date time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.assets = append(f.assets, entity.IndexAsset{
		ID:             f.nextID,
		Code:           code,
		Name:           name,
		Type:           typ,
		Participation:  participation,
		TheoreticalQty: qty,
		Date:           date,
	})
}

func (f *fakeAssetRepo) Create(_ context.Context, asset *entity.IndexAsset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	asset.ID = f.nextID
	f.assets = append(f.assets, *asset)
	return nil
}

func (f *fakeAssetRepo) Exists(_ context.Context, code string, date time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assets {
		if a.Code == code && sameDay(a.Date, date) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAssetRepo) FindByCodeAndDate(_ context.Context, code string, date time.Time) (*entity.IndexAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assets {
		if a.Code == code && sameDay(a.Date, date) {
			found := a
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeAssetRepo) FindRange(_ context.Context, code string, from, to time.Time) ([]entity.IndexAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.IndexAsset
	for _, a := range f.assets {
		if a.Code != code {
			continue
		}
		if a.Date.Before(from) || a.Date.After(to) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (f *fakeAssetRepo) FindAll(_ context.Context) ([]entity.IndexAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]entity.IndexAsset(nil), f.assets...)
	sort.Slice(out, func(i, j int) bool {
		if !sameDay(out[i].Date, out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (f *fakeAssetRepo) Count(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.assets)), nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

type fakeRefinedRepo struct {
	mu      sync.Mutex
	records []entity.RefinedData
	nextID  uint
	locked  bool
	ops     []string
}

func (f *fakeRefinedRepo) Rebuild(_ context.Context, fn func(store repository.RefinedDataStore) error) error {
	f.mu.Lock()
	if f.locked {
		f.mu.Unlock()
		return repository.ErrRebuildLocked
	}
	backup := append([]entity.RefinedData(nil), f.records...)
	backupID := f.nextID
	f.mu.Unlock()

	if err := fn(f); err != nil {
		f.mu.Lock()
		f.records = backup
		f.nextID = backupID
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeRefinedRepo) DeleteAll(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = nil
	return nil
}

func (f *fakeRefinedRepo) Insert(_ context.Context, record *entity.RefinedData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	record.ID = f.nextID
	f.records = append(f.records, *record)
	f.ops = append(f.ops, "insert")
	return nil
}

func (f *fakeRefinedRepo) FindAll(_ context.Context) ([]entity.RefinedData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.RefinedData(nil), f.records...), nil
}

func (f *fakeRefinedRepo) UpdateLabel(_ context.Context, id uint, label float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "update_label")
	for i := range f.records {
		if f.records[i].ID == id {
			f.records[i].Label = label
			return nil
		}
	}
	return nil
}

func (f *fakeRefinedRepo) FindAllOrdered(_ context.Context) ([]entity.RefinedData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]entity.RefinedData(nil), f.records...)
	sort.Slice(out, func(i, j int) bool {
		if !sameDay(out[i].ReferenceDate, out[j].ReferenceDate) {
			return out[i].ReferenceDate.Before(out[j].ReferenceDate)
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (f *fakeRefinedRepo) FindLatestByCode(_ context.Context, code string) (*entity.RefinedData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *entity.RefinedData
	for i := range f.records {
		r := f.records[i]
		if r.Code != code {
			continue
		}
		if latest == nil || r.ReferenceDate.After(latest.ReferenceDate) {
			found := r
			latest = &found
		}
	}
	return latest, nil
}

func (f *fakeRefinedRepo) CountByLabel(_ context.Context, label float64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, r := range f.records {
		if r.Label == label {
			count++
		}
	}
	return count, nil
}

func (f *fakeRefinedRepo) Count(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.records)), nil
}

type fakeModelRepo struct {
	mu     sync.Mutex
	models []entity.TrainedModel
	nextID uint
}

func (f *fakeModelRepo) SaveAsActive(_ context.Context, model *entity.TrainedModel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.models {
		f.models[i].Active = false
	}
	f.nextID++
	model.ID = f.nextID
	model.Active = true
	model.TrainedAt = time.Now()
	f.models = append(f.models, *model)
	return nil
}

func (f *fakeModelRepo) FindActive(_ context.Context) (*entity.TrainedModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.models {
		if f.models[i].Active {
			found := f.models[i]
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeModelRepo) FindRecent(_ context.Context, limit int) ([]entity.TrainedModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]entity.TrainedModel(nil), f.models...)
	sort.Slice(out, func(i, j int) bool { return out[i].TrainedAt.After(out[j].TrainedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	denied   bool
	acquires int
	releases int
}

func (f *fakeLocker) AcquireLease(_ context.Context, _ string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquires++
	if f.denied || f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLocker) ReleaseLease(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	f.held = false
	return nil
}
