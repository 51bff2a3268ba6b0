package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"golang-ibov-predictor/internal/dto"
	"golang-ibov-predictor/internal/entity"
	"golang-ibov-predictor/internal/repository"
	"golang-ibov-predictor/pkg/common"
	"golang-ibov-predictor/pkg/logger"
	"golang-ibov-predictor/pkg/telegram"

	gocache "github.com/patrickmn/go-cache"
	"gonum.org/v1/gonum/mat"
	"gorm.io/datatypes"
)

const (
	algorithmSoftmax = "SoftmaxRegression"

	minTrainSamplesDefault = 10
	minClassRatio          = 0.10
	trainSplitRatio        = 0.8

	numClasses = 3

	gdEpochs       = 400
	gdLearningRate = 0.1
	gdL2           = 1e-4
)

var classNames = map[int]string{
	common.LabelSell: "SELL",
	common.LabelHold: "HOLD",
	common.LabelBuy:  "BUY",
}

// modelArtifact is the serialized form of a trained classifier: the scaler
// fitted on the training split and the softmax weight matrix (rows are
// features plus a bias row, columns are classes).
type modelArtifact struct {
	Algorithm string      `json:"algorithm"`
	Version   string      `json:"version"`
	Features  []string    `json:"features"`
	Means     []float64   `json:"means"`
	Stds      []float64   `json:"stds"`
	Weights   [][]float64 `json:"weights"`
}

// TrainingService fits a classifier on the refined dataset and serves
// predictions from the active model. Training never uses forward-looking
// snapshots directly: it consumes only the already-labeled refined rows, and
// prediction reads feature columns alone.
type TrainingService interface {
	Train(ctx context.Context) (*dto.TrainResult, error)
	Predict(ctx context.Context, code string) (*dto.PredictionResponse, error)
	Metrics(ctx context.Context) (*dto.MetricsResponse, error)
}

// NewTrainingService creates a new training service. locker and notifier may
// be nil.
func NewTrainingService(
	refinedRepo repository.RefinedDataRepository,
	modelRepo repository.TrainedModelRepository,
	locker PipelineLocker,
	notifier telegram.Notifier,
	modelsDir string,
	minTrainSamples int,
	log *logger.Logger,
) TrainingService {
	if minTrainSamples <= 0 {
		minTrainSamples = minTrainSamplesDefault
	}
	return &trainingService{
		refinedRepo:     refinedRepo,
		modelRepo:       modelRepo,
		locker:          locker,
		notifier:        notifier,
		modelsDir:       modelsDir,
		minTrainSamples: minTrainSamples,
		logger:          log,
		artifactCache:   gocache.New(10*time.Minute, 30*time.Minute),
	}
}

type trainingService struct {
	refinedRepo     repository.RefinedDataRepository
	modelRepo       repository.TrainedModelRepository
	locker          PipelineLocker
	notifier        telegram.Notifier
	modelsDir       string
	minTrainSamples int
	logger          *logger.Logger
	artifactCache   *gocache.Cache
}

func (s *trainingService) Train(ctx context.Context) (*dto.TrainResult, error) {
	if s.locker != nil {
		ok, err := s.locker.AcquireLease(ctx, common.RedisKeyPipelineLock, pipelineLockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire pipeline lease: %w", err)
		}
		if !ok {
			return nil, ErrRefinementRunning
		}
		defer func() {
			_ = s.locker.ReleaseLease(context.WithoutCancel(ctx), common.RedisKeyPipelineLock)
		}()
	}

	records, err := s.refinedRepo.FindAllOrdered(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load refined dataset: %w", err)
	}
	if len(records) < s.minTrainSamples {
		return nil, fmt.Errorf("%w: %d refined rows, need at least %d", ErrInsufficientData, len(records), s.minTrainSamples)
	}

	features := make([][]float64, len(records))
	labels := make([]int, len(records))
	for i, r := range records {
		features[i] = featureVector(&r)
		labels[i] = int(r.Label)
	}

	// Temporal split: the oldest 80% trains, the newest 20% tests. Never a
	// random split, labels are time-ordered market outcomes.
	splitIdx := int(float64(len(records)) * trainSplitRatio)
	trainX, testX := features[:splitIdx], features[splitIdx:]
	trainY, testY := labels[:splitIdx], labels[splitIdx:]

	if err := checkClassBalance(trainY); err != nil {
		return nil, err
	}

	means, stds := fitScaler(trainX)
	scaledTrain := applyScaler(trainX, means, stds)
	scaledTest := applyScaler(testX, means, stds)

	weights := trainSoftmax(scaledTrain, trainY)

	predicted := make([]int, len(scaledTest))
	for i, x := range scaledTest {
		predicted[i], _ = argmaxSoftmax(x, weights)
	}
	accuracy, precision, recall, f1 := classificationMetrics(testY, predicted)

	version := time.Now().Format("20060102_150405")
	artifact := &modelArtifact{
		Algorithm: algorithmSoftmax,
		Version:   version,
		Features:  common.FeatureColumns,
		Means:     means,
		Stds:      stds,
		Weights:   weights,
	}
	modelPath, err := s.saveArtifact(artifact)
	if err != nil {
		return nil, err
	}

	featuresJSON, _ := json.Marshal(common.FeatureColumns)
	model := &entity.TrainedModel{
		Name:         "IBOV Recommendation Model",
		Version:      version,
		Algorithm:    algorithmSoftmax,
		Accuracy:     accuracy,
		Precision:    precision,
		Recall:       recall,
		F1Score:      f1,
		TrainSamples: len(trainX),
		TestSamples:  len(testX),
		Features:     datatypes.JSON(featuresJSON),
		ModelPath:    modelPath,
	}
	if err := s.modelRepo.SaveAsActive(ctx, model); err != nil {
		return nil, fmt.Errorf("failed to persist trained model: %w", err)
	}

	s.logger.Info("Model trained",
		logger.StringField("version", version),
		logger.Field("accuracy", accuracy),
		logger.Field("f1", f1),
		logger.IntField("train_samples", len(trainX)),
		logger.IntField("test_samples", len(testX)),
	)
	if s.notifier != nil {
		if err := s.notifier.SendMessage(telegram.FormatTrainSummary(version, accuracy, f1)); err != nil {
			s.logger.Warn("Failed to send training notification", logger.ErrorField(err))
		}
	}

	return &dto.TrainResult{
		Version:      version,
		Algorithm:    algorithmSoftmax,
		Accuracy:     accuracy,
		Precision:    precision,
		Recall:       recall,
		F1Score:      f1,
		TrainSamples: len(trainX),
		TestSamples:  len(testX),
		ModelPath:    modelPath,
	}, nil
}

func (s *trainingService) Predict(ctx context.Context, code string) (*dto.PredictionResponse, error) {
	model, err := s.modelRepo.FindActive(ctx)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, ErrNoActiveModel
	}

	artifact, err := s.loadArtifact(model)
	if err != nil {
		return nil, err
	}

	record, err := s.refinedRepo.FindLatestByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoData, code)
	}

	x := applyScaler([][]float64{featureVector(record)}, artifact.Means, artifact.Stds)[0]
	class, probs := argmaxSoftmax(x, artifact.Weights)

	featureMap := make(map[string]float64, len(common.FeatureColumns))
	for i, name := range common.FeatureColumns {
		featureMap[name] = featureVector(record)[i]
	}

	return &dto.PredictionResponse{
		Code:           record.Code,
		Name:           record.Name,
		Recommendation: classNames[class],
		Confidence:     probs[class] * 100,
		Probabilities: map[string]float64{
			"sell": probs[common.LabelSell] * 100,
			"hold": probs[common.LabelHold] * 100,
			"buy":  probs[common.LabelBuy] * 100,
		},
		ReferenceDate: record.ReferenceDate,
		ModelVersion:  model.Version,
		Features:      featureMap,
	}, nil
}

func (s *trainingService) Metrics(ctx context.Context) (*dto.MetricsResponse, error) {
	active, err := s.modelRepo.FindActive(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, ErrNoActiveModel
	}

	history, err := s.modelRepo.FindRecent(ctx, 10)
	if err != nil {
		return nil, err
	}

	var dist dto.LabelDistribution
	if dist.Total, err = s.refinedRepo.Count(ctx); err != nil {
		return nil, err
	}
	if dist.Buy, err = s.refinedRepo.CountByLabel(ctx, float64(common.LabelBuy)); err != nil {
		return nil, err
	}
	if dist.Hold, err = s.refinedRepo.CountByLabel(ctx, float64(common.LabelHold)); err != nil {
		return nil, err
	}
	if dist.Sell, err = s.refinedRepo.CountByLabel(ctx, float64(common.LabelSell)); err != nil {
		return nil, err
	}

	return &dto.MetricsResponse{
		ActiveModel:  active,
		History:      history,
		Distribution: dist,
	}, nil
}

func (s *trainingService) saveArtifact(artifact *modelArtifact) (string, error) {
	if err := os.MkdirAll(s.modelsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create models dir: %w", err)
	}
	path := filepath.Join(s.modelsDir, fmt.Sprintf("model_ibov_%s.json", artifact.Version))
	raw, err := json.Marshal(artifact)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("failed to write model artifact: %w", err)
	}
	return path, nil
}

func (s *trainingService) loadArtifact(model *entity.TrainedModel) (*modelArtifact, error) {
	if cached, ok := s.artifactCache.Get(model.Version); ok {
		return cached.(*modelArtifact), nil
	}
	raw, err := os.ReadFile(model.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}
	var artifact modelArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, fmt.Errorf("corrupt model artifact %s: %w", model.ModelPath, err)
	}
	s.artifactCache.Set(model.Version, &artifact, gocache.DefaultExpiration)
	return &artifact, nil
}

// featureVector flattens a refined row into the fixed training layout,
// substituting zero where a feature is undefined.
func featureVector(r *entity.RefinedData) []float64 {
	deref := func(p *float64) float64 {
		if p == nil {
			return 0
		}
		return *p
	}
	return []float64{
		r.ParticipationPct,
		r.TheoreticalQty,
		float64(r.TypeON),
		float64(r.TypePN),
		deref(r.VariationPct),
		deref(r.RollingMean7d),
		deref(r.RollingStdDev7d),
	}
}

func checkClassBalance(labels []int) error {
	counts := make(map[int]int, numClasses)
	for _, l := range labels {
		counts[l]++
	}
	minCount := int(math.Ceil(float64(len(labels)) * minClassRatio))
	for class := 0; class < numClasses; class++ {
		if counts[class] < minCount {
			return fmt.Errorf("%w: class %s has %d of %d training rows",
				ErrImbalancedClasses, classNames[class], counts[class], len(labels))
		}
	}
	return nil
}

// fitScaler computes per-column mean and standard deviation. Constant columns
// get a unit deviation so scaling stays defined.
func fitScaler(rows [][]float64) (means, stds []float64) {
	dims := len(rows[0])
	means = make([]float64, dims)
	stds = make([]float64, dims)
	n := float64(len(rows))

	for j := 0; j < dims; j++ {
		var sum float64
		for _, row := range rows {
			sum += row[j]
		}
		means[j] = sum / n

		var sq float64
		for _, row := range rows {
			d := row[j] - means[j]
			sq += d * d
		}
		stds[j] = math.Sqrt(sq / n)
		if stds[j] == 0 {
			stds[j] = 1
		}
	}
	return means, stds
}

func applyScaler(rows [][]float64, means, stds []float64) [][]float64 {
	scaled := make([][]float64, len(rows))
	for i, row := range rows {
		out := make([]float64, len(row))
		for j, v := range row {
			out[j] = (v - means[j]) / stds[j]
		}
		scaled[i] = out
	}
	return scaled
}

// trainSoftmax fits multinomial logistic regression with full-batch gradient
// descent and L2 regularization. Returns the (features+1)×classes weight
// matrix, last row is the bias.
func trainSoftmax(rows [][]float64, labels []int) [][]float64 {
	n := len(rows)
	dims := len(rows[0])

	x := mat.NewDense(n, dims+1, nil)
	for i, row := range rows {
		for j, v := range row {
			x.Set(i, j, v)
		}
		x.Set(i, dims, 1) // bias column
	}

	y := mat.NewDense(n, numClasses, nil)
	for i, label := range labels {
		y.Set(i, label, 1)
	}

	w := mat.NewDense(dims+1, numClasses, nil)
	var logits, probs, diff, grad mat.Dense

	for epoch := 0; epoch < gdEpochs; epoch++ {
		logits.Mul(x, w)
		softmaxRows(&probs, &logits)

		diff.Sub(&probs, y)
		grad.Mul(x.T(), &diff)
		grad.Scale(1/float64(n), &grad)

		var reg mat.Dense
		reg.Scale(gdL2, w)
		grad.Add(&grad, &reg)

		grad.Scale(gdLearningRate, &grad)
		w.Sub(w, &grad)
	}

	weights := make([][]float64, dims+1)
	for i := range weights {
		weights[i] = make([]float64, numClasses)
		for j := 0; j < numClasses; j++ {
			weights[i][j] = w.At(i, j)
		}
	}
	return weights
}

func softmaxRows(dst *mat.Dense, logits *mat.Dense) {
	r, c := logits.Dims()
	dst.Reset()
	dst.ReuseAs(r, c)
	for i := 0; i < r; i++ {
		maxLogit := math.Inf(-1)
		for j := 0; j < c; j++ {
			if v := logits.At(i, j); v > maxLogit {
				maxLogit = v
			}
		}
		var sum float64
		for j := 0; j < c; j++ {
			e := math.Exp(logits.At(i, j) - maxLogit)
			dst.Set(i, j, e)
			sum += e
		}
		for j := 0; j < c; j++ {
			dst.Set(i, j, dst.At(i, j)/sum)
		}
	}
}

// argmaxSoftmax scores one scaled feature vector against the weight matrix
// and returns the winning class with the full probability vector.
func argmaxSoftmax(x []float64, weights [][]float64) (int, []float64) {
	logits := make([]float64, numClasses)
	for j := 0; j < numClasses; j++ {
		sum := weights[len(weights)-1][j] // bias
		for i, v := range x {
			sum += v * weights[i][j]
		}
		logits[j] = sum
	}

	maxLogit := math.Inf(-1)
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	probs := make([]float64, numClasses)
	var total float64
	for j, v := range logits {
		probs[j] = math.Exp(v - maxLogit)
		total += probs[j]
	}
	best := 0
	for j := range probs {
		probs[j] /= total
		if probs[j] > probs[best] {
			best = j
		}
	}
	return best, probs
}

// classificationMetrics computes accuracy and class-weighted precision,
// recall and F1 from predicted vs actual labels.
func classificationMetrics(actual, predicted []int) (accuracy, precision, recall, f1 float64) {
	if len(actual) == 0 {
		return 0, 0, 0, 0
	}

	var confusion [numClasses][numClasses]int
	correct := 0
	for i := range actual {
		confusion[actual[i]][predicted[i]]++
		if actual[i] == predicted[i] {
			correct++
		}
	}
	accuracy = float64(correct) / float64(len(actual))

	total := float64(len(actual))
	for class := 0; class < numClasses; class++ {
		var support, predictedAs int
		for j := 0; j < numClasses; j++ {
			support += confusion[class][j]
			predictedAs += confusion[j][class]
		}
		tp := float64(confusion[class][class])

		var p, r float64
		if predictedAs > 0 {
			p = tp / float64(predictedAs)
		}
		if support > 0 {
			r = tp / float64(support)
		}
		var classF1 float64
		if p+r > 0 {
			classF1 = 2 * p * r / (p + r)
		}

		weight := float64(support) / total
		precision += p * weight
		recall += r * weight
		f1 += classF1 * weight
	}
	return accuracy, precision, recall, f1
}
