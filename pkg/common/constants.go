package common

const (
	// RedisKeyPipelineLock serializes refinement and training runs across
	// processes. Both operations rewrite or read the full refined dataset.
	RedisKeyPipelineLock = "ml.pipeline.lock"

	// AdvisoryLockRefinement is the Postgres advisory lock id guarding the
	// delete-and-rewrite of refined_data.
	AdvisoryLockRefinement int64 = 792201

	LabelSell = 0
	LabelHold = 1
	LabelBuy  = 2
)

// FeatureColumns is the fixed feature-vector layout shared by the refinement
// pipeline, the trainer and the prediction path. Order matters.
var FeatureColumns = []string{
	"participation_pct",
	"theoretical_qty",
	"type_on",
	"type_pn",
	"variation_pct",
	"rolling_mean_7d",
	"rolling_stddev_7d",
}
