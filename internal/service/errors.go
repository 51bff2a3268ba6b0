package service

import "errors"

var (
	// ErrInsufficientData means the snapshot or refined store does not hold
	// enough rows for the requested operation. Surfaced, never retried.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrRefinementRunning means another refinement or training run holds the
	// pipeline lock.
	ErrRefinementRunning = errors.New("refinement already running")

	// ErrImbalancedClasses means the training split does not contain enough
	// samples of every class.
	ErrImbalancedClasses = errors.New("training classes too imbalanced, refine the dataset again")

	// ErrNoActiveModel means no trained model is available for prediction.
	ErrNoActiveModel = errors.New("no trained model available")

	// ErrNoData means no refined row exists for the requested asset.
	ErrNoData = errors.New("no refined data for asset")
)
