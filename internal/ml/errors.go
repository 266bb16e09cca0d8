package ml

import "errors"

var (
	// ErrDataInsufficient is returned when there are no interactions or no
	// products to train on.
	ErrDataInsufficient = errors.New("insufficient data to train recommendation models")

	// ErrTrainingConflict is returned when another training run holds the lock.
	ErrTrainingConflict = errors.New("training already in progress")

	ErrSnapshotNotFound = errors.New("model snapshot not found")
)
