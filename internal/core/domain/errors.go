package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDatasetNotFound indicates an unknown dataset identifier.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrIndexNotReady indicates a query arrived before any index was
	// successfully built for the dataset.
	ErrIndexNotReady = errors.New("index not ready")

	// ErrBuildInProgress indicates a build is already running for the
	// dataset. Informational: callers that only need the result wait
	// on the running build instead of treating this as a failure.
	ErrBuildInProgress = errors.New("build in progress")

	// ErrArchiveMissing indicates the dataset has no archive to index.
	ErrArchiveMissing = errors.New("archive missing")

	// ErrUnsupportedFile indicates no decoder handles the file kind.
	ErrUnsupportedFile = errors.New("unsupported file kind")
)

// BuildError is returned when a build attempt fails. It carries the
// partial build report; the dataset reverts to its prior Ready index
// or stays Absent.
type BuildError struct {
	DatasetID string
	Report    BuildReport
	Err       error
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed for dataset %s: %v", e.DatasetID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *BuildError) Unwrap() error {
	return e.Err
}
