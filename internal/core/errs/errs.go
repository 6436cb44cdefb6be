// Package errs defines the error taxonomy shared across the federated
// learning client. Lower layers return these directly; the orchestration
// layer converts them into structured results for callers.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired is returned by operations that need a bearer token
	// when none is stored or the stored one has expired.
	ErrAuthRequired = errors.New("authentication required")

	// ErrInsufficientData is returned when training is requested with
	// fewer buffered samples than the minimum dataset size.
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrAlreadyTraining is returned when a training run is requested
	// while another one is still in flight.
	ErrAlreadyTraining = errors.New("training already in progress")

	// ErrShapeMismatch is returned when a feature vector's arity does not
	// match the loaded model's input shape.
	ErrShapeMismatch = errors.New("feature shape does not match model input shape")

	// ErrNotConnected is returned by realtime channel operations invoked
	// while the channel is disconnected.
	ErrNotConnected = errors.New("realtime channel not connected")

	// ErrNoModel is returned when an operation requires a loaded model and
	// none is available.
	ErrNoModel = errors.New("no local model available")
)

// NetworkError wraps a failed HTTP call against the coordination server.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s (%s): %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StorageError wraps a failed local store operation.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s of %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ConnectionError wraps a realtime channel failure.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error (%s): %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
