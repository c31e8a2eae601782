package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hyperengineering/docservice/internal/filter"
	"github.com/hyperengineering/docservice/internal/store"
)

var (
	// ErrConflict matches errors produced from storage uniqueness violations.
	ErrConflict = errors.New("conflict")

	// ErrStageValue indicates a filter forwarded a value of the wrong type
	// for its stage.
	ErrStageValue = errors.New("unexpected stage value")

	// ErrNoResponse indicates an operation finished without its terminal
	// callback being reached.
	ErrNoResponse = errors.New("operation finished without a response")

	// ErrEmptyResponse indicates the terminal callback was reached with
	// neither a result nor an error.
	ErrEmptyResponse = errors.New("operation responded without a result or an error")

	// ErrNotSetup indicates Lookup was called before Setup.
	ErrNotSetup = errors.New("service not set up")
)

// ConflictError is returned when a write violates a uniqueness constraint.
// Message carries the storage engine's message.
type ConflictError struct {
	Message string
	Err     error
}

func (e *ConflictError) Error() string {
	return e.Message
}

// Is reports whether target is ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Unwrap returns the storage error.
func (e *ConflictError) Unwrap() error {
	return e.Err
}

// normalizeError translates duplicate-key errors into conflicts and passes
// every other error through unchanged after logging it.
func normalizeError(op filter.Operation, err error) error {
	if errors.Is(err, store.ErrDuplicateKey) {
		slog.Debug("duplicate key translated to conflict",
			"component", "service",
			"operation", string(op),
			"error", err,
		)
		return &ConflictError{Message: err.Error(), Err: err}
	}
	level := slog.LevelError
	if errors.Is(err, store.ErrNotFound) {
		level = slog.LevelDebug
	}
	slog.Log(context.Background(), level, "operation failed",
		"component", "service",
		"operation", string(op),
		"error", err,
	)
	return err
}
