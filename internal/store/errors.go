package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidName  = errors.New("invalid name")
	ErrUnknownOp    = errors.New("unknown query operation")
)

// duplicateKeyError wraps ErrDuplicateKey with the backend's message.
func duplicateKeyError(msg string) error {
	return fmt.Errorf("%w: %s", ErrDuplicateKey, msg)
}
