package document

import "errors"

var (
	// ErrInvalidDirective indicates a sort, limit, skip or select value that
	// cannot be applied to a query.
	ErrInvalidDirective = errors.New("invalid query directive")

	// ErrInvalidCondition indicates a condition operator or operand the
	// matcher does not understand.
	ErrInvalidCondition = errors.New("invalid query condition")

	// ErrNoExecutor indicates a query built without a backend.
	ErrNoExecutor = errors.New("query has no executor")
)
