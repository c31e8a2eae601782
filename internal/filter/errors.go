package filter

import "errors"

// ErrNextNotCalled indicates a filter returned without continuing the chain
// or responding.
var ErrNextNotCalled = errors.New("filter returned without calling next")
