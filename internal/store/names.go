package store

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MaxNameLength is the maximum length of a collection or service name.
	MaxNameLength = 128
	// MaxNameSegments is the maximum number of '/' separated segments.
	MaxNameSegments = 4
)

// Segment must start and end with alphanumeric, can contain hyphens and
// underscores in the middle.
var nameSegmentPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9_-]*[a-z0-9])?$`)

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ValidateName validates a collection or service name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, MaxNameLength)
	}

	segments := strings.Split(name, "/")
	if len(segments) > MaxNameSegments {
		return fmt.Errorf("%w: exceeds %d path segments", ErrInvalidName, MaxNameSegments)
	}
	for i, seg := range segments {
		if seg == "" {
			return fmt.Errorf("%w: empty segment at position %d", ErrInvalidName, i)
		}
		if !nameSegmentPattern.MatchString(seg) {
			return fmt.Errorf("%w: invalid segment %q (must be lowercase alphanumeric with hyphens or underscores)",
				ErrInvalidName, seg)
		}
	}
	return nil
}

// ValidateFieldName validates a document field path such as "email" or
// "profile.handle".
func ValidateFieldName(field string) error {
	if !fieldPattern.MatchString(field) {
		return fmt.Errorf("%w: invalid field %q", ErrInvalidName, field)
	}
	return nil
}
