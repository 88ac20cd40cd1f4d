package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound        = errors.New("resource not found")
	ErrClusterNotFound = fmt.Errorf("%w: cluster", ErrNotFound)
	ErrCaseNotFound    = fmt.Errorf("%w: case", ErrNotFound)
	ErrResultNotFound  = fmt.Errorf("%w: detection result", ErrNotFound)

	// Configuration errors - fatal at detector construction time
	ErrInvalidConfig       = errors.New("invalid detector configuration")
	ErrUnknownBoundaryType = fmt.Errorf("%w: unknown boundary type", ErrInvalidConfig)

	// Data errors - reject the offending record, never the batch
	ErrInvalidRecord = errors.New("invalid case record")
	ErrMissingDate   = fmt.Errorf("%w: missing report date", ErrInvalidRecord)
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewConfigError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, field, reason)
}

func NewRecordError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidRecord, field, reason)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

func IsRecordError(err error) bool {
	return errors.Is(err, ErrInvalidRecord)
}
