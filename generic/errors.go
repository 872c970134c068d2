/*
errors.go - Centralized error types for the engine

PURPOSE:
  All sentinel errors in one place for consistency and discoverability.
  Domain packages wrap these with additional context.

ERROR CATEGORIES:
  1. Store errors - persistence failures and missing capabilities
  2. Lookup errors - missing records

USAGE:
  if errors.Is(err, generic.ErrStoreRequired) {
      // store cannot refresh its cache; continue with cached data
  }

SEE ALSO:
  - leave/errors.go: PersistError wraps write-back failures
*/
package generic

import (
	"errors"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEntityNotFound is returned when a referenced employee doesn't exist.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrStoreRequired is returned when an operation requires a specific store capability.
	ErrStoreRequired = errors.New("operation requires extended store interface")

	// ErrWriteFailed is returned when a batch write-back cannot be persisted.
	ErrWriteFailed = errors.New("write failed")
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}

// IsWriteFailure returns true if the error came from persisting results.
func IsWriteFailure(err error) bool {
	return errors.Is(err, ErrWriteFailed)
}
