/*
errors.go - Centralized error types for the points domain

PURPOSE:
  All domain errors in one place. Callers classify failures with
  errors.Is; structured errors carry context and unwrap to a sentinel.

ERROR CATEGORIES:
  1. Lookup errors    - user/prize/request absent
  2. Business errors  - insufficient points, role checks, lost races
  3. Integrity errors - referential inconsistency found at read time
  4. Infrastructure   - store unreachable or failing

USAGE:
  if errors.Is(err, points.ErrInsufficientPoints) { ... }

  var short *points.InsufficientPointsError
  if errors.As(err, &short) { fmt.Println(short.Shortfall()) }
*/
package points

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrPrizeNotFound is returned when the referenced prize does not exist.
	ErrPrizeNotFound = errors.New("prize not found")

	// ErrRequestNotFound is returned when the referenced request does not exist.
	ErrRequestNotFound = errors.New("request not found")

	// ErrUnauthorized is returned when the acting user lacks the required role.
	ErrUnauthorized = errors.New("actor lacks required role")

	// ErrInsufficientPoints is returned when a debit would exceed the balance.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrNotRequestable is returned for prizes outside the request workflow:
	// the catalog flag is off or the price is negotiated rather than numeric.
	ErrNotRequestable = errors.New("prize is not requestable")

	// ErrAlreadyResolved is returned when a grant or cancel loses the race
	// on a request that has already reached a terminal state.
	ErrAlreadyResolved = errors.New("request already resolved")

	// ErrDataIntegrity is returned when stored data references a row that
	// no longer exists (e.g. a request pointing at a deleted prize).
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrStoreUnavailable wraps infrastructure-level store failures.
	// The core never retries; the caller decides on retry/backoff.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientPointsError reports a debit that the balance cannot cover.
type InsufficientPointsError struct {
	Email   string
	Balance int64
	Price   int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points for %s: balance %d, price %d", e.Email, e.Balance, e.Price)
}

func (e *InsufficientPointsError) Unwrap() error { return ErrInsufficientPoints }

// Shortfall is how many points are missing.
func (e *InsufficientPointsError) Shortfall() int64 { return e.Price - e.Balance }

// StoreError wraps a low-level persistence failure so that callers can
// match both the infrastructure category and the underlying cause.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() []error { return []error{ErrStoreUnavailable, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error is any of the lookup failures.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrPrizeNotFound) ||
		errors.Is(err, ErrRequestNotFound)
}

// IsConflict reports whether the error is a lost concurrent race.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyResolved)
}

// IsClientError reports whether the failure is due to the caller's input
// or permissions rather than the system.
func IsClientError(err error) bool {
	return IsNotFound(err) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInsufficientPoints) ||
		errors.Is(err, ErrNotRequestable) ||
		errors.Is(err, ErrAlreadyResolved)
}
