package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrApplicationNotFound is returned when an application cannot be found
	ErrApplicationNotFound = errors.New("application not found")

	// ErrCheckInNotFound is returned when a check-in cannot be found
	ErrCheckInNotFound = errors.New("check-in not found")

	// ErrTransactionNotFound is returned when a transaction cannot be found
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrEscrowNotFound is returned when no escrow exists for an application
	ErrEscrowNotFound = errors.New("escrow not found")

	// ErrPayoutNotFound is returned when a payout cannot be found
	ErrPayoutNotFound = errors.New("payout not found")
)

// ValidationError reports bad input shape or range. It is always raised
// before any mutation takes place.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InvalidTransitionError reports a state machine violation, naming the
// current and the requested status. No partial mutation occurs.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition %s from %s to %s", e.Entity, e.From, e.To)
}

// NewInvalidTransition builds an InvalidTransitionError.
func NewInvalidTransition(entity, from, to string) error {
	return &InvalidTransitionError{Entity: entity, From: from, To: to}
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}

// UnauthorizedError reports an actor/ownership mismatch.
type UnauthorizedError struct {
	Msg string
}

func (e *UnauthorizedError) Error() string {
	return e.Msg
}

// NewUnauthorized builds an UnauthorizedError from a format string.
func NewUnauthorized(format string, args ...any) error {
	return &UnauthorizedError{Msg: fmt.Sprintf(format, args...)}
}

// IsUnauthorized reports whether err is an UnauthorizedError.
func IsUnauthorized(err error) bool {
	var ue *UnauthorizedError
	return errors.As(err, &ue)
}

// ConflictError reports a state conflict: capacity full, duplicate
// application, already checked in/out, escrow no longer held.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string {
	return e.Msg
}

// NewConflict builds a ConflictError from a format string.
func NewConflict(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// TooFarError rejects a check-in attempted outside the GPS gate around
// the job site. Distances are reported in meters.
type TooFarError struct {
	DistanceM float64
	RadiusM   float64
}

func (e *TooFarError) Error() string {
	return fmt.Sprintf("too far from job location: %.0f m away, must be within %.0f m", e.DistanceM, e.RadiusM)
}

// NewTooFar builds a TooFarError from distances in meters.
func NewTooFar(distanceM, radiusM float64) error {
	return &TooFarError{DistanceM: distanceM, RadiusM: radiusM}
}

// IsTooFar reports whether err is a TooFarError.
func IsTooFar(err error) bool {
	var te *TooFarError
	return errors.As(err, &te)
}

// UpstreamError wraps a failed payment-provider call. Hold creation and
// refunds propagate it to the caller; capture and payout failures are logged
// and leave entities in a recoverable intermediate state.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("psp %s failed: %s", e.Op, e.Err.Error())
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstream wraps err as an UpstreamError for the named PSP operation.
func NewUpstream(op string, err error) error {
	return &UpstreamError{Op: op, Err: err}
}

// IsUpstream reports whether err is an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
