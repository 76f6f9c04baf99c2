// Package shared contains common domain types, errors, and events that are
// used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrFutureTimestamp = errors.New("timestamp cannot be in the future")

	// State errors
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrAlreadyFinalized  = errors.New("already finalized")

	// Progress errors
	ErrInsufficientBalance = errors.New("insufficient XP balance")
	ErrInsufficientSample  = errors.New("insufficient history sample")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "profile", "task", "goal"
	Op      string // Operation that failed, e.g., "Transition", "Finalize"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Profile domain errors
var (
	ErrProfileNotFound      = NewDomainError("profile", "Find", ErrNotFound, "profile not found")
	ErrProfileAlreadyExists = NewDomainError("profile", "Create", ErrAlreadyExists, "profile already exists")
	ErrInvalidUserID        = NewDomainError("profile", "Validate", ErrInvalidID, "invalid user ID")
	ErrCannotAfford         = NewDomainError("profile", "Spend", ErrInsufficientBalance, "XP balance below cost")
)

// Task domain errors
var (
	ErrTaskNotFound       = NewDomainError("task", "Find", ErrNotFound, "task not found")
	ErrTaskTerminal       = NewDomainError("task", "Transition", ErrInvalidTransition, "task is in a terminal state")
	ErrInvalidDifficulty  = NewDomainError("task", "Validate", ErrInvalidInput, "invalid difficulty tier")
	ErrInvalidScore       = NewDomainError("task", "Complete", ErrValueOutOfRange, "score must be between 0 and 100")
	ErrTaskNotTransitable = NewDomainError("task", "Transition", ErrInvalidTransition, "transition not allowed from current state")
)

// Goal domain errors
var (
	ErrGoalNotFound       = NewDomainError("goal", "Find", ErrNotFound, "goal not found")
	ErrGoalFinalized      = NewDomainError("goal", "Update", ErrAlreadyFinalized, "goal is already finalized")
	ErrActiveGoalExists   = NewDomainError("goal", "Create", ErrAlreadyExists, "an active goal already exists for this kind")
	ErrNotEnoughHistory   = NewDomainError("goal", "Retarget", ErrInsufficientSample, "not enough finalized goals to evaluate")
	ErrInvalidGoalPeriod  = NewDomainError("goal", "Validate", ErrInvalidInput, "goal period end precedes start")
	ErrInvalidTargetCount = NewDomainError("goal", "Validate", ErrValueOutOfRange, "target task count out of bounds")
)

// Achievement domain errors
var (
	ErrAchievementNotFound = NewDomainError("achievement", "Find", ErrNotFound, "achievement not found")
	ErrAlreadyEarned       = NewDomainError("achievement", "Award", ErrAlreadyExists, "achievement already earned")
	ErrUnknownReward       = NewDomainError("achievement", "Apply", ErrInvalidInput, "unknown reward variant")
)

// Activity domain errors
var (
	ErrSessionNotFound  = NewDomainError("activity", "FindSession", ErrNotFound, "focus session not found")
	ErrSessionFinalized = NewDomainError("activity", "Finalize", ErrAlreadyFinalized, "session already finalized")
	ErrSnapshotExists   = NewDomainError("activity", "Snapshot", ErrAlreadyExists, "KPI snapshot already written for this day")
	ErrInvalidWindow    = NewDomainError("activity", "Compute", ErrValueOutOfRange, "window must be at least one day")
)

// External collaborator errors
var (
	ErrGeneratorUnavailable = NewDomainError("generator", "Request", ErrServiceUnavailable, "task generator is unavailable")
	ErrGeneratorTimeout     = NewDomainError("generator", "Request", ErrTimeout, "task generator request timeout")
	ErrEvaluatorUnavailable = NewDomainError("evaluator", "Request", ErrServiceUnavailable, "answer evaluator is unavailable")
	ErrEvaluatorBadResponse = NewDomainError("evaluator", "Parse", ErrInvalidInput, "invalid response from answer evaluator")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is a uniqueness violation.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsInvalidTransition checks if the error is a lifecycle violation.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsInsufficientBalance checks if the error is a failed affordability check.
func IsInsufficientBalance(err error) bool {
	return errors.Is(err, ErrInsufficientBalance)
}

// IsInsufficientSample reports the defined no-op outcome of retargeting
// attempted before minimum history exists.
func IsInsufficientSample(err error) bool {
	return errors.Is(err, ErrInsufficientSample)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
