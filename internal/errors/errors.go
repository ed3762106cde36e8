package errors

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// ErrInvalidInput is returned when a phrase, prefix or limit fails validation
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable is returned when the counter store cannot be reached
	ErrStoreUnavailable = errors.New("counter store unavailable")

	// ErrStoreTimeout is returned when a counter store call exceeds its deadline.
	// Errors matching ErrStoreTimeout also match ErrStoreUnavailable.
	ErrStoreTimeout = errors.New("counter store timeout")

	// ErrMalformedNotification is returned when a change notification cannot be decoded
	ErrMalformedNotification = errors.New("malformed change notification")

	// ErrSubscriptionFailure is returned when the change channel cannot be subscribed to
	ErrSubscriptionFailure = errors.New("subscription failure")

	// ErrNotBootstrapped is returned when the index is used before its initial snapshot was loaded
	ErrNotBootstrapped = errors.New("index not bootstrapped")

	// ErrJobNotFound is returned when a job is not found
	ErrJobNotFound = errors.New("job not found")
)

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// StoreUnavailableError wraps a failed counter store operation
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	if e.Timeout() {
		return fmt.Sprintf("counter store %s timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("counter store %s failed: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Is(target error) bool {
	if target == ErrStoreUnavailable {
		return true
	}
	return target == ErrStoreTimeout && e.Timeout()
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the operation failed because its deadline expired.
func (e *StoreUnavailableError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// NewStoreUnavailableError creates a new StoreUnavailableError
func NewStoreUnavailableError(op string, err error) *StoreUnavailableError {
	return &StoreUnavailableError{Op: op, Err: err}
}

// MalformedNotificationError carries the payload that failed to decode
type MalformedNotificationError struct {
	Payload string
	Err     error
}

func (e *MalformedNotificationError) Error() string {
	return fmt.Sprintf("malformed change notification %q: %v", e.Payload, e.Err)
}

func (e *MalformedNotificationError) Is(target error) bool {
	return target == ErrMalformedNotification
}

func (e *MalformedNotificationError) Unwrap() error {
	return e.Err
}

// NewMalformedNotificationError creates a new MalformedNotificationError
func NewMalformedNotificationError(payload []byte, err error) *MalformedNotificationError {
	return &MalformedNotificationError{Payload: string(payload), Err: err}
}

// SubscriptionError represents a failed subscribe call on a change channel
type SubscriptionError struct {
	Channel string
	Err     error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("failed to subscribe to channel '%s': %v", e.Channel, e.Err)
}

func (e *SubscriptionError) Is(target error) bool {
	return target == ErrSubscriptionFailure
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// NewSubscriptionError creates a new SubscriptionError
func NewSubscriptionError(channel string, err error) *SubscriptionError {
	return &SubscriptionError{Channel: channel, Err: err}
}

// JobNotFoundError represents a job not found error with context
type JobNotFoundError struct {
	JobID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job with ID '%s' not found", e.JobID)
}

func (e *JobNotFoundError) Is(target error) bool {
	return target == ErrJobNotFound
}

// NewJobNotFoundError creates a new JobNotFoundError
func NewJobNotFoundError(jobID string) *JobNotFoundError {
	return &JobNotFoundError{JobID: jobID}
}
