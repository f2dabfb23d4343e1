package apperrors

import (
	"errors"
	"fmt"
)

// RetryableError marks a failure worth redelivering: the consumer naks the
// message and JetStream schedules another attempt.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryable wraps err as a RetryableError with a formatted message,
// preserving the chain for errors.Is/As.
func NewRetryable(err error, message string, args ...interface{}) error {
	format := message + ": %w"
	allArgs := append(args, err)
	return &RetryableError{Err: fmt.Errorf(format, allArgs...)}
}

// FatalError marks a failure that redelivery cannot fix, such as a payload
// that will never parse. The consumer terminates the message instead of
// naking it.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatal wraps err as a FatalError with a formatted message, preserving
// the chain for errors.Is/As.
func NewFatal(err error, message string, args ...interface{}) error {
	format := message + ": %w"
	allArgs := append(args, err)
	return &FatalError{Err: fmt.Errorf(format, allArgs...)}
}

// Sentinel errors for the conditions the pipeline branches on. Handlers wrap
// them in RetryableError or FatalError to steer redelivery.
var (
	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrValidation indicates a payload failed struct validation.
	ErrValidation = errors.New("validation failed")
	// ErrDatabase indicates a database interaction error.
	ErrDatabase = errors.New("database error")
	// ErrNATS indicates a NATS communication error.
	ErrNATS = errors.New("nats communication error")
	// ErrUnauthorized indicates a request outside the caller's tenant or
	// with a bad webhook token.
	ErrUnauthorized = errors.New("unauthorized access")
	// ErrDuplicate indicates a unique-constraint conflict.
	ErrDuplicate = errors.New("duplicate resource")
	// ErrBadRequest indicates a malformed payload or parameter.
	ErrBadRequest = errors.New("bad request")
	// ErrTimeout indicates an operation ran out of time.
	ErrTimeout = errors.New("operation timeout")
)

// IsRetryable checks if the error is a RetryableError or wraps one.
func IsRetryable(err error) bool {
	var target *RetryableError
	return errors.As(err, &target)
}

// IsFatal checks if the error is a FatalError or wraps one.
func IsFatal(err error) bool {
	var target *FatalError
	return errors.As(err, &target)
}

// IsNATSError checks if the error is or wraps ErrNATS.
func IsNATSError(err error) bool {
	return errors.Is(err, ErrNATS)
}
