package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound indicates the job id does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrStaleTransition indicates a compare-and-set status update found the
	// job in none of the allowed from-statuses. Duplicate deliveries land here.
	ErrStaleTransition = errors.New("stale status transition")

	// ErrNoFaceDetected indicates analysis found no usable face.
	ErrNoFaceDetected = errors.New("no face detected in photo")

	// ErrInferenceUnavailable indicates both the remote and the local
	// inference paths failed.
	ErrInferenceUnavailable = errors.New("inference unavailable")

	// ErrInvalidPayload indicates a queue message that cannot be processed.
	ErrInvalidPayload = errors.New("invalid message payload")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for a field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// InvalidJobStateError reports an operation attempted against a job whose
// current status does not permit it.
type InvalidJobStateError struct {
	JobID    string
	Current  Status
	Expected []Status
}

func (e *InvalidJobStateError) Error() string {
	return fmt.Sprintf("job %s is %s, expected one of %v", e.JobID, e.Current, e.Expected)
}

// ManifestInvalidError reports a manifest that failed structural validation.
type ManifestInvalidError struct {
	Slug   string
	Reason string
}

func (e *ManifestInvalidError) Error() string {
	return fmt.Sprintf("manifest %s invalid: %s", e.Slug, e.Reason)
}

// SizeMismatchError reports inference output whose dimensions do not match
// the manifest's page geometry. Never retried.
type SizeMismatchError struct {
	PageNum      int
	GotW, GotH   int
	WantW, WantH int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("page %d output %dx%d does not match required %dx%d",
		e.PageNum, e.GotW, e.GotH, e.WantW, e.WantH)
}

// RetryableError wraps a transient infrastructure failure. The worker
// requeues deliveries that fail with it, within the redelivery budget.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError wraps err as retryable.
func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err should lead to a redelivery.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// FailureCodeFor maps a pipeline error to the code persisted on the job.
func FailureCodeFor(err error) FailureCode {
	var mi *ManifestInvalidError
	var sm *SizeMismatchError
	switch {
	case errors.Is(err, ErrNoFaceDetected):
		return FailureNoFaceDetected
	case errors.Is(err, ErrInferenceUnavailable):
		return FailureInferenceUnavailable
	case errors.As(err, &mi):
		return FailureManifestInvalid
	case errors.As(err, &sm):
		return FailureSizeMismatch
	default:
		return FailureInternal
	}
}
