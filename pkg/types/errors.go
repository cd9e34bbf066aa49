package types

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransientProvider matches provider errors that are worth retrying
	ErrTransientProvider = errors.New("transient provider error")
	// ErrFatalProvider matches provider errors that must not be retried
	ErrFatalProvider = errors.New("fatal provider error")
	// ErrRetriesExhausted is returned once every retry attempt has failed
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrVectorStoreUnavailable is returned when the vector index cannot be reached
	ErrVectorStoreUnavailable = errors.New("vector store unavailable")
	// ErrAlreadyRunning is returned when indexing is started while a run is active
	ErrAlreadyRunning = errors.New("indexing already running")
	// ErrFileTooLarge marks files skipped by the size cutoff
	ErrFileTooLarge = errors.New("file exceeds maximum size")
)

// ProviderError is a failure reported by an embedding or LLM backend.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *ProviderError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed (%s, status %d): %v", e.Provider, e.Op, kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s failed (%s): %v", e.Provider, e.Op, kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the transient and fatal sentinels
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrTransientProvider:
		return e.Transient
	case ErrFatalProvider:
		return !e.Transient
	}
	return false
}

// NewTransientError wraps err as a retryable provider failure
func NewTransientError(provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Transient: true, Err: err}
}

// NewFatalError wraps err as a non-retryable provider failure
func NewFatalError(provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Transient: false, Err: err}
}

// NewHTTPError classifies a failed HTTP response by status code.
func NewHTTPError(provider, op string, status int, body string) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Op:         op,
		StatusCode: status,
		Transient:  IsTransientStatus(status),
		Err:        fmt.Errorf("api error %d: %s", status, body),
	}
}

// IsTransientStatus reports whether an HTTP status is worth retrying.
// 408, 429 and 5xx are transient; every other non-2xx status is fatal.
func IsTransientStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= 500
}

// IsTransient reports whether err should be retried. Errors that carry no
// classification are treated as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return true
}

// IsFatal reports whether err is a classified non-retryable provider error
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalProvider)
}

// VectorStoreError wraps a failure of the vector index backend
type VectorStoreError struct {
	Op  string
	Err error
}

func (e *VectorStoreError) Error() string {
	return fmt.Sprintf("vector store %s: %v", e.Op, e.Err)
}

func (e *VectorStoreError) Unwrap() error {
	return e.Err
}

func (e *VectorStoreError) Is(target error) bool {
	return target == ErrVectorStoreUnavailable
}

// NewVectorStoreError wraps err as a vector store outage for operation op
func NewVectorStoreError(op string, err error) error {
	return &VectorStoreError{Op: op, Err: err}
}

// ConfigurationError reports an invalid or incomplete configuration.
// It is raised before any work starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// AlreadyRunningError is returned when the single-flight guard rejects a run
type AlreadyRunningError struct {
	State IndexState
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("indexing already running (state: %s)", e.State)
}

func (e *AlreadyRunningError) Is(target error) bool {
	return target == ErrAlreadyRunning
}

// SkippedFileError reports a file excluded by the size cutoff
type SkippedFileError struct {
	Path  string
	Size  int64
	Limit int64
}

func (e *SkippedFileError) Error() string {
	return fmt.Sprintf("skipped %s: %d bytes exceeds limit of %d", e.Path, e.Size, e.Limit)
}

func (e *SkippedFileError) Unwrap() error {
	return ErrFileTooLarge
}
