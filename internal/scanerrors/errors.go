package scanerrors

import (
	"errors"
	"fmt"
)

// Base error types
var (
	// ErrUnknownThesis is fatal: the run never starts.
	ErrUnknownThesis = errors.New("unknown thesis type")
	// ErrRunConflict signals a second trigger on an already-active run.
	// It is rejected synchronously, never queued.
	ErrRunConflict = errors.New("scan request already has an active run")
	// ErrProviderUnavailable marks a provider exhausted for a claim after
	// the retry cap.
	ErrProviderUnavailable = errors.New("evidence provider unavailable")
	// ErrGenerationInvalid marks LLM output that failed citation validation.
	ErrGenerationInvalid = errors.New("generated section failed validation")
	// ErrPersistence is fatal for a stage: it aborts without partial commit.
	ErrPersistence = errors.New("persistence failure")
	// ErrNotFound marks a lookup for a row that does not exist.
	ErrNotFound = errors.New("not found")
)

// ProviderError wraps a failure from an evidence provider call. Transient
// errors are retried with backoff; permanent ones mark the provider
// unavailable for the claim.
type ProviderError struct {
	Provider  string
	Transient bool
	Cause     error
}

func (e *ProviderError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("provider %s: %s error: %v", e.Provider, kind, e.Cause)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a provider error.
func NewProviderError(provider string, transient bool, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Transient: transient, Cause: cause}
}

// IsTransient reports whether err is a retryable provider error.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return false
}

// ConfigError represents a configuration-level failure. Configuration errors
// are fatal: no run starts with a broken template or config file.
type ConfigError struct {
	File  string
	Field string
	Cause error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in %s (%s): %v", e.File, e.Field, e.Cause)
	}
	return fmt.Sprintf("config error in %s: %v", e.File, e.Cause)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a configuration error.
func NewConfigError(file, field string, cause error) *ConfigError {
	return &ConfigError{File: file, Field: field, Cause: cause}
}

// FailsRun reports whether err is structural, i.e. should fail the whole
// workflow run rather than be absorbed as a knowledge gap.
func FailsRun(err error) bool {
	if err == nil {
		return false
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return true
	}
	return errors.Is(err, ErrUnknownThesis) ||
		errors.Is(err, ErrRunConflict) ||
		errors.Is(err, ErrPersistence)
}
