package repository

import (
	"fmt"

	"github.com/agilira/go-errors"
)

// Error codes returned by the repository.
const (
	ErrCodeClosed         errors.ErrorCode = "RESREPO_CLOSED"
	ErrCodeProviderError  errors.ErrorCode = "RESREPO_PROVIDER_ERROR"
	ErrCodeProviderPanic  errors.ErrorCode = "RESREPO_PROVIDER_PANIC"
	ErrCodeInvalidOptions errors.ErrorCode = "RESREPO_INVALID_OPTIONS"
)

const (
	msgClosed         = "repository is closed"
	msgProviderError  = "provider returned an error"
	msgProviderPanic  = "provider panicked"
	msgInvalidOptions = "invalid repository options"
)

// ErrClosed is returned by Get after Close.
var ErrClosed error = errors.NewWithField(ErrCodeClosed, msgClosed, "component", "repository")

func newErrInvalidOptions(field, reason string) error {
	return errors.NewWithContext(ErrCodeInvalidOptions, msgInvalidOptions, map[string]interface{}{
		"field":  field,
		"reason": reason,
	})
}

func newErrProvider(key any, cause error) error {
	return errors.Wrap(cause, ErrCodeProviderError, msgProviderError).
		WithContext("key", fmt.Sprintf("%v", key))
}

func newErrProviderPanic(key any, value any) error {
	return errors.NewWithContext(ErrCodeProviderPanic, msgProviderPanic, map[string]interface{}{
		"key":         fmt.Sprintf("%v", key),
		"panic_value": fmt.Sprintf("%v", value),
	}).WithSeverity("critical")
}

// IsClosed reports whether err was caused by using a closed repository.
func IsClosed(err error) bool { return errors.HasCode(err, ErrCodeClosed) }

// IsProviderError reports whether err carries a provider failure.
func IsProviderError(err error) bool { return errors.HasCode(err, ErrCodeProviderError) }

// IsProviderPanic reports whether err carries a recovered provider panic.
func IsProviderPanic(err error) bool { return errors.HasCode(err, ErrCodeProviderPanic) }

// IsInvalidOptions reports whether err was returned by New for bad Options.
func IsInvalidOptions(err error) bool { return errors.HasCode(err, ErrCodeInvalidOptions) }
