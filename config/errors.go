package config

import "github.com/agilira/go-errors"

// Error codes returned by this package.
const (
	ErrCodeInvalidConfig errors.ErrorCode = "RESREPO_INVALID_CONFIG"
	ErrCodeLoadFailed    errors.ErrorCode = "RESREPO_CONFIG_LOAD_FAILED"
)

const (
	msgInvalidConfig = "invalid configuration"
	msgLoadFailed    = "failed to load configuration"
)

func newErrInvalid(field string, value any, reason string) error {
	return errors.NewWithContext(ErrCodeInvalidConfig, msgInvalidConfig, map[string]interface{}{
		"field":  field,
		"value":  value,
		"reason": reason,
	})
}

func newErrLoad(source string, cause error) error {
	return errors.Wrap(cause, ErrCodeLoadFailed, msgLoadFailed).
		WithContext("source", source)
}

// IsInvalidConfig reports whether err reports a bad setting.
func IsInvalidConfig(err error) bool { return errors.HasCode(err, ErrCodeInvalidConfig) }

// IsLoadFailed reports whether err comes from reading or parsing a source.
func IsLoadFailed(err error) bool { return errors.HasCode(err, ErrCodeLoadFailed) }
