// Package planerrors defines typed pipeline assembly errors.
package planerrors

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ConfigurationError reports that the planner is missing a collaborator it
// cannot work without, e.g. a storage backend. It is raised before any
// graph mutation.
type ConfigurationError struct {
	Msg string
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	return e.Msg
}

// SetupError reports that a collaborator failed while the pipeline was
// being assembled: a factory could not produce a node, an interpolator is
// not registered, or join key resolution failed. It aborts the whole build
// for the query.
type SetupError struct {
	Msg    string
	Metric string
	Err    error
}

// Error implements error.
func (e *SetupError) Error() string {
	msg := e.Msg
	if e.Metric != "" {
		msg = fmt.Sprintf("metric %q: %s", e.Metric, e.Msg)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error, if any.
func (e *SetupError) Unwrap() error {
	return e.Err
}

// IsConfiguration reports whether err is a [ConfigurationError].
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsSetup reports whether err is a [SetupError].
func IsSetup(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}
