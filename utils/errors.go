package utils

import (
	"github.com/pkg/errors"
)

// NewConfigValidationError returns an error specifying a config validation error at the given path.
func NewConfigValidationError(path string, err error) error {
	return errors.Wrapf(err, "error validating %q", path)
}

// UncheckedErrorFunc is used to call a function and discard its error, mostly
// from deferred Close calls on read-only resources.
func UncheckedErrorFunc(f func() error) {
	//nolint:errcheck
	_ = f()
}
