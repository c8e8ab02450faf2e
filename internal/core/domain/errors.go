package domain

import (
	"errors"
	"fmt"
)

// UserError marks a failure the user can act on directly: bad configuration,
// missing files, invalid flag combinations. The CLI prints these as a single
// line without a stack trace; anything else is treated as a defect.
type UserError struct {
	Msg string
	Err error
}

func (e *UserError) Error() string {
	return e.Msg
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// Userf builds a UserError from a format string.
func Userf(format string, args ...any) error {
	return &UserError{Msg: fmt.Sprintf(format, args...)}
}

// IsUserError reports whether err is, or wraps, a UserError.
func IsUserError(err error) bool {
	var ue *UserError
	return errors.As(err, &ue)
}
