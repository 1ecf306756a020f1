// Package utils holds the error type, logger factory and time helpers shared by fincorr packages.
package utils

import (
	"errors"
	"fmt"
)

// AppError attaches the failing operation ("engine.Group", "ingest.Read") and a
// caller-safe message to an underlying error. Transports show Msg, logs show Error().
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Msg
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

// Unwrap exposes Err so sentinels such as engine.ErrInvalidRecord match with errors.Is.
func (e *AppError) Unwrap() error { return e.Err }

// NewAppError returns an *AppError as an error.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// Message is the text a client may see: the Msg of the outermost AppError, or err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Msg
	}
	return err.Error()
}
