// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimglib

import (
	"errors"
	"fmt"
)

// Error categories, matched with errors.Is.
var (
	// ErrExternalCommand: an invoked program exited with an unacceptable
	// code. The wrapped *shell.ExecError carries the captured output.
	ErrExternalCommand = errors.New("external-command")
	// ErrResolution: an expected artifact or field was not found where
	// exactly one was required.
	ErrResolution = errors.New("resolution")
	// ErrConfigValidation: the configuration document violates an
	// invariant.
	ErrConfigValidation = errors.New("config-validation")
	// ErrPrecondition: an operation requires configuration or state that
	// is absent.
	ErrPrecondition = errors.New("precondition")
)

// ChimgError attaches a category to an error so callers can react to the
// class of failure without string matching.
type ChimgError struct {
	Type    error
	Message string
	Cause   error
}

func (e *ChimgError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s:\n%v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ChimgError) Unwrap() error {
	return e.Cause
}

func (e *ChimgError) Is(target error) bool {
	return errors.Is(e.Type, target)
}

func newResolutionError(message string) *ChimgError {
	return &ChimgError{Type: ErrResolution, Message: message}
}

func newExternalCommandError(message string, cause error) *ChimgError {
	return &ChimgError{Type: ErrExternalCommand, Message: message, Cause: cause}
}

func newPreconditionError(message string) *ChimgError {
	return &ChimgError{Type: ErrPrecondition, Message: message}
}

func newConfigValidationError(message string, cause error) *ChimgError {
	return &ChimgError{Type: ErrConfigValidation, Message: message, Cause: cause}
}
