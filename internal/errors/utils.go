package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/conneroisu/t4go/internal/source"
)

// New returns a plain error, as the standard errors.New does.
func New(text string) error {
	return errors.New(text)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with additional context, creating a T4Error if the input is not already one.
func Wrap(err error, errType ErrorType, code, message string) *T4Error {
	if err == nil {
		return nil
	}

	// Keep location and fatality of an inner T4Error.
	var te *T4Error
	if errors.As(err, &te) {
		return &T4Error{
			Type:     errType,
			Code:     code,
			Message:  message,
			Cause:    te,
			Context:  te.Context,
			Location: te.Location,
			Fatal:    te.Fatal,
		}
	}

	return &T4Error{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// FileOperationError creates an I/O error for a failed file operation.
func FileOperationError(operation, filePath string, cause error) *T4Error {
	return (&T4Error{
		Type:    ErrorTypeIO,
		Message: fmt.Sprintf("%s failed", operation),
		Cause:   cause,
	}).WithLocation(source.Location{File: filePath}).WithContext("operation", operation)
}

// ArgumentError reports a violated argument contract. These are programmer
// errors and are returned, never recorded as diagnostics.
func ArgumentError(argName, message string) *T4Error {
	return &T4Error{
		Type:    ErrorTypeInternal,
		Code:    "ARGUMENT",
		Message: fmt.Sprintf("invalid argument %q: %s", argName, message),
	}
}

// GetRootCause returns the innermost error in a chain.
func GetRootCause(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}

// HasErrorCode checks if any T4Error in the chain has the given code.
func HasErrorCode(err error, code string) bool {
	for err != nil {
		var te *T4Error
		if !errors.As(err, &te) {
			return false
		}
		if te.Code == code {
			return true
		}
		err = te.Cause
	}
	return false
}

// CombineErrors combines multiple errors into a single error.
func CombineErrors(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	}

	messages := make([]string, 0, len(nonNil))
	for _, err := range nonNil {
		messages = append(messages, err.Error())
	}

	return &T4Error{
		Type:    ErrorTypeInternal,
		Message: fmt.Sprintf("%d errors occurred:\n%s", len(nonNil), strings.Join(messages, "\n")),
		Cause:   errors.Join(nonNil...),
	}
}
