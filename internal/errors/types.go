// Package errors provides the structured error and diagnostic types used by
// every phase of the template pipeline, together with the parser that turns
// compiler output into diagnostics.
//
// Two kinds of failure exist. Problems found in a template (malformed tags,
// unknown directives, compile errors, panics in generated code) are recorded
// as Diagnostics and never cross a phase boundary as Go errors. Contract
// violations by the caller, and process-fatal outcomes, are returned as
// ordinary errors, usually a *T4Error.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/conneroisu/t4go/internal/source"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeParse    ErrorType = "parse"
	ErrorTypeSemantic ErrorType = "semantic"
	ErrorTypeCodeGen  ErrorType = "codegen"
	ErrorTypeCompile  ErrorType = "compile"
	ErrorTypeRuntime  ErrorType = "runtime"
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeIO       ErrorType = "io"
	ErrorTypeInternal ErrorType = "internal"
)

// T4Error is a structured error type with context.
type T4Error struct {
	Type     ErrorType
	Code     string
	Message  string
	Cause    error
	Context  map[string]interface{}
	Location source.Location
	// Fatal marks outcomes that must never be converted into diagnostics.
	Fatal bool
}

// Error implements the error interface.
func (e *T4Error) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Location.File != "" {
		parts = append(parts, e.Location.String()+":")
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *T4Error) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *T4Error) Is(target error) bool {
	var t *T4Error
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *T4Error) WithContext(key string, value interface{}) *T4Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *T4Error) WithLocation(loc source.Location) *T4Error {
	e.Location = loc

	return e
}

// Diagnostic converts the error into an error-severity diagnostic.
func (e *T4Error) Diagnostic() *Diagnostic {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return &Diagnostic{
		Severity: SeverityError,
		Code:     e.Code,
		Message:  msg,
		Location: e.Location,
	}
}

// Error creation functions

// NewParseError creates a parse error at the given location.
func NewParseError(code, message string, loc source.Location) *T4Error {
	return &T4Error{
		Type:     ErrorTypeParse,
		Code:     code,
		Message:  message,
		Location: loc,
	}
}

// NewSemanticError creates a semantic error.
func NewSemanticError(code, message string) *T4Error {
	return &T4Error{
		Type:    ErrorTypeSemantic,
		Code:    code,
		Message: message,
	}
}

// NewCompileError creates a compile error.
func NewCompileError(code, message string, cause error) *T4Error {
	return &T4Error{
		Type:    ErrorTypeCompile,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewRuntimeError creates a runtime error. Fatal runtime errors are rethrown
// to the caller instead of being reported as diagnostics.
func NewRuntimeError(code, message string, cause error, fatal bool) *T4Error {
	return &T4Error{
		Type:    ErrorTypeRuntime,
		Code:    code,
		Message: message,
		Cause:   cause,
		Fatal:   fatal,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *T4Error {
	return &T4Error{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *T4Error {
	return &T4Error{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *T4Error {
	return &T4Error{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsFatal reports whether err is a fatal runtime outcome.
func IsFatal(err error) bool {
	var te *T4Error
	if errors.As(err, &te) {
		return te.Fatal
	}

	return false
}

// IsParseError checks if an error is a parse error.
func IsParseError(err error) bool {
	return hasType(err, ErrorTypeParse)
}

// IsCompileError checks if an error is compile-related.
func IsCompileError(err error) bool {
	return hasType(err, ErrorTypeCompile)
}

func hasType(err error, t ErrorType) bool {
	var te *T4Error
	if errors.As(err, &te) {
		return te.Type == t
	}

	return false
}

// Diagnostic codes.
const (
	// Parse
	CodeUnterminatedTag     = "T4G1001"
	CodeMalformedDirective  = "T4G1002"
	CodeUnexpectedCharacter = "T4G1003"

	// Semantic
	CodeIncludeMissingFile    = "T4G2001"
	CodeIncludeNotFound       = "T4G2002"
	CodeIncludeTooDeep        = "T4G2003"
	CodeUnknownAttribute      = "T4G2004"
	CodeInvalidAttribute      = "T4G2005"
	CodeMissingAttribute      = "T4G2006"
	CodeUnknownProcessor      = "T4G2007"
	CodeProcessorFailed       = "T4G2008"
	CodeUnsupportedLanguage   = "T4G2009"
	CodeHostSpecificForced    = "T4G2010"
	CodeDuplicateParameter    = "T4G2011"
	CodeUnresolvedReference   = "T4G2012"
	CodeLanguageVersionTooNew = "T4G2013"

	// Code generation
	CodeBlockAfterHelper = "T4G3001"
	CodeRenderFailed     = "T4G3002"

	// Compilation
	CodeRuntimeNotFound = "T4G4001"
	CodeCompilerFailed  = "T4G4002"
	CodeCompilerOption  = "T4G4003"

	// Execution
	CodeTransformFailed  = "T4G5001"
	CodeInitializeFailed = "T4G5002"
	CodeParameterConvert = "T4G5003"
	CodeLoadFailed       = "T4G5004"
	CodeChildProcess     = "T4G5005"
)
