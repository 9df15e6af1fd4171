// Package tt is the runtime library imported by generated template code.
//
// It provides the default TextTransformation base type, the contract every
// generated type satisfies, typed parameter lookup, and Serve, the harness
// that runs a generated transformation inside its isolated child process.
package tt

import "fmt"

// ImportPath is the import path generated code uses for this package.
const ImportPath = "github.com/conneroisu/t4go/pkg/tt"

// Transformer is the contract of every generated transformation.
type Transformer interface {
	Initialize()
	TransformText() string
	Error(message string)
	Errors() []error
}

// HostAware is implemented by host-specific transformations.
type HostAware interface {
	SetHost(h Host)
}

// SessionAware is implemented by transformations that accept a session.
type SessionAware interface {
	SetSession(session map[string]interface{})
}

// Host is the part of the templating host visible to generated code.
type Host interface {
	TemplateFile() string
	// ResolvePath resolves a path relative to the template.
	ResolvePath(path string) string
	// ResolveParameterValue returns the host's value for a parameter.
	ResolveParameterValue(directiveID, processorName, parameterName string) (string, bool)
	LoadIncludeText(name string) (content, location string, ok bool)
	SetFileExtension(extension string)
	SetOutputEncoding(encoding string)
}

// TransformError is an error or warning raised by a transformation.
type TransformError struct {
	Message string
	File    string
	Line    int
	Column  int
	Warning bool
}

func (e *TransformError) Error() string {
	if e.File == "" {
		return e.Message
	}
	return fmt.Sprintf("%s(%d,%d): %s", e.File, e.Line, e.Column, e.Message)
}

// IsWarning reports whether e is a warning.
func (e *TransformError) IsWarning() bool { return e.Warning }

// Location returns where the error was raised, if known.
func (e *TransformError) Location() (string, int, int) { return e.File, e.Line, e.Column }
