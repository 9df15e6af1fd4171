package engine

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/conneroisu/t4go/internal/directive"
	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/logging"
	"github.com/conneroisu/t4go/internal/parser"
	"github.com/conneroisu/t4go/pkg/tt"
)

// Host is the embedding application seen by the engine. The tt.Host part
// is forwarded to host-specific templates.
type Host interface {
	tt.Host
	// ResolveReference maps a bare reference name to a module directory,
	// a "module=dir" pair or "path@version". ok is false when the host
	// has no mapping and the name is resolved as given.
	ResolveReference(name string) (string, bool)
	// ResolveDirectiveProcessor returns a processor factory not known to
	// the engine's registry.
	ResolveDirectiveProcessor(name string) (directive.Factory, error)
	StandardImports() []string
	StandardReferences() []string
	// LogErrors receives the diagnostics of every run.
	LogErrors(diags []*errors.Diagnostic)
}

// FileHost is the default Host for templates on disk.
type FileHost struct {
	// Template is the path of the template being processed.
	Template     string
	IncludePaths []string
	// References maps bare reference names to what ResolveReference
	// returns.
	References map[string]string
	// Parameters holds host parameter values keyed by parameter name or
	// by "processor/name".
	Parameters map[string]string
	Processors map[string]directive.Factory
	Imports    []string
	Logger     logging.Logger

	mutex     sync.Mutex
	extension string
	encoding  string
	diags     []*errors.Diagnostic
}

var _ Host = (*FileHost)(nil)

// NewFileHost creates a host for the template at path.
func NewFileHost(path string, includePaths []string) *FileHost {
	return &FileHost{Template: path, IncludePaths: includePaths}
}

// TemplateFile implements tt.Host.
func (h *FileHost) TemplateFile() string {
	if abs, err := filepath.Abs(h.Template); err == nil && h.Template != "" {
		return abs
	}
	return h.Template
}

// ResolvePath implements tt.Host.
func (h *FileHost) ResolvePath(path string) string {
	if filepath.IsAbs(path) || h.Template == "" {
		return path
	}
	return filepath.Join(filepath.Dir(h.TemplateFile()), path)
}

// ResolveParameterValue implements tt.Host.
func (h *FileHost) ResolveParameterValue(_, processorName, parameterName string) (string, bool) {
	if v, ok := h.Parameters[tt.ParameterKey(processorName, parameterName)]; ok {
		return v, true
	}
	v, ok := h.Parameters[parameterName]
	return v, ok
}

// LoadIncludeText implements tt.Host. Names are tried as given, against
// the template's directory and then against each include path.
func (h *FileHost) LoadIncludeText(name string) (string, string, bool) {
	paths := []string{}
	if h.Template != "" {
		paths = append(paths, filepath.Dir(h.TemplateFile()))
	}
	paths = append(paths, h.IncludePaths...)
	r := &parser.FileIncludeResolver{SearchPaths: paths}
	return r.ResolveInclude(name)
}

// SetFileExtension implements tt.Host.
func (h *FileHost) SetFileExtension(extension string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.extension = extension
}

// SetOutputEncoding implements tt.Host.
func (h *FileHost) SetOutputEncoding(encoding string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.encoding = encoding
}

// FileExtension returns the extension set by the last run.
func (h *FileHost) FileExtension() string {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.extension
}

// OutputEncoding returns the encoding set by the last run.
func (h *FileHost) OutputEncoding() string {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.encoding
}

// ResolveReference implements Host.
func (h *FileHost) ResolveReference(name string) (string, bool) {
	v, ok := h.References[name]
	return v, ok
}

// ResolveDirectiveProcessor implements Host.
func (h *FileHost) ResolveDirectiveProcessor(name string) (directive.Factory, error) {
	for key, f := range h.Processors {
		if strings.EqualFold(key, name) {
			return f, nil
		}
	}
	return nil, errors.NewSemanticError(errors.CodeUnknownProcessor,
		"directive processor '"+name+"' is not registered with the host")
}

// StandardImports implements Host.
func (h *FileHost) StandardImports() []string {
	return h.Imports
}

// StandardReferences implements Host.
func (h *FileHost) StandardReferences() []string {
	return nil
}

// LogErrors implements Host.
func (h *FileHost) LogErrors(diags []*errors.Diagnostic) {
	h.mutex.Lock()
	h.diags = append(h.diags, diags...)
	h.mutex.Unlock()
}

// Diagnostics returns everything passed to LogErrors.
func (h *FileHost) Diagnostics() []*errors.Diagnostic {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return append([]*errors.Diagnostic(nil), h.diags...)
}

// ReadTemplate reads the host's template.
func (h *FileHost) ReadTemplate() (string, error) {
	data, err := os.ReadFile(h.Template)
	if err != nil {
		return "", errors.FileOperationError("read", h.Template, err)
	}
	return string(data), nil
}
