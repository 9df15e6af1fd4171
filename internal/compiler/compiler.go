// Package compiler compiles generated template sources into images the
// loader can run. Two backends share one contract: ExternalBackend runs
// `go build`, InProcessBackend type-checks in-process and hands a source
// image to the isolation boundary.
package compiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/runtimes"
	"github.com/conneroisu/t4go/internal/source"
	"github.com/conneroisu/t4go/internal/validation"
)

// SourceFile is one file of a compilation.
type SourceFile struct {
	Name    string
	Content string
}

// Options configures one compilation.
type Options struct {
	Debug bool
	// LanguageVersion is the go directive of the synthesized module. Empty
	// means the toolchain default.
	LanguageVersion string
	// Args are extra go build flags, vetted against an allowlist.
	Args []string
	// WorkDir is the parent of the temporary build directory.
	WorkDir string
	// KeepFiles leaves the build directory in place.
	KeepFiles bool
}

// Request is the input of a compilation.
type Request struct {
	Sources    []SourceFile
	References []string
	Options    Options
}

// Result is the outcome of a compilation. Callers must check Success;
// a nil error does not imply it.
type Result struct {
	Success     bool
	Assembly    *Assembly
	Diagnostics []*errors.Diagnostic
	// WorkDir is the build directory when it was kept.
	WorkDir string
}

// Backend compiles requests.
type Backend interface {
	Compile(ctx context.Context, req *Request) (*Result, error)
}

// ImageKind tells how an assembly is run.
type ImageKind string

const (
	// ImageNative is an executable.
	ImageNative ImageKind = "native"
	// ImageSource is a checked source bundle built inside the isolation
	// boundary.
	ImageSource ImageKind = "source"
)

// Assembly is an immutable compiled image.
type Assembly struct {
	kind       ImageKind
	image      []byte
	references []runtimes.Reference
}

// NewAssembly wraps image. The slice is copied.
func NewAssembly(kind ImageKind, image []byte, refs []runtimes.Reference) *Assembly {
	return &Assembly{
		kind:       kind,
		image:      append([]byte(nil), image...),
		references: append([]runtimes.Reference(nil), refs...),
	}
}

// Kind returns the image kind.
func (a *Assembly) Kind() ImageKind { return a.kind }

// Bytes returns a copy of the image.
func (a *Assembly) Bytes() []byte { return append([]byte(nil), a.image...) }

// Size returns the image size in bytes.
func (a *Assembly) Size() int { return len(a.image) }

// DebugSymbols returns nil: Go executables embed their DWARF data.
func (a *Assembly) DebugSymbols() []byte { return nil }

// References returns the references the image was compiled against.
func (a *Assembly) References() []runtimes.Reference {
	return append([]runtimes.Reference(nil), a.references...)
}

// checkRequest validates the parts of a request shared by both backends and
// returns the diagnostics of rejected options.
func checkRequest(req *Request, rt *runtimes.Runtime) ([]*errors.Diagnostic, error) {
	if req == nil {
		return nil, errors.ArgumentError("req", "must not be nil")
	}
	if len(req.Sources) == 0 {
		return nil, errors.ArgumentError("req.Sources", "must not be empty")
	}

	var diags []*errors.Diagnostic
	for _, arg := range req.Options.Args {
		if err := validation.ValidateBuildFlag(arg); err != nil {
			diags = append(diags, errorDiagnostic(errors.CodeCompilerOption, err.Error()))
		}
	}

	if rt == nil {
		diags = append(diags, errorDiagnostic(errors.CodeRuntimeNotFound, "no Go toolchain available to compile the template"))
		return diags, nil
	}

	if lv := req.Options.LanguageVersion; lv != "" {
		want, err := languageVersion(lv)
		if err != nil {
			diags = append(diags, errorDiagnostic(errors.CodeInvalidAttribute,
				fmt.Sprintf("invalid language version %q", lv)))
		} else if max, err := languageVersion(rt.MaxLanguageVersion); err == nil && max.LessThan(want) {
			diags = append(diags, errorDiagnostic(errors.CodeLanguageVersionTooNew,
				fmt.Sprintf("language version %s is newer than the toolchain's %s", lv, rt.MaxLanguageVersion)))
		}
	}
	return diags, nil
}

// resolveReferences resolves every reference, reporting the ones that
// cannot be resolved.
func resolveReferences(rt *runtimes.Runtime, specs []string) ([]runtimes.Reference, []*errors.Diagnostic) {
	var refs []runtimes.Reference
	var diags []*errors.Diagnostic
	for _, spec := range specs {
		ref, err := runtimes.ResolveReference(rt, spec)
		if err != nil {
			diags = append(diags, errorDiagnostic(errors.CodeUnresolvedReference, err.Error()))
			continue
		}
		refs = append(refs, ref)
	}
	return refs, diags
}

func languageVersion(s string) (runtimes.Version, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "go")
	if strings.Count(s, ".") == 1 {
		s += ".0"
	}
	return runtimes.Parse(s)
}

func errorDiagnostic(code, message string) *errors.Diagnostic {
	return &errors.Diagnostic{Severity: errors.SeverityError, Code: code, Message: message}
}

func hasErrors(diags []*errors.Diagnostic) bool {
	for _, d := range diags {
		if d.IsError() {
			return true
		}
	}
	return false
}

// located returns a diagnostic at a file position.
func located(code, message, file string, line, column int) *errors.Diagnostic {
	d := errorDiagnostic(code, message)
	d.Location = source.NewLocation(file, line, column)
	return d
}
