package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/t4go/internal/compiler"
	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/logging"
	"github.com/conneroisu/t4go/internal/runtimes"
	"github.com/conneroisu/t4go/internal/source"
	"github.com/conneroisu/t4go/pkg/tt"
)

// Materializer turns an assembly into an executable inside a directory.
type Materializer interface {
	Materialize(ctx context.Context, asm *compiler.Assembly, dir string) (string, []*errors.Diagnostic, error)
}

// ModuleResolver maps a module path to a local directory.
type ModuleResolver func(module string) (string, bool)

// Invocation describes one execution.
type Invocation struct {
	// TypeName is the full type name registered by the generated program.
	TypeName string
	// Host is optional; it is snapshotted for the child.
	Host    tt.Host
	Session map[string]interface{}
	// Parameters are the declared parameters whose host values the child
	// may ask for.
	Parameters   []tt.ParameterRef
	IncludePaths []string
	// ReferencePaths provide modules a source image was compiled against,
	// as "module=dir" or directories containing go.mod.
	ReferencePaths []string
	// ResolveModule is consulted after ReferencePaths.
	ResolveModule ModuleResolver
}

// Output is the result of an execution.
type Output struct {
	Text          string
	Diagnostics   []*errors.Diagnostic
	FileExtension string
	Encoding      string
}

// HasErrors reports whether any diagnostic is an error.
func (o *Output) HasErrors() bool {
	for _, d := range o.Diagnostics {
		if d.IsError() {
			return true
		}
	}
	return false
}

// Executor runs assemblies, each inside its own IsolationContext.
type Executor struct {
	Materializer Materializer
	// ContractDir is the caller's copy of the runtime module. Source
	// images are always linked against it.
	ContractDir string
	TempDir     string
	KeepFiles   bool
	// Timeout bounds one execution, including any build of a source image.
	Timeout time.Duration
	Logger  logging.Logger
}

// NewExecutor creates an executor.
func NewExecutor(m Materializer, contractDir string, logger logging.Logger) *Executor {
	return &Executor{
		Materializer: m,
		ContractDir:  contractDir,
		Logger:       logging.OrNop(logger).WithComponent("loader"),
	}
}

// Execute runs asm. Template errors, including panics inside Initialize
// and TransformText, come back as diagnostics. The error result is
// reserved for invalid arguments and fatal outcomes: cancellation, a
// crashed or killed child, and a type that does not satisfy the contract.
func (e *Executor) Execute(ctx context.Context, asm *compiler.Assembly, inv Invocation) (*Output, error) {
	if asm == nil {
		return nil, errors.ArgumentError("asm", "must not be nil")
	}
	if inv.TypeName == "" {
		return nil, errors.ArgumentError("TypeName", "must not be empty")
	}
	if e.Materializer == nil {
		return nil, errors.ArgumentError("Materializer", "must not be nil")
	}
	logger := logging.OrNop(e.Logger)

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	ic, err := NewIsolationContext(e.TempDir, e.KeepFiles)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ic.Close(); err != nil {
			logger.Warn(ctx, err, "cannot close sandbox", "dir", ic.Dir())
		}
	}()

	out := &Output{}
	linked, err := compiler.Relink(asm, e.ContractDir, e.binder(inv))
	if err != nil {
		if errors.HasErrorCode(err, errors.CodeLoadFailed) {
			out.Diagnostics = append(out.Diagnostics, diagnosticOf(err))
			return out, nil
		}
		return nil, err
	}

	program, diags, err := e.Materializer.Materialize(ctx, linked, ic.Dir())
	out.Diagnostics = append(out.Diagnostics, diags...)
	if err != nil {
		return out, err
	}
	if out.HasErrors() {
		return out, nil
	}

	req := &tt.Request{
		TypeName: inv.TypeName,
		Session:  inv.Session,
		Ambient:  tt.AmbientFromContext(ctx),
	}
	if inv.Host != nil {
		req.Host = tt.NewHostSnapshot(inv.Host, inv.IncludePaths, inv.Parameters)
	}

	perf := logging.StartOperation(logger, "execute")
	res, err := ic.Run(ctx, program, req)
	perf.EndWithError(ctx, err)
	if err != nil {
		return out, err
	}
	if res.Stdout != "" {
		logger.Debug(ctx, "template wrote to stdout", "text", res.Stdout)
	}

	resp := res.Response
	if resp.ContractError != "" {
		return out, errors.ArgumentError("TypeName", resp.ContractError)
	}

	out.Text = resp.Output
	out.FileExtension = resp.FileExtension
	out.Encoding = resp.Encoding
	for _, rec := range resp.Errors {
		out.Diagnostics = append(out.Diagnostics, recordDiagnostic(rec))
	}

	if inv.Host != nil {
		if resp.FileExtension != "" {
			inv.Host.SetFileExtension(resp.FileExtension)
		}
		if resp.Encoding != "" {
			inv.Host.SetOutputEncoding(resp.Encoding)
		}
	}
	return out, nil
}

// ExecuteFile runs a compiled executable from disk.
func (e *Executor) ExecuteFile(ctx context.Context, path string, inv Invocation) (*Output, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.FileOperationError("read", path, err)
	}
	return e.Execute(ctx, compiler.NewAssembly(compiler.ImageNative, data, nil), inv)
}

// binder resolves modules from the reference paths, then the resolver.
func (e *Executor) binder(inv Invocation) func(string) (string, bool) {
	bound := make(map[string]string)
	for _, spec := range inv.ReferencePaths {
		if module, dir, ok := strings.Cut(spec, "="); ok {
			if abs, err := filepath.Abs(strings.TrimSpace(dir)); err == nil {
				bound[strings.TrimSpace(module)] = abs
			}
			continue
		}
		module, err := runtimes.ModulePath(filepath.Join(spec, "go.mod"))
		if err != nil {
			continue
		}
		if abs, err := filepath.Abs(spec); err == nil {
			bound[module] = abs
		}
	}

	return func(module string) (string, bool) {
		if dir, ok := bound[module]; ok {
			return dir, true
		}
		if inv.ResolveModule != nil {
			return inv.ResolveModule(module)
		}
		return "", false
	}
}

func recordDiagnostic(rec tt.ErrorRecord) *errors.Diagnostic {
	d := &errors.Diagnostic{
		Severity: errors.SeverityError,
		Code:     errors.CodeTransformFailed,
		Message:  rec.Message,
		Location: source.NewLocation(rec.File, rec.Line, rec.Column),
	}
	if rec.Warning {
		d.Severity = errors.SeverityWarning
	}
	return d
}

func diagnosticOf(err error) *errors.Diagnostic {
	var te *errors.T4Error
	if errors.As(err, &te) {
		return te.Diagnostic()
	}
	return &errors.Diagnostic{Severity: errors.SeverityError, Code: errors.CodeLoadFailed, Message: fmt.Sprint(err)}
}
