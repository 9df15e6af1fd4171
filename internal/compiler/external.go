package compiler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/logging"
	"github.com/conneroisu/t4go/internal/runtimes"
	"github.com/conneroisu/t4go/internal/validation"
)

// ExternalBackend compiles with the toolchain's go command.
type ExternalBackend struct {
	Runtime *runtimes.Runtime
	// ContractDir is the local copy of the module providing the runtime
	// package. Generated code always builds against it.
	ContractDir string
	Logger      logging.Logger
	// Env is appended to the environment of the go command.
	Env []string

	parser *errors.OutputParser
}

// NewExternalBackend creates an external backend.
func NewExternalBackend(rt *runtimes.Runtime, contractDir string, logger logging.Logger) *ExternalBackend {
	return &ExternalBackend{
		Runtime:     rt,
		ContractDir: contractDir,
		Logger:      logging.OrNop(logger).WithComponent("compiler"),
		parser:      errors.NewOutputParser(),
	}
}

// Compile builds req into a native executable.
func (b *ExternalBackend) Compile(ctx context.Context, req *Request) (*Result, error) {
	logger := logging.OrNop(b.Logger)
	diags, err := checkRequest(req, b.Runtime)
	if err != nil {
		return nil, err
	}
	if hasErrors(diags) {
		return &Result{Diagnostics: diags}, nil
	}

	refs, refDiags := resolveReferences(b.Runtime, req.References)
	diags = append(diags, refDiags...)
	if hasErrors(diags) {
		return &Result{Diagnostics: diags}, nil
	}

	dir, err := os.MkdirTemp(req.Options.WorkDir, "t4go-build-")
	if err != nil {
		return nil, errors.FileOperationError("create", "build directory", err)
	}
	result := &Result{}
	if req.Options.KeepFiles {
		result.WorkDir = dir
	} else {
		defer os.RemoveAll(dir)
	}

	files, err := moduleFiles(req, b.Runtime, b.ContractDir, refs)
	if err != nil {
		return nil, err
	}
	if err := writeFiles(dir, files); err != nil {
		return nil, err
	}

	perf := logging.StartOperation(logger, "go build")
	out, buildDiags, err := b.build(ctx, dir, buildArgs(req.Options))
	perf.EndWithError(ctx, err)
	result.Diagnostics = append(diags, buildDiags...)
	if err != nil {
		return result, err
	}
	if hasErrors(result.Diagnostics) {
		return result, nil
	}

	image, err := os.ReadFile(out)
	if err != nil {
		return nil, errors.FileOperationError("read", out, err)
	}
	result.Success = true
	result.Assembly = NewAssembly(ImageNative, image, refs)
	logger.Debug(ctx, "compiled template", "bytes", len(image), "dir", dir)
	return result, nil
}

// Materialize turns asm into an executable inside dir and returns its
// path. Source images are built there with the backend's toolchain.
func (b *ExternalBackend) Materialize(ctx context.Context, asm *Assembly, dir string) (string, []*errors.Diagnostic, error) {
	if asm == nil {
		return "", nil, errors.ArgumentError("asm", "must not be nil")
	}

	switch asm.Kind() {
	case ImageNative:
		path := filepath.Join(dir, executableName())
		if err := os.WriteFile(path, asm.image, 0o755); err != nil {
			return "", nil, errors.FileOperationError("write", path, err)
		}
		return path, nil, nil

	case ImageSource:
		if b.Runtime == nil {
			return "", []*errors.Diagnostic{errorDiagnostic(errors.CodeRuntimeNotFound,
				"no Go toolchain available to build the template")}, nil
		}
		files, args, err := decodeSourceImage(asm.image)
		if err != nil {
			return "", nil, errors.Wrap(err, errors.ErrorTypeRuntime, errors.CodeLoadFailed, "cannot load template image")
		}
		if err := writeFiles(dir, files); err != nil {
			return "", nil, err
		}
		out, diags, err := b.build(ctx, dir, args)
		if err != nil || hasErrors(diags) {
			return "", diags, err
		}
		return out, diags, nil
	}
	return "", nil, errors.ArgumentError("asm", fmt.Sprintf("unknown image kind %q", asm.Kind()))
}

// build runs go build in dir. The returned error is reserved for failures
// to run the command at all and for cancellation.
func (b *ExternalBackend) build(ctx context.Context, dir string, flags []string) (string, []*errors.Diagnostic, error) {
	goBin := b.Runtime.GoBinary()
	if err := validation.ValidateCommand(goBin, map[string]bool{"go": true}); err != nil {
		return "", nil, errors.NewCompileError(errors.CodeCompilerFailed, "refusing to run toolchain", err)
	}

	out := filepath.Join(dir, executableName())
	args := append([]string{"build", "-mod=mod", "-o", out}, flags...)
	args = append(args, ".")
	if err := writeResponseFile(filepath.Join(dir, ResponseFile), goBin, args); err != nil {
		return "", nil, err
	}

	cmd := exec.CommandContext(ctx, goBin, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GOROOT="+b.Runtime.Root,
		"GOFLAGS=-mod=mod",
		"GOSUMDB=off",
		"GOWORK=off",
		"GO111MODULE=on",
		"GOTOOLCHAIN=local",
	)
	cmd.Env = append(cmd.Env, b.Env...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	runErr := cmd.Run()

	if ctx.Err() != nil {
		return "", nil, errors.NewCompileError(errors.CodeCompilerFailed, "go build was cancelled", ctx.Err())
	}

	diags := b.outputParser().Parse(output.String())
	for _, d := range diags {
		if d.Code == "" {
			d.Code = errors.CodeCompilerFailed
		}
		if d.Location.File != "" && !filepath.IsAbs(d.Location.File) && !strings.Contains(d.Location.File, "..") {
			if _, err := os.Stat(filepath.Join(dir, d.Location.File)); err == nil {
				d.Location.File = filepath.Join(dir, d.Location.File)
			}
		}
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return "", diags, errors.NewCompileError(errors.CodeCompilerFailed, "cannot run go build", runErr)
		}
		if !hasErrors(diags) {
			msg := fmt.Sprintf("go build exited with code %d", exitErr.ExitCode())
			if text := strings.TrimSpace(output.String()); text != "" {
				msg += ": " + text
			}
			diags = append(diags, errorDiagnostic(errors.CodeCompilerFailed, msg))
		}
	}
	return out, diags, nil
}

func (b *ExternalBackend) outputParser() *errors.OutputParser {
	if b.parser == nil {
		b.parser = errors.NewOutputParser()
	}
	return b.parser
}

// buildArgs maps options to go build flags.
func buildArgs(opts Options) []string {
	var args []string
	if opts.Debug {
		args = append(args, "-gcflags=all=-N -l")
	} else {
		args = append(args, "-trimpath", "-ldflags=-s -w")
	}
	return append(args, opts.Args...)
}

// writeResponseFile records the command line, one quoted argument per line.
func writeResponseFile(path, command string, args []string) error {
	var b strings.Builder
	b.WriteString(strconv.Quote(command))
	b.WriteByte('\n')
	for _, a := range args {
		b.WriteString(strconv.Quote(a))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return errors.FileOperationError("write", path, err)
	}
	return nil
}

func executableName() string {
	if runtime.GOOS == "windows" {
		return "template.exe"
	}
	return "template"
}
