package compiler

import (
	"context"
	"fmt"
	"go/ast"
	"go/build"
	"go/parser"
	"go/scanner"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/logging"
	"github.com/conneroisu/t4go/internal/runtimes"
)

// InProcessBackend parses and type-checks generated code without starting
// a process. The checked sources are returned as a source image that the
// isolation boundary builds for itself.
type InProcessBackend struct {
	Runtime     *runtimes.Runtime
	ContractDir string
	Logger      logging.Logger
	// Getenv locates the module cache; nil means os.Getenv.
	Getenv func(string) string
}

// NewInProcessBackend creates an in-process backend.
func NewInProcessBackend(rt *runtimes.Runtime, contractDir string, logger logging.Logger) *InProcessBackend {
	return &InProcessBackend{
		Runtime:     rt,
		ContractDir: contractDir,
		Logger:      logging.OrNop(logger).WithComponent("compiler"),
	}
}

// Compile type-checks req.
func (b *InProcessBackend) Compile(ctx context.Context, req *Request) (*Result, error) {
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
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCompileError(errors.CodeCompilerFailed, "compilation was cancelled", err)
	}

	perf := logging.StartOperation(logger, "type check")
	fset := token.NewFileSet()
	var files []*ast.File
	for _, src := range req.Sources {
		if !strings.HasSuffix(src.Name, ".go") {
			continue
		}
		f, err := parser.ParseFile(fset, src.Name, src.Content, parser.AllErrors|parser.ParseComments)
		if err != nil {
			diags = append(diags, syntaxDiagnostics(err)...)
			continue
		}
		files = append(files, f)
	}
	if hasErrors(diags) {
		perf.End(ctx)
		return &Result{Diagnostics: diags}, nil
	}

	imp := newSourceImporter(fset, b.Runtime, b.ContractDir, refs, b.Getenv)
	conf := types.Config{
		Importer:    imp,
		FakeImportC: true,
		Error: func(err error) {
			if te, ok := err.(types.Error); ok {
				pos := te.Fset.Position(te.Pos)
				diags = append(diags, located(errors.CodeCompilerFailed, te.Msg, pos.Filename, pos.Line, pos.Column))
				return
			}
			diags = append(diags, errorDiagnostic(errors.CodeCompilerFailed, err.Error()))
		},
	}
	if lv := req.Options.LanguageVersion; lv != "" {
		conf.GoVersion = "go" + strings.TrimPrefix(lv, "go")
	}
	_, _ = conf.Check(ModulePath, fset, files, nil)
	perf.End(ctx)

	if err := ctx.Err(); err != nil {
		return nil, errors.NewCompileError(errors.CodeCompilerFailed, "compilation was cancelled", err)
	}
	if hasErrors(diags) {
		return &Result{Diagnostics: diags}, nil
	}

	module, err := moduleFiles(req, b.Runtime, b.ContractDir, refs)
	if err != nil {
		return nil, err
	}
	image, err := encodeSourceImage(module, buildArgs(req.Options))
	if err != nil {
		return nil, errors.NewInternalError(errors.CodeCompilerFailed, "cannot encode source image", err)
	}
	logger.Debug(ctx, "type-checked template", "packages", len(imp.packages))
	return &Result{
		Success:     true,
		Assembly:    NewAssembly(ImageSource, image, refs),
		Diagnostics: diags,
	}, nil
}

func syntaxDiagnostics(err error) []*errors.Diagnostic {
	list, ok := err.(scanner.ErrorList)
	if !ok {
		return []*errors.Diagnostic{errorDiagnostic(errors.CodeCompilerFailed, err.Error())}
	}
	out := make([]*errors.Diagnostic, 0, len(list))
	for _, e := range list {
		out = append(out, located(errors.CodeCompilerFailed, e.Msg, e.Pos.Filename, e.Pos.Line, e.Pos.Column))
	}
	return out
}

type moduleRoot struct {
	path string
	dir  string
}

// sourceImporter type-checks imported packages from source: the standard
// library from the toolchain, the contract module from its local copy and
// everything else from replacements or the module cache. Function bodies
// of dependencies are not checked.
type sourceImporter struct {
	fset     *token.FileSet
	ctxt     build.Context
	srcRoot  string
	roots    []moduleRoot
	packages map[string]*types.Package
	loading  map[string]bool
}

func newSourceImporter(fset *token.FileSet, rt *runtimes.Runtime, contractDir string, refs []runtimes.Reference, getenv func(string) string) *sourceImporter {
	ctxt := build.Default
	ctxt.GOROOT = rt.Root
	ctxt.CgoEnabled = false

	im := &sourceImporter{
		fset:     fset,
		ctxt:     ctxt,
		srcRoot:  rt.ReferenceDir,
		packages: make(map[string]*types.Package),
		loading:  make(map[string]bool),
	}

	cache := runtimes.ModuleCacheDir(getenv)
	seen := make(map[string]bool)
	add := func(path, dir string) {
		if path != "" && dir != "" && !seen[path] {
			seen[path] = true
			im.roots = append(im.roots, moduleRoot{path: path, dir: dir})
		}
	}

	for _, ref := range refs {
		switch {
		case ref.Std:
		case ref.Local():
			add(ref.Module, ref.Dir)
		case ref.Version != "":
			add(ref.Module, runtimes.ModuleDir(cache, ref.Module, ref.Version))
		}
	}
	if contractDir != "" {
		add(ContractModule, contractDir)
		if mf, err := runtimes.ReadModFile(filepath.Join(contractDir, "go.mod")); err == nil {
			for _, r := range mf.Require {
				if dir, ok := mf.Replace[r.Path]; ok {
					add(r.Path, dir)
					continue
				}
				add(r.Path, runtimes.ModuleDir(cache, r.Path, r.Version))
			}
		}
	}

	// Longest module path first so nested modules win.
	sort.SliceStable(im.roots, func(i, j int) bool {
		return len(im.roots[i].path) > len(im.roots[j].path)
	})
	return im
}

func (im *sourceImporter) Import(path string) (*types.Package, error) {
	return im.ImportFrom(path, "", 0)
}

func (im *sourceImporter) ImportFrom(path, fromDir string, _ types.ImportMode) (*types.Package, error) {
	if path == "unsafe" {
		return types.Unsafe, nil
	}

	key, dir, err := im.locate(path, fromDir)
	if err != nil {
		return nil, err
	}
	if pkg := im.packages[key]; pkg != nil {
		return pkg, nil
	}
	if im.loading[key] {
		return nil, fmt.Errorf("import cycle through %s", path)
	}
	im.loading[key] = true
	defer delete(im.loading, key)

	bp, err := im.ctxt.ImportDir(dir, 0)
	if err != nil {
		return nil, fmt.Errorf("cannot load package %s: %w", path, err)
	}

	files := make([]*ast.File, 0, len(bp.GoFiles))
	for _, name := range bp.GoFiles {
		f, err := parser.ParseFile(im.fset, filepath.Join(dir, name), nil, parser.SkipObjectResolution)
		if err != nil {
			return nil, fmt.Errorf("cannot parse package %s: %w", path, err)
		}
		files = append(files, f)
	}

	conf := types.Config{
		Importer:         im,
		FakeImportC:      true,
		IgnoreFuncBodies: true,
		// Dependencies are trusted; their errors would only be noise.
		Error: func(error) {},
	}
	pkg, _ := conf.Check(key, im.fset, files, nil)
	if pkg == nil {
		return nil, fmt.Errorf("cannot type-check package %s", path)
	}
	im.packages[key] = pkg
	return pkg, nil
}

// locate maps an import path to its package key and directory.
func (im *sourceImporter) locate(path, fromDir string) (string, string, error) {
	// Standard library packages see the toolchain's vendored copies first.
	if fromDir != "" && im.srcRoot != "" && within(fromDir, im.srcRoot) {
		vendored := filepath.Join(im.srcRoot, "vendor", filepath.FromSlash(path))
		if isDir(vendored) {
			return "vendor/" + path, vendored, nil
		}
	}

	for _, root := range im.roots {
		if path == root.path || strings.HasPrefix(path, root.path+"/") {
			dir := filepath.Join(root.dir, filepath.FromSlash(strings.TrimPrefix(path[len(root.path):], "/")))
			if isDir(dir) {
				return path, dir, nil
			}
			return "", "", fmt.Errorf("package %s not found in module %s (%s)", path, root.path, root.dir)
		}
	}

	if im.srcRoot != "" {
		if dir := filepath.Join(im.srcRoot, filepath.FromSlash(path)); isDir(dir) {
			return path, dir, nil
		}
	}
	return "", "", fmt.Errorf("package %s is not in std or any referenced module", path)
}

func within(dir, root string) bool {
	rel, err := filepath.Rel(root, dir)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
