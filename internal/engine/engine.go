// Package engine runs the template pipeline: parse, resolve settings,
// generate, compile and execute. It owns runtime detection, the choice of
// compiler backend and the optional registry of compiled templates.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/conneroisu/t4go/internal/codegen"
	"github.com/conneroisu/t4go/internal/compiler"
	"github.com/conneroisu/t4go/internal/config"
	"github.com/conneroisu/t4go/internal/directive"
	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/loader"
	"github.com/conneroisu/t4go/internal/logging"
	"github.com/conneroisu/t4go/internal/parser"
	"github.com/conneroisu/t4go/internal/runtimes"
	"github.com/conneroisu/t4go/internal/settings"
	"github.com/conneroisu/t4go/internal/source"
	"github.com/conneroisu/t4go/pkg/tt"
)

// Engine processes templates. It is safe for concurrent use; every run
// owns its ParsedTemplate, Settings and sandbox.
type Engine struct {
	config      *config.Config
	logger      logging.Logger
	registry    *directive.Registry
	templates   *TemplateRegistry
	contractDir string

	backend      compiler.Backend
	materializer loader.Materializer

	runtimeOnce sync.Once
	runtime     *runtimes.Runtime
	runtimeErr  error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrNop(l).WithComponent("engine") }
}

// WithProcessorRegistry replaces the default directive processor registry.
func WithProcessorRegistry(r *directive.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithRuntime skips runtime detection.
func WithRuntime(rt *runtimes.Runtime) Option {
	return func(e *Engine) {
		e.runtimeOnce.Do(func() { e.runtime = rt })
	}
}

// WithBackend replaces the configured compiler backend.
func WithBackend(b compiler.Backend) Option {
	return func(e *Engine) { e.backend = b }
}

// WithMaterializer replaces the component that turns assemblies into
// executables.
func WithMaterializer(m loader.Materializer) Option {
	return func(e *Engine) { e.materializer = m }
}

// WithContractDir sets the module directory that provides pkg/tt.
func WithContractDir(dir string) Option {
	return func(e *Engine) { e.contractDir = dir }
}

// New creates an engine. A nil cfg uses the defaults.
func New(cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Engine{
		config:      cfg,
		logger:      logging.NewNopLogger(),
		registry:    directive.NewDefaultRegistry(),
		contractDir: cfg.SDK.RuntimeModuleDir,
	}
	if cfg.Engine.CacheSize > 0 {
		e.templates = NewTemplateRegistry(cfg.Engine.CacheSize, cfg.Engine.CacheTTL)
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.contractDir == "" {
		e.contractDir = compiler.DefaultContractDir()
	}
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config {
	return e.config
}

// Templates returns the compiled template registry, nil when disabled.
func (e *Engine) Templates() *TemplateRegistry {
	return e.templates
}

// Runtime returns the detected Go toolchain.
func (e *Engine) Runtime() (*runtimes.Runtime, error) {
	e.runtimeOnce.Do(func() {
		searchPaths := e.config.SDK.SearchPaths
		if len(searchPaths) == 0 {
			searchPaths = nil
		}
		e.runtime, e.runtimeErr = runtimes.Detect(runtimes.Options{
			Dir:         e.config.SDK.Dir,
			SearchPaths: searchPaths,
			Version:     e.config.SDK.Version,
			Logger:      e.logger,
		})
	})
	return e.runtime, e.runtimeErr
}

// Input is one template to process.
type Input struct {
	// File is the template path used for locations and include lookup.
	File    string
	Content string
	// Host defaults to a FileHost for File.
	Host    Host
	Session map[string]interface{}
}

// Result is the outcome of a transform run.
type Result struct {
	Output      string
	Extension   string
	Encoding    string
	Diagnostics []*errors.Diagnostic
	// Includes are the canonical paths of every included file.
	Includes []string
}

// HasErrors reports whether any diagnostic is an error.
func (r *Result) HasErrors() bool {
	return hasErrors(r.Diagnostics)
}

// Preprocessed is the outcome of a preprocessing run.
type Preprocessed struct {
	Source      string
	Package     string
	TypeName    string
	References  []string
	Extension   string
	Encoding    string
	Diagnostics []*errors.Diagnostic
}

// HasErrors reports whether any diagnostic is an error.
func (p *Preprocessed) HasErrors() bool {
	return hasErrors(p.Diagnostics)
}

// ProcessTemplate transforms one template and returns its output. The
// error result is reserved for invalid arguments and fatal outcomes;
// everything else is reported through Result.Diagnostics and the host.
func (e *Engine) ProcessTemplate(ctx context.Context, in Input) (*Result, error) {
	host := e.hostFor(in)
	perf := logging.StartOperation(e.logger, "process template")

	ct, diags, includes, err := e.compile(ctx, in, host)
	if err != nil {
		perf.EndWithError(ctx, err)
		return nil, err
	}
	if ct == nil {
		perf.End(ctx)
		host.LogErrors(diags)
		return &Result{Diagnostics: diags, Includes: includes}, nil
	}

	res, err := ct.run(ctx, host, in.Session)
	perf.EndWithError(ctx, err)
	if err != nil {
		return nil, err
	}
	res.Diagnostics = append(diags, res.Diagnostics...)
	res.Includes = includes
	host.LogErrors(res.Diagnostics)
	return res, nil
}

// CompileTemplate compiles a template for repeated processing. It returns
// nil and the diagnostics when the template does not compile.
func (e *Engine) CompileTemplate(ctx context.Context, in Input) (*CompiledTemplate, []*errors.Diagnostic, error) {
	host := e.hostFor(in)
	ct, diags, _, err := e.compile(ctx, in, host)
	if err == nil {
		host.LogErrors(diags)
	}
	return ct, diags, err
}

// PreprocessTemplate generates a self-contained Go source file for the
// template. typeName and pkg default to the configured values and then to
// names derived from the template file.
func (e *Engine) PreprocessTemplate(in Input, typeName, pkg string) (*Preprocessed, error) {
	host := e.hostFor(in)
	if typeName == "" {
		typeName = e.config.Preprocess.Class
	}
	if typeName == "" {
		typeName = ClassNameFromFile(in.File)
	}
	if pkg == "" {
		pkg = e.config.Preprocess.Namespace
	}
	if pkg == "" {
		pkg = settings.DefaultPackage
	}

	opts := &settings.PreprocessOptions{Package: pkg, TypeName: typeName}
	outputFile := ""
	if in.File != "" {
		outputFile = strings.TrimSuffix(in.File, filepath.Ext(in.File)) + ".go"
	}
	pt, s, src := e.front(in, host, opts, outputFile)

	out := &Preprocessed{Source: src, Package: pkg, TypeName: typeName, Diagnostics: pt.Diagnostics.All()}
	if s != nil {
		out.TypeName = s.TypeName
		out.References = s.References
		out.Extension = s.Extension
		out.Encoding = s.Encoding
	}
	if out.HasErrors() {
		out.Source = ""
	}
	host.LogErrors(out.Diagnostics)
	return out, nil
}

// front parses, resolves settings and generates code. Each phase runs only
// when the previous one left no errors.
func (e *Engine) front(in Input, host Host, preprocess *settings.PreprocessOptions, outputFile string) (*parser.ParsedTemplate, *settings.Settings, string) {
	pt := parser.ParseString(in.Content, in.File, parser.IncludeResolverFunc(host.LoadIncludeText), parser.Options{Logger: e.logger})
	if pt.HasErrors() {
		return pt, nil, ""
	}

	s := settings.Resolve(pt, settings.HostCapabilities{
		StandardImports:    host.StandardImports(),
		StandardReferences: host.StandardReferences(),
		Preprocess:         preprocess,
		LinePragmas:        e.config.Engine.LinePragmas,
		ResolveProcessor:   host.ResolveDirectiveProcessor,
		Logger:             e.logger,
	}, e.registry)
	if pt.HasErrors() {
		return pt, s, ""
	}

	_, src := codegen.GenerateWithOptions(pt, s, codegen.Options{OutputFile: outputFile, Logger: e.logger})
	return pt, s, src
}

func (e *Engine) compile(ctx context.Context, in Input, host Host) (*CompiledTemplate, []*errors.Diagnostic, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}
	outputFile := ""
	if in.File != "" {
		outputFile = filepath.Join(filepath.Dir(in.File), codegen.DefaultFileName)
	}
	pt, s, src := e.front(in, host, nil, outputFile)
	diags := pt.Diagnostics.All()
	includes := pt.Includes()
	if pt.HasErrors() || src == "" {
		return nil, diags, includes, nil
	}

	refs := e.references(s, host)
	kind := e.config.Engine.Compiler
	key, full := registryKey(src, strings.Join(refs, "\n"), kind, e.contractDir,
		strconv.FormatBool(s.Debug), s.LanguageVersion, strings.Join(s.CompilerOptions, " "))
	if e.templates != nil {
		if ct, ok := e.templates.Get(key, full); ok {
			e.logger.Debug(ctx, "compiled template found in registry", "type", ct.typeName)
			return ct, diags, includes, nil
		}
	}

	backend, err := e.compilerBackend()
	if err != nil {
		return nil, append(diags, diagnosticOf(err, errors.CodeRuntimeNotFound, in.File)), includes, nil
	}

	if t := e.config.Engine.Timeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	res, err := backend.Compile(ctx, &compiler.Request{
		Sources:    []compiler.SourceFile{{Name: codegen.DefaultFileName, Content: src}},
		References: refs,
		Options: compiler.Options{
			Debug:           s.Debug,
			LanguageVersion: s.LanguageVersion,
			Args:            s.CompilerOptions,
			WorkDir:         e.config.Engine.TempDir,
			KeepFiles:       e.config.Engine.KeepTempFiles,
		},
	})
	if err != nil {
		return nil, diags, includes, err
	}
	diags = append(diags, res.Diagnostics...)
	if !res.Success {
		return nil, diags, includes, nil
	}

	ct := &CompiledTemplate{
		engine:       e,
		assembly:     res.Assembly,
		typeName:     s.FullTypeName(),
		source:       src,
		references:   refs,
		extension:    s.Extension,
		encoding:     s.Encoding,
		hostSpecific: s.HostSpecific,
	}
	for _, p := range s.Parameters() {
		ct.parameters = append(ct.parameters, tt.ParameterRef{Processor: p.Processor, Name: p.Name})
	}
	if e.templates != nil {
		e.templates.Put(key, full, ct)
	}
	return ct, diags, includes, nil
}

// references returns the references of s mapped through the host, then
// the configured ones.
func (e *Engine) references(s *settings.Settings, host Host) []string {
	var refs []string
	seen := make(map[string]bool)
	add := func(ref string) {
		if ref != "" && !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	for _, ref := range s.References {
		if mapped, ok := host.ResolveReference(ref); ok {
			add(mapped)
			continue
		}
		add(ref)
	}
	for _, ref := range e.config.Paths.References {
		add(ref)
	}
	return refs
}

func (e *Engine) compilerBackend() (compiler.Backend, error) {
	if e.backend != nil {
		return e.backend, nil
	}
	rt, err := e.Runtime()
	if err != nil {
		return nil, err
	}
	if e.config.Engine.Compiler == config.CompilerInProcess {
		return compiler.NewInProcessBackend(rt, e.contractDir, e.logger), nil
	}
	return compiler.NewExternalBackend(rt, e.contractDir, e.logger), nil
}

func (e *Engine) loaderMaterializer() (loader.Materializer, error) {
	if e.materializer != nil {
		return e.materializer, nil
	}
	if m, ok := e.backend.(loader.Materializer); ok {
		return m, nil
	}
	rt, err := e.Runtime()
	if err != nil {
		return nil, err
	}
	return compiler.NewExternalBackend(rt, e.contractDir, e.logger), nil
}

func (e *Engine) hostFor(in Input) Host {
	if in.Host != nil {
		return in.Host
	}
	return NewFileHost(in.File, e.config.Paths.Include)
}

// CompiledTemplate is a template compiled once and processed any number
// of times. Every Process call runs in a fresh isolation boundary.
type CompiledTemplate struct {
	engine       *Engine
	assembly     *compiler.Assembly
	typeName     string
	source       string
	references   []string
	parameters   []tt.ParameterRef
	extension    string
	encoding     string
	hostSpecific bool
}

// TypeName is the full name of the generated type.
func (ct *CompiledTemplate) TypeName() string { return ct.typeName }

// Source is the generated Go source.
func (ct *CompiledTemplate) Source() string { return ct.source }

// Assembly is the compiled image.
func (ct *CompiledTemplate) Assembly() *compiler.Assembly { return ct.assembly }

// HostSpecific reports whether the template reads from its host.
func (ct *CompiledTemplate) HostSpecific() bool { return ct.hostSpecific }

// Process runs the template. A nil host uses a FileHost without a
// template file.
func (ct *CompiledTemplate) Process(ctx context.Context, host Host, session map[string]interface{}) (*Result, error) {
	if host == nil {
		host = ct.engine.hostFor(Input{})
	}
	res, err := ct.run(ctx, host, session)
	if err != nil {
		return nil, err
	}
	host.LogErrors(res.Diagnostics)
	return res, nil
}

func (ct *CompiledTemplate) run(ctx context.Context, host Host, session map[string]interface{}) (*Result, error) {
	e := ct.engine
	m, err := e.loaderMaterializer()
	if err != nil {
		return &Result{Diagnostics: []*errors.Diagnostic{diagnosticOf(err, errors.CodeRuntimeNotFound, "")}}, nil
	}

	exec := loader.NewExecutor(m, e.contractDir, e.logger)
	exec.TempDir = e.config.Engine.TempDir
	exec.KeepFiles = e.config.Engine.KeepTempFiles
	exec.Timeout = e.config.Engine.Timeout

	includePaths := append([]string(nil), e.config.Paths.Include...)
	if file := host.TemplateFile(); file != "" {
		includePaths = append([]string{filepath.Dir(file)}, includePaths...)
	}

	out, err := exec.Execute(ctx, ct.assembly, loader.Invocation{
		TypeName:       ct.typeName,
		Host:           host,
		Session:        session,
		Parameters:     ct.parameters,
		IncludePaths:   includePaths,
		ReferencePaths: localReferences(ct.references),
		ResolveModule:  moduleResolver(host),
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		Output:      out.Text,
		Extension:   out.FileExtension,
		Encoding:    out.Encoding,
		Diagnostics: out.Diagnostics,
	}
	if res.Extension == "" && ct.extension != "" {
		res.Extension = ct.extension
		host.SetFileExtension(ct.extension)
	}
	if res.Encoding == "" && ct.encoding != "" {
		res.Encoding = ct.encoding
		host.SetOutputEncoding(ct.encoding)
	}
	return res, nil
}

// localReferences keeps the references that name local modules.
func localReferences(refs []string) []string {
	var out []string
	for _, ref := range refs {
		if strings.Contains(ref, "=") {
			out = append(out, ref)
			continue
		}
		if filepath.IsAbs(ref) || strings.HasPrefix(ref, ".") {
			out = append(out, ref)
		}
	}
	return out
}

// moduleResolver maps a module path through the host's reference
// resolution.
func moduleResolver(host Host) loader.ModuleResolver {
	return func(module string) (string, bool) {
		mapped, ok := host.ResolveReference(module)
		if !ok {
			return "", false
		}
		if _, dir, found := strings.Cut(mapped, "="); found {
			mapped = dir
		}
		if strings.Contains(mapped, "@") {
			return "", false
		}
		abs, err := filepath.Abs(mapped)
		if err != nil {
			return "", false
		}
		return abs, true
	}
}

func diagnosticOf(err error, code, file string) *errors.Diagnostic {
	var te *errors.T4Error
	if errors.As(err, &te) {
		d := te.Diagnostic()
		if d.Location.IsEmpty() && file != "" {
			d.Location = source.Start(file)
		}
		return d
	}
	return &errors.Diagnostic{
		Severity: errors.SeverityError,
		Code:     code,
		Message:  fmt.Sprint(err),
		Location: source.Start(file),
	}
}

func hasErrors(diags []*errors.Diagnostic) bool {
	for _, d := range diags {
		if d.IsError() {
			return true
		}
	}
	return false
}
