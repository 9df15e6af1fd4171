package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/t4go/internal/config"
	"github.com/conneroisu/t4go/internal/engine"
	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/logging"
	"github.com/conneroisu/t4go/internal/validation"
	"github.com/conneroisu/t4go/internal/watcher"
)

// watchDelay groups the bursts of events editors produce on save.
const watchDelay = 200 * time.Millisecond

var (
	transformOutput      string
	transformParams      []string
	transformSession     string
	transformIncludes    []string
	transformReferences  []string
	transformParallel    int
	transformInProcess   bool
	transformWatch       bool
	transformLinePragmas string
)

var transformCmd = &cobra.Command{
	Use:     "transform <file.tt>...",
	Aliases: []string{"t"},
	Short:   "Run templates and write their output",
	Long: `Run one or more templates and write each output next to its template.

The output file takes the template's name with the extension set by the
template's output directive, or transform.extension when it has none.
Nothing is written for a template that reports errors.

Examples:
  t4go transform page.tt
  t4go transform -o - --param Name=World greeting.tt
  t4go transform --session values.yaml -I shared templates/*.tt
  t4go transform --watch templates/*.tt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTransform,
}

func init() {
	rootCmd.AddCommand(transformCmd)

	f := transformCmd.Flags()
	f.StringVarP(&transformOutput, "output", "o", "", "output file, - for stdout (single template only)")
	f.StringArrayVarP(&transformParams, "param", "p", nil, "parameter value as name=value or processor/name=value (repeatable)")
	f.StringVarP(&transformSession, "session", "s", "", "session values from a .yaml, .json or .toml file")
	f.StringSliceVarP(&transformIncludes, "include", "I", nil, "include search path (repeatable)")
	f.StringSliceVarP(&transformReferences, "reference", "r", nil, "module reference: dir, module=dir or path@version (repeatable)")
	f.IntVar(&transformParallel, "parallel", 0, "templates processed at once (default transform.parallel)")
	f.BoolVar(&transformInProcess, "in-process", false, "type-check and build in process instead of with go build")
	f.BoolVarP(&transformWatch, "watch", "w", false, "re-run templates when they or their includes change")
	f.Var(newEnumValue(&transformLinePragmas, config.PragmasAbsolute, config.PragmasRelative, config.PragmasOff),
		"line-pragmas", "line mapping of generated code (default engine.line_pragmas)")

	AddFlagValidation(transformCmd, "parallel", ValidatePositive)
	AddFlagValidation(transformCmd, "session", ValidateFileExists)
}

func runTransform(cmd *cobra.Command, args []string) error {
	if transformOutput != "" && transformOutput != "-" && len(args) > 1 {
		return fmt.Errorf("--output names a single file but %d templates were given", len(args))
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyTransformFlags(cfg); err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	session, err := loadSession(transformSession)
	if err != nil {
		return err
	}
	params, err := parseParams(transformParams)
	if err != nil {
		return err
	}

	t := &transformer{
		engine:  engine.New(cfg, engine.WithLogger(logger)),
		config:  cfg,
		params:  params,
		session: sessionWithParams(session, params),
		output:  transformOutput,
		stdout:  cmd.OutOrStdout(),
		stderr:  cmd.ErrOrStderr(),
		logger:  logger,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if transformWatch {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
	}

	failed, deps, err := t.run(ctx, args)
	if err != nil {
		return err
	}
	if transformWatch {
		return t.watch(ctx, args, deps)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d templates failed", failed, len(args))
	}
	return nil
}

// applyTransformFlags overlays command-line flags on the configuration and
// validates the result.
func applyTransformFlags(cfg *config.Config) error {
	if transformLinePragmas != "" {
		cfg.Engine.LinePragmas = transformLinePragmas
	}
	if transformParallel > 0 {
		cfg.Transform.Parallel = transformParallel
	}
	if transformInProcess {
		cfg.Engine.Compiler = config.CompilerInProcess
	}
	for _, dir := range transformIncludes {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolving include path %s: %w", dir, err)
		}
		cfg.Paths.Include = append(cfg.Paths.Include, abs)
	}
	cfg.Paths.References = append(cfg.Paths.References, transformReferences...)

	if result := config.ValidateConfigWithDetails(cfg); result.HasErrors() {
		return fmt.Errorf("invalid configuration: %w", &result.Errors[0])
	}
	return nil
}

// transformer runs templates and writes their output.
type transformer struct {
	engine  *engine.Engine
	config  *config.Config
	params  map[string]string
	session map[string]interface{}
	output  string
	stdout  io.Writer
	stderr  io.Writer
	logger  logging.Logger
}

// run processes files and returns how many failed together with the
// includes of every template, keyed by its absolute path. The error is
// reserved for cancellation.
func (t *transformer) run(ctx context.Context, files []string) (int, map[string][]string, error) {
	deps := make(map[string][]string, len(files))
	inputs := make([]engine.Input, 0, len(files))
	failed := 0
	for _, file := range files {
		in, err := t.input(file)
		if err != nil {
			errorColor.Fprintln(t.stderr, err)
			failed++
			continue
		}
		inputs = append(inputs, in)
	}

	results, err := t.engine.ProcessBatch(ctx, inputs, t.config.Transform.Parallel)
	for _, r := range results {
		if r == nil {
			continue
		}
		abs, _ := filepath.Abs(r.Input.File)
		if r.Err != nil {
			reportFailure(t.stderr, r.Input.File, r.Err)
			t.logger.Debug(ctx, "template failed", "template", r.Input.File, "cause", errors.GetRootCause(r.Err))
			failed++
			continue
		}
		deps[abs] = r.Result.Includes
		printDiagnostics(t.stderr, r.Result.Diagnostics)
		if r.Result.HasErrors() {
			failed++
			continue
		}
		if err := t.write(r.Input.File, r.Result); err != nil {
			errorColor.Fprintln(t.stderr, err)
			failed++
		}
	}
	return failed, deps, err
}

// reportFailure prints the error of a template that did not finish. Fatal
// outcomes, a crashed, killed or cancelled template process, are marked.
func reportFailure(w io.Writer, file string, err error) {
	if errors.IsFatal(err) {
		errorColor.Fprintf(w, "%s: fatal: %v\n", file, err)
		return
	}
	errorColor.Fprintf(w, "%s: %v\n", file, err)
}

func (t *transformer) input(file string) (engine.Input, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return engine.Input{}, fmt.Errorf("reading template: %w", err)
	}
	host := engine.NewFileHost(file, t.config.Paths.Include)
	host.Parameters = t.params
	host.Logger = t.logger
	return engine.Input{
		File:    file,
		Content: string(data),
		Host:    host,
		Session: t.session,
	}, nil
}

// write encodes the output and writes it to its destination.
func (t *transformer) write(file string, res *engine.Result) error {
	data, err := engine.EncodeOutput(res.Output, res.Encoding)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}

	dest := t.output
	if dest == "-" {
		_, err := t.stdout.Write(data)
		return err
	}
	if dest == "" {
		ext := res.Extension
		if ext == "" {
			ext = t.config.Transform.Extension
		}
		if err := validation.ValidateFileExtension(ext); err != nil {
			return fmt.Errorf("%s: output extension: %w", file, err)
		}
		dest = engine.OutputPath(file, validation.NormalizeExtension(ext))
	}
	if err := validation.ValidateOutputPath(dest); err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	t.logger.Info(context.Background(), "wrote output", "template", file, "output", dest, "bytes", len(data))
	return nil
}

// watch re-runs templates whenever they or their includes change, until
// ctx is done.
func (t *transformer) watch(ctx context.Context, files []string, deps map[string][]string) error {
	w, err := watcher.New(watchDelay, t.logger)
	if err != nil {
		return err
	}
	watchDeps := func(deps map[string][]string) error {
		for tmpl, includes := range deps {
			if err := w.Watch(append([]string{tmpl}, includes...)...); err != nil {
				return err
			}
		}
		return nil
	}

	byPath := make(map[string]string, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		byPath[abs] = f
		if _, ok := deps[abs]; !ok {
			deps[abs] = nil
		}
	}
	if err := watchDeps(deps); err != nil {
		return err
	}

	w.OnChange(func(ctx context.Context, events []watcher.ChangeEvent) error {
		rerun := affected(events, deps, byPath)
		if len(rerun) == 0 {
			return nil
		}
		infoColor.Fprintf(t.stderr, "Change detected, transforming %d template(s)\n", len(rerun))
		_, updated, err := t.run(ctx, rerun)
		if err != nil {
			return err
		}
		for k, v := range updated {
			deps[k] = v
		}
		return watchDeps(updated)
	})

	infoColor.Fprintln(t.stderr, "Watching for changes. Press Ctrl+C to stop.")
	return w.Run(ctx)
}

// affected returns the templates, as given on the command line, that
// changed or include a changed file.
func affected(events []watcher.ChangeEvent, deps map[string][]string, byPath map[string]string) []string {
	changed := make(map[string]bool, len(events))
	for _, e := range events {
		changed[e.Path] = true
	}

	var out []string
	for abs, file := range byPath {
		hit := changed[abs]
		for _, inc := range deps[abs] {
			hit = hit || changed[inc]
		}
		if hit {
			out = append(out, file)
		}
	}
	sort.Strings(out)
	return out
}
