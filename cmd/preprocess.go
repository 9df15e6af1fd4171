package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/t4go/internal/engine"
	"github.com/conneroisu/t4go/internal/validation"
)

var (
	preprocessClass     string
	preprocessNamespace string
	preprocessOutput    string
)

var preprocessCmd = &cobra.Command{
	Use:     "preprocess <file.tt>",
	Aliases: []string{"pp"},
	Short:   "Generate Go source for a template",
	Long: `Generate a self-contained Go source file for a template. The generated
type has a TransformText method that renders the template at runtime
without t4go.

The package defaults to preprocess.namespace and the type name to
preprocess.class, or to a name derived from the template file.

Examples:
  t4go preprocess views/user_profile.tt                 # writes views/user_profile.go
  t4go preprocess --namespace views --class Profile page.tt
  t4go preprocess -o - page.tt`,
	Args: cobra.ExactArgs(1),
	RunE: runPreprocess,
}

func init() {
	rootCmd.AddCommand(preprocessCmd)

	preprocessCmd.Flags().StringVar(&preprocessClass, "class", "", "name of the generated type")
	preprocessCmd.Flags().StringVar(&preprocessNamespace, "namespace", "", "package of the generated file")
	preprocessCmd.Flags().StringVarP(&preprocessOutput, "output", "o", "", "output file, - for stdout (default <template>.go)")
}

func runPreprocess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	file := args[0]
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("reading template: %w", err)
	}

	host := engine.NewFileHost(file, cfg.Paths.Include)
	host.Logger = logger
	e := engine.New(cfg, engine.WithLogger(logger))
	out, err := e.PreprocessTemplate(engine.Input{File: file, Content: string(data), Host: host}, preprocessClass, preprocessNamespace)
	if err != nil {
		return err
	}

	printDiagnostics(cmd.ErrOrStderr(), out.Diagnostics)
	if n := countErrors(out.Diagnostics); n > 0 {
		return fmt.Errorf("preprocessing failed with %d error(s)", n)
	}

	dest := preprocessOutput
	if dest == "-" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), out.Source)
		return err
	}
	if dest == "" {
		dest = engine.OutputPath(file, ".go")
	}
	if err := validation.ValidateOutputPath(dest); err != nil {
		return err
	}
	if err := os.WriteFile(dest, []byte(out.Source), 0o644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	logger.Info(context.Background(), "wrote generated source", "template", file, "output", dest,
		"package", out.Package, "type", out.TypeName)
	return nil
}
