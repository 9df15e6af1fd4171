package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/t4go/internal/compiler"
	"github.com/conneroisu/t4go/internal/engine"
	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/runtimes"
)

var sdkFormat string

var sdkCmd = &cobra.Command{
	Use:   "sdk",
	Short: "Show the Go toolchain used to compile templates",
	Long: `Detect the Go toolchain the same way transform does and print it.

The search honours sdk.dir, sdk.search_paths and sdk.version from the
configuration, then PATH and GOROOT.

Examples:
  t4go sdk
  t4go sdk --format json
  T4GO_SDK_VERSION=1.22 t4go sdk`,
	Args: cobra.NoArgs,
	RunE: runSDK,
}

func init() {
	rootCmd.AddCommand(sdkCmd)

	sdkCmd.Flags().StringVarP(&sdkFormat, "format", "f", "text", "Output format (text, json, yaml)")
}

// sdkInfo is the printable form of a detected runtime.
type sdkInfo struct {
	Kind               string `json:"kind" yaml:"kind"`
	Version            string `json:"version" yaml:"version"`
	Root               string `json:"root" yaml:"root"`
	Go                 string `json:"go" yaml:"go"`
	MaxLanguageVersion string `json:"max_language_version" yaml:"max_language_version"`
	ContractDir        string `json:"contract_dir,omitempty" yaml:"contract_dir,omitempty"`
}

func newSDKInfo(rt *runtimes.Runtime, contractDir string) sdkInfo {
	return sdkInfo{
		Kind:               string(rt.Kind),
		Version:            rt.Version.String(),
		Root:               rt.Root,
		Go:                 rt.GoBinary(),
		MaxLanguageVersion: rt.MaxLanguageVersion,
		ContractDir:        contractDir,
	}
}

func runSDK(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	rt, err := engine.New(cfg, engine.WithLogger(logger)).Runtime()
	if err != nil {
		if s := errors.SuggestionsFor([]*errors.Diagnostic{{Code: errors.CodeRuntimeNotFound}}); len(s) > 0 {
			fmt.Fprint(cmd.ErrOrStderr(), errors.FormatSuggestions("", s))
		}
		return err
	}

	contractDir := cfg.SDK.RuntimeModuleDir
	if contractDir == "" {
		contractDir = compiler.DefaultContractDir()
	}
	return writeSDKInfo(cmd.OutOrStdout(), newSDKInfo(rt, contractDir), sdkFormat)
}

func writeSDKInfo(w io.Writer, info sdkInfo, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "yaml":
		return yaml.NewEncoder(w).Encode(info)
	case "text":
		rows := [][2]string{
			{"Kind", info.Kind},
			{"Version", info.Version},
			{"Root", info.Root},
			{"Go", info.Go},
			{"Language", info.MaxLanguageVersion},
		}
		if info.ContractDir != "" {
			rows = append(rows, [2]string{"Runtime module", info.ContractDir})
		}
		writeRows(w, rows)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json, yaml)", format)
	}
}

// writeRows prints aligned label/value pairs with highlighted labels.
func writeRows(w io.Writer, rows [][2]string) {
	width := 0
	for _, r := range rows {
		if len(r[0]) > width {
			width = len(r[0])
		}
	}
	for _, r := range rows {
		labelColor.Fprintf(w, "%-*s", width+1, r[0]+":")
		fmt.Fprintf(w, " %s\n", r[1])
	}
}
