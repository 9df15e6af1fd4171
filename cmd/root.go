// Package cmd provides the t4go command-line interface.
//
// Configuration is read from .t4go.yml in the working directory, the file
// named by --config or the T4GO_CONFIG_FILE environment variable. Every key
// can be overridden with a T4GO_<SECTION>_<KEY> environment variable, for
// example T4GO_ENGINE_COMPILER=inprocess. Command-line flags win over both.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/t4go/internal/config"
	"github.com/conneroisu/t4go/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "t4go",
	Short: "Text templates compiled to Go and run in isolation",
	Long: `t4go processes text templates. Each template is parsed, turned into a
Go program, compiled with the detected Go toolchain and run in a separate
process; whatever the program writes becomes the output file.

Quick Start:
  t4go transform page.tt             Generate page.txt (or the extension set by <#@ output #>)
  t4go transform -o - page.tt        Print the output instead
  t4go preprocess page.tt            Generate page.go for use at runtime
  t4go sdk                           Show the Go toolchain templates compile with`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .t4go.yml, can also use T4GO_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig selects the configuration file: --config, then
// T4GO_CONFIG_FILE, then .t4go.yml in the working directory. A missing
// default file is not an error.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("T4GO_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".t4go")
	}

	viper.SetEnvPrefix("T4GO")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			fmt.Fprintln(os.Stderr, "Warning: reading config file:", err)
		}
	}
}

// loadConfig reads the validated configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// newLogger creates the CLI logger. Logs go to stderr so that "-o -"
// output stays clean.
func newLogger(cmd *cobra.Command, cfg *config.Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Log.Format,
		Output:    cmd.ErrOrStderr(),
		Component: "t4go",
	}), nil
}
