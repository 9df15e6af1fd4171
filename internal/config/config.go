// Package config provides configuration management for t4go using Viper
// for configuration loading from files, environment variables, and
// command-line flags.
//
// The configuration file is .t4go.yml. Every key can be overridden through
// the environment with the T4GO_ prefix, for example T4GO_ENGINE_COMPILER.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// Compiler backends.
const (
	CompilerExternal  = "external"
	CompilerInProcess = "inprocess"
)

// Line pragma modes.
const (
	PragmasAbsolute = "absolute"
	PragmasRelative = "relative"
	PragmasOff      = "off"
)

type Config struct {
	Engine     EngineConfig     `mapstructure:"engine"`
	Paths      PathsConfig      `mapstructure:"paths"`
	SDK        SDKConfig        `mapstructure:"sdk"`
	Transform  TransformConfig  `mapstructure:"transform"`
	Preprocess PreprocessConfig `mapstructure:"preprocess"`
	Log        LogConfig        `mapstructure:"log"`
}

type EngineConfig struct {
	Compiler      string        `mapstructure:"compiler"`
	LinePragmas   string        `mapstructure:"line_pragmas"`
	KeepTempFiles bool          `mapstructure:"keep_temp_files"`
	TempDir       string        `mapstructure:"temp_dir"`
	Timeout       time.Duration `mapstructure:"timeout"`
	CacheSize     int64         `mapstructure:"cache_size"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

type PathsConfig struct {
	Include    []string `mapstructure:"include"`
	References []string `mapstructure:"references"`
}

type SDKConfig struct {
	Dir              string   `mapstructure:"dir"`
	SearchPaths      []string `mapstructure:"search_paths"`
	Version          string   `mapstructure:"version"`
	RuntimeModuleDir string   `mapstructure:"runtime_module_dir"`
}

type TransformConfig struct {
	Parallel  int    `mapstructure:"parallel"`
	Extension string `mapstructure:"extension"`
}

type PreprocessConfig struct {
	Namespace string `mapstructure:"namespace"`
	Class     string `mapstructure:"class"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("engine.compiler", CompilerExternal)
	v.SetDefault("engine.line_pragmas", PragmasAbsolute)
	v.SetDefault("engine.keep_temp_files", false)
	v.SetDefault("engine.temp_dir", "")
	v.SetDefault("engine.timeout", 2*time.Minute)
	v.SetDefault("engine.cache_size", int64(64<<20))
	v.SetDefault("engine.cache_ttl", 30*time.Minute)
	v.SetDefault("paths.include", []string{})
	v.SetDefault("paths.references", []string{})
	v.SetDefault("sdk.dir", "")
	v.SetDefault("sdk.search_paths", []string{})
	v.SetDefault("sdk.version", "")
	v.SetDefault("sdk.runtime_module_dir", "")
	v.SetDefault("transform.parallel", runtime.GOMAXPROCS(0))
	v.SetDefault("transform.extension", ".txt")
	v.SetDefault("preprocess.namespace", "templates")
	v.SetDefault("preprocess.class", "")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Slices set through env or flags arrive as strings.
	if v.IsSet("paths.include") && len(config.Paths.Include) == 0 {
		config.Paths.Include = v.GetStringSlice("paths.include")
	}
	if v.IsSet("paths.references") && len(config.Paths.References) == 0 {
		config.Paths.References = v.GetStringSlice("paths.references")
	}
	if v.IsSet("sdk.search_paths") && len(config.SDK.SearchPaths) == 0 {
		config.SDK.SearchPaths = v.GetStringSlice("sdk.search_paths")
	}

	result := ValidateConfigWithDetails(&config)
	if result.HasErrors() {
		return nil, fmt.Errorf("invalid configuration: %w", &result.Errors[0])
	}

	return &config, nil
}

// Default returns the configuration with every default applied.
func Default() *Config {
	config, err := LoadFrom(viper.New())
	if err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return config
}
