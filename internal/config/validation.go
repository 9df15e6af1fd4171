package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/conneroisu/t4go/internal/logging"
	"github.com/conneroisu/t4go/internal/validation"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, items []ValidationError) {
		if len(items) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, item := range items {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", item.Field, item.Message))
			for _, suggestion := range item.Suggestions {
				builder.WriteString(fmt.Sprintf("      %s\n", suggestion))
			}
		}
	}
	write("errors", vr.Errors)
	write("warnings", vr.Warnings)

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, msg string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, msg string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

// ValidateConfigWithDetails performs validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{}

	validateEngineConfig(&config.Engine, result)
	validatePathsConfig(&config.Paths, result)
	validateSDKConfig(&config.SDK, result)
	validateTransformConfig(&config.Transform, result)
	validateLogConfig(&config.Log, result)

	result.Valid = !result.HasErrors()

	return result
}

func validateEngineConfig(config *EngineConfig, result *ValidationResult) {
	switch config.Compiler {
	case CompilerExternal, CompilerInProcess:
	default:
		result.addError("engine.compiler", config.Compiler,
			fmt.Sprintf("unknown compiler backend %q", config.Compiler),
			"Use 'external' to build with the go command",
			"Use 'inprocess' to type-check without spawning the compiler")
	}

	switch config.LinePragmas {
	case PragmasAbsolute, PragmasRelative, PragmasOff:
	default:
		result.addError("engine.line_pragmas", config.LinePragmas,
			fmt.Sprintf("unknown line pragma mode %q", config.LinePragmas),
			"Valid modes: absolute, relative, off")
	}

	if config.Timeout <= 0 {
		result.addError("engine.timeout", config.Timeout, "timeout must be positive")
	}
	if config.CacheSize < 0 {
		result.addError("engine.cache_size", config.CacheSize, "cache size cannot be negative")
	}

	if config.TempDir != "" {
		if err := validation.ValidatePath(config.TempDir); err != nil {
			result.addError("engine.temp_dir", config.TempDir, err.Error())
		} else if !dirExists(config.TempDir) {
			result.addWarning("engine.temp_dir", config.TempDir, "directory does not exist, it will be created")
		}
	}
}

func validatePathsConfig(config *PathsConfig, result *ValidationResult) {
	for _, path := range config.Include {
		if err := validation.ValidatePath(path); err != nil {
			result.addError("paths.include", path, err.Error())
			continue
		}
		if !dirExists(path) {
			result.addWarning("paths.include", path, "include directory does not exist")
		}
	}
	for _, ref := range config.References {
		if err := validation.ValidateArgument(ref); err != nil {
			result.addError("paths.references", ref, err.Error())
		}
	}
}

func validateSDKConfig(config *SDKConfig, result *ValidationResult) {
	if config.Dir != "" {
		if err := validation.ValidatePath(config.Dir); err != nil {
			result.addError("sdk.dir", config.Dir, err.Error())
		}
	}
	for _, path := range config.SearchPaths {
		if err := validation.ValidatePath(path); err != nil {
			result.addError("sdk.search_paths", path, err.Error())
		}
	}
	if config.RuntimeModuleDir != "" {
		if err := validation.ValidatePath(config.RuntimeModuleDir); err != nil {
			result.addError("sdk.runtime_module_dir", config.RuntimeModuleDir, err.Error())
		}
	}
}

func validateTransformConfig(config *TransformConfig, result *ValidationResult) {
	if config.Parallel <= 0 {
		result.addError("transform.parallel", config.Parallel, "parallelism must be greater than zero")
	}
	if err := validation.ValidateFileExtension(config.Extension); err != nil {
		result.addError("transform.extension", config.Extension, err.Error())
	}
}

func validateLogConfig(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.addError("log.level", config.Level, err.Error(),
			"Valid levels: debug, info, warn, error, off")
	}
	switch config.Format {
	case "text", "json":
	default:
		result.addError("log.format", config.Format, fmt.Sprintf("unknown log format %q", config.Format),
			"Valid formats: text, json")
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
