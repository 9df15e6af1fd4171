package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// enumValue is a string flag restricted to a fixed set of values. The
// empty string means "not set" and defers to the configuration.
type enumValue struct {
	value   *string
	allowed []string
}

var _ pflag.Value = (*enumValue)(nil)

func newEnumValue(p *string, allowed ...string) *enumValue {
	return &enumValue{value: p, allowed: allowed}
}

func (e *enumValue) String() string { return *e.value }

func (e *enumValue) Type() string { return strings.Join(e.allowed, "|") }

func (e *enumValue) Set(s string) error {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, a := range e.allowed {
		if s == a {
			*e.value = s
			return nil
		}
	}
	return fmt.Errorf("must be one of: %s", strings.Join(e.allowed, ", "))
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:       flag.Value,
		validator:   validator,
		originalSet: flag.Value.Set,
	}
}

type validatingValue struct {
	pflag.Value
	validator   func(string) error
	originalSet func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.originalSet(val)
}

// ValidatePositive accepts integers greater than zero.
func ValidatePositive(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid number: %s", s)
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1, got %d", n)
	}
	return nil
}

// ValidateFileExists accepts the empty string and existing files.
func ValidateFileExists(filename string) error {
	if filename == "" {
		return nil
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filename)
	}
	return nil
}

// parseParams splits "name=value" arguments. A name may be qualified as
// "processor/name".
func parseParams(args []string) (map[string]string, error) {
	params := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected name=value", arg)
		}
		params[name] = value
	}
	return params, nil
}

// loadSession reads session values from a YAML, JSON or TOML file chosen
// by extension. An empty path yields an empty session.
func loadSession(path string) (map[string]interface{}, error) {
	session := make(map[string]interface{})
	if path == "" {
		return session, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &session); err != nil {
			return nil, fmt.Errorf("invalid TOML in session file %s: %w", path, err)
		}
	case ".yaml", ".yml", ".json":
		if err := yaml.Unmarshal(data, &session); err != nil {
			return nil, fmt.Errorf("invalid YAML in session file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported session file %s (use .yaml, .yml, .json or .toml)", path)
	}
	if session == nil {
		session = make(map[string]interface{})
	}
	return session, nil
}

// sessionWithParams overlays parameter values on the session. Qualified
// names are stored under their bare parameter name.
func sessionWithParams(session map[string]interface{}, params map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(session)+len(params))
	for k, v := range session {
		out[k] = v
	}
	for k, v := range params {
		if i := strings.LastIndex(k, "/"); i >= 0 {
			k = k[i+1:]
		}
		out[k] = v
	}
	return out
}
