// Package validation vets the values that end up on a toolchain command line
// or select a file to write, before any process is started.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// allowedBuildFlags lists the go build flags templates may pass through
// compilerOptions. Flags that redirect output, change directory or wrap the
// toolchain are reserved for the compiler backend.
var allowedBuildFlags = map[string]bool{
	"-a":        true,
	"-asan":     true,
	"-asmflags": true,
	"-buildvcs": true,
	"-cover":    true,
	"-gcflags":  true,
	"-ldflags":  true,
	"-msan":     true,
	"-race":     true,
	"-tags":     true,
	"-trimpath": true,
	"-v":        true,
}

// ValidateArgument validates a command line argument to prevent injection attacks
func ValidateArgument(arg string) error {
	if strings.ContainsRune(arg, 0) {
		return fmt.Errorf("contains NUL byte")
	}

	// Shell metacharacters have no business in a toolchain argument even
	// though no shell is involved.
	dangerous := []string{";", "&", "|", "$", "`", "<", ">", "\n", "\r"}
	for _, char := range dangerous {
		if strings.Contains(arg, char) {
			return fmt.Errorf("contains dangerous character: %q", char)
		}
	}

	return nil
}

// ValidateBuildFlag validates one compilerOptions token against the allowlist.
func ValidateBuildFlag(flag string) error {
	if err := ValidateArgument(flag); err != nil {
		return fmt.Errorf("invalid compiler option %q: %w", flag, err)
	}

	name := flag
	if i := strings.IndexByte(flag, '='); i >= 0 {
		name = flag[:i]
	}
	name = "-" + strings.TrimLeft(name, "-")

	if !allowedBuildFlags[name] {
		return fmt.Errorf("compiler option %q is not allowed", flag)
	}

	return nil
}

// ValidateCommand validates a command name against an allowlist
func ValidateCommand(command string, allowedCommands map[string]bool) error {
	if command == "" {
		return fmt.Errorf("command cannot be empty")
	}

	// Both separators count so that Windows paths validate on any host.
	base := command[strings.LastIndexAny(command, `/\`)+1:]
	base = strings.TrimSuffix(base, ".exe")
	if !allowedCommands[base] {
		return fmt.Errorf("command '%s' is not allowed", command)
	}

	if err := ValidateArgument(command); err != nil {
		return fmt.Errorf("invalid command '%s': %w", command, err)
	}

	return nil
}

// ValidatePath validates a configured file or directory path.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("path contains NUL byte")
	}

	dangerousChars := []string{"|", "`", "<", ">", "\n", "\r"}
	for _, char := range dangerousChars {
		if strings.Contains(path, char) {
			return fmt.Errorf("path contains dangerous character: %q", char)
		}
	}

	return nil
}

// ValidateOutputPath validates a path generated output is about to be written to.
func ValidateOutputPath(path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}

	cleanPath := filepath.ToSlash(filepath.Clean(path))
	restrictedPaths := []string{
		"/etc/",
		"/proc/",
		"/sys/",
		"/dev/",
		"/boot/",
	}
	for _, restricted := range restrictedPaths {
		if strings.HasPrefix(strings.ToLower(cleanPath), restricted) {
			return fmt.Errorf("writing to restricted path denied: %s", path)
		}
	}

	return nil
}

// ValidateFileExtension validates an output file extension such as ".txt".
func ValidateFileExtension(ext string) error {
	if ext == "" {
		return fmt.Errorf("extension cannot be empty")
	}
	trimmed := strings.TrimPrefix(ext, ".")
	if trimmed == "" {
		return fmt.Errorf("extension %q has no name", ext)
	}
	if strings.ContainsAny(trimmed, `/\:*?"<>|`) || strings.ContainsRune(trimmed, 0) {
		return fmt.Errorf("extension %q contains a path character", ext)
	}

	return nil
}

// NormalizeExtension returns ext with exactly one leading dot.
func NormalizeExtension(ext string) string {
	return "." + strings.TrimLeft(ext, ".")
}
