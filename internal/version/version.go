// Package version reports build information for t4go version.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// These variables are set at build time using -ldflags
var (
	// Version is the semantic version of the application
	Version = "dev"
	// Commit is the git commit hash when the binary was built
	Commit = "unknown"
	// BuildTime is the time when the binary was built (RFC3339 format)
	BuildTime = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string    `json:"version" yaml:"version"`
	Commit    string    `json:"commit" yaml:"commit"`
	BuildTime time.Time `json:"build_time,omitempty" yaml:"build_time,omitempty"`
	Dirty     bool      `json:"dirty,omitempty" yaml:"dirty,omitempty"`
	// GoVersion is the toolchain t4go was built with, not necessarily the
	// one that compiles templates.
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Get returns the build information, filling gaps from the module's
// embedded VCS settings.
func Get() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: parseTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.BuildTime.IsZero() {
				info.BuildTime = parseTime(s.Value)
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
	if info.Version == "dev" && len(info.Commit) >= 7 && info.Commit != "unknown" {
		info.Version = "dev-" + info.Commit[:7]
	}
	return info
}

// IsRelease reports whether this is a tagged build.
func (b BuildInfo) IsRelease() bool {
	return b.Version != "dev" && !strings.HasPrefix(b.Version, "dev-")
}

// Short returns "version (commit)" or just the version.
func (b BuildInfo) Short() string {
	if b.IsRelease() && len(b.Commit) >= 7 && b.Commit != "unknown" {
		return fmt.Sprintf("%s (%s)", b.Version, b.Commit[:7])
	}
	return b.Version
}

// Lines returns the detailed build information as label/value pairs.
func (b BuildInfo) Lines() [][2]string {
	lines := [][2]string{{"Version", b.Version}}
	if b.Commit != "unknown" {
		commit := b.Commit
		if b.Dirty {
			commit += " (modified)"
		}
		lines = append(lines, [2]string{"Commit", commit})
	}
	if !b.BuildTime.IsZero() {
		lines = append(lines, [2]string{"Built", b.BuildTime.Format(time.RFC3339)})
	}
	lines = append(lines, [2]string{"Go", b.GoVersion}, [2]string{"Platform", b.Platform})
	return lines
}

// parseTime parses an ISO 8601 time string, returning the zero time on
// failure.
func parseTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
