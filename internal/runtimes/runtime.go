// Package runtimes discovers Go toolchains on disk and resolves the
// references a template compiles against.
package runtimes

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/logging"
)

// Kind is the build model of a toolchain.
type Kind string

const (
	// KindModules toolchains build with go.mod files.
	KindModules Kind = "modules"
	// KindGOPATH toolchains predate modules and resolve imports under GOPATH.
	KindGOPATH Kind = "gopath"
)

// modulesSince is the first release with module support.
var modulesSince = MustParse("1.11.0")

// Runtime is a detected toolchain.
type Runtime struct {
	Kind Kind
	// Root is the GOROOT of the toolchain.
	Root   string
	BinDir string
	// ReferenceDir holds the standard library sources.
	ReferenceDir string
	// FacadesDir is GOPATH/src, searched after ReferenceDir by GOPATH
	// toolchains.
	FacadesDir         string
	Version            Version
	MaxLanguageVersion string
}

// GoBinary returns the path of the go command.
func (r *Runtime) GoBinary() string {
	return filepath.Join(r.BinDir, goExecutable())
}

// Options controls detection.
type Options struct {
	// Dir is an explicit GOROOT. When set nothing else is searched.
	Dir string
	// SearchPaths are roots whose go* subdirectories are candidates. Nil
	// means ~/sdk, /usr/local and /usr/lib.
	SearchPaths []string
	// Version restricts candidates to a version prefix such as "1.22".
	Version string
	Logger  logging.Logger

	Getenv   func(string) string
	LookPath func(string) (string, error)
}

func (o *Options) getenv(key string) string {
	if o.Getenv != nil {
		return o.Getenv(key)
	}
	return os.Getenv(key)
}

func (o *Options) lookPath(name string) (string, error) {
	if o.LookPath != nil {
		return o.LookPath(name)
	}
	return exec.LookPath(name)
}

// DefaultLanguageVersion is the language version a toolchain compiles at
// when a template does not ask for one.
func DefaultLanguageVersion(v Version) string {
	return v.MajorMinor()
}

// Detect finds the highest toolchain matching opts.
func Detect(opts Options) (*Runtime, error) {
	logger := logging.OrNop(opts.Logger).WithComponent("runtimes")
	ctx := context.Background()

	var best *Runtime
	var seen []string
	for _, root := range candidates(&opts) {
		rt, err := inspect(root, &opts)
		if err != nil {
			logger.Debug(ctx, "skipping toolchain candidate", "root", root, "reason", err.Error())
			seen = append(seen, root)
			continue
		}
		if !matchesVersion(rt.Version, opts.Version) {
			logger.Debug(ctx, "toolchain version does not match", "root", root, "version", rt.Version.String())
			seen = append(seen, root)
			continue
		}
		if best == nil || best.Version.LessThan(rt.Version) {
			best = rt
		}
	}

	if best == nil {
		msg := "no Go toolchain found"
		if opts.Version != "" {
			msg = fmt.Sprintf("no Go toolchain matching version %s found", opts.Version)
		}
		if len(seen) > 0 {
			msg += " (searched " + strings.Join(seen, ", ") + ")"
		}
		return nil, errors.NewCompileError(errors.CodeRuntimeNotFound, msg, nil)
	}

	logger.Info(ctx, "detected toolchain", "root", best.Root, "version", best.Version.String())
	return best, nil
}

// candidates lists possible GOROOTs in preference order, without duplicates.
func candidates(opts *Options) []string {
	if opts.Dir != "" {
		return []string{opts.Dir}
	}

	var out []string
	seen := make(map[string]bool)
	add := func(dir string) {
		if dir == "" {
			return
		}
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		if !seen[dir] {
			seen[dir] = true
			out = append(out, dir)
		}
	}

	add(opts.getenv("GOROOT"))

	if bin, err := opts.lookPath("go"); err == nil {
		if resolved, err := filepath.EvalSymlinks(bin); err == nil {
			bin = resolved
		}
		add(filepath.Dir(filepath.Dir(bin)))
	}

	roots := opts.SearchPaths
	if roots == nil {
		if home := opts.getenv("HOME"); home != "" {
			roots = append(roots, filepath.Join(home, "sdk"))
		}
		roots = append(roots, "/usr/local", "/usr/lib")
	}
	for _, root := range roots {
		matches, _ := filepath.Glob(filepath.Join(root, "go*"))
		for _, m := range matches {
			add(m)
		}
	}
	return out
}

func inspect(root string, opts *Options) (*Runtime, error) {
	bin := filepath.Join(root, "bin")
	if info, err := os.Stat(filepath.Join(bin, goExecutable())); err != nil || info.IsDir() {
		return nil, fmt.Errorf("no %s in %s", goExecutable(), bin)
	}

	data, err := os.ReadFile(filepath.Join(root, "VERSION"))
	if err != nil {
		return nil, fmt.Errorf("unreadable VERSION file: %w", err)
	}
	v, err := FromGoVersion(string(data))
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Kind:               KindModules,
		Root:               root,
		BinDir:             bin,
		ReferenceDir:       filepath.Join(root, "src"),
		Version:            v,
		MaxLanguageVersion: DefaultLanguageVersion(v),
	}
	if v.LessThan(modulesSince) {
		rt.Kind = KindGOPATH
		gopath := opts.getenv("GOPATH")
		if gopath == "" {
			if home := opts.getenv("HOME"); home != "" {
				gopath = filepath.Join(home, "go")
			}
		}
		if gopath != "" {
			rt.FacadesDir = filepath.Join(filepath.SplitList(gopath)[0], "src")
		}
	}
	return rt, nil
}

// matchesVersion reports whether v starts with prefix at a component
// boundary, so "1.2" does not match 1.22.0.
func matchesVersion(v Version, prefix string) bool {
	prefix = strings.TrimPrefix(strings.TrimSpace(prefix), "go")
	if prefix == "" {
		return true
	}
	s := v.String()
	if !strings.HasPrefix(s, prefix) {
		return false
	}
	if len(s) == len(prefix) {
		return true
	}
	switch s[len(prefix)] {
	case '.', '-', '+':
		return true
	}
	return false
}

func goExecutable() string {
	if runtime.GOOS == "windows" {
		return "go.exe"
	}
	return "go"
}
