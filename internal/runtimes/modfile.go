package runtimes

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
)

// Requirement is a require line of a go.mod file.
type Requirement struct {
	Path    string
	Version string
}

// ModFile is the part of a go.mod file the compiler needs.
type ModFile struct {
	Module  string
	Go      string
	Require []Requirement
	// Replace maps module paths to local directories. Versioned
	// replacements are not recorded.
	Replace map[string]string
}

// ReadModFile reads the module path, go version, requirements and
// directory replacements of a go.mod file. Replacement directories are
// made absolute against the file's directory.
func ReadModFile(path string) (*ModFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := modfile.Parse(path, data, nil)
	if err != nil {
		return nil, err
	}
	if f.Module == nil || f.Module.Mod.Path == "" {
		return nil, fmt.Errorf("%s declares no module", path)
	}

	mf := &ModFile{Module: f.Module.Mod.Path, Replace: make(map[string]string)}
	if f.Go != nil {
		mf.Go = f.Go.Version
	}
	for _, r := range f.Require {
		mf.Require = append(mf.Require, Requirement{Path: r.Mod.Path, Version: r.Mod.Version})
	}
	dir := filepath.Dir(path)
	for _, r := range f.Replace {
		// A replacement without a version is a directory.
		if r.New.Version != "" {
			continue
		}
		target := filepath.FromSlash(r.New.Path)
		if !filepath.IsAbs(target) {
			target = filepath.Join(dir, target)
		}
		mf.Replace[r.Old.Path] = target
	}
	return mf, nil
}

// ModulePath reads the module path declared by a go.mod file.
func ModulePath(gomod string) (string, error) {
	data, err := os.ReadFile(gomod)
	if err != nil {
		return "", err
	}
	f, err := modfile.ParseLax(gomod, data, nil)
	if err != nil {
		return "", err
	}
	if f.Module == nil || f.Module.Mod.Path == "" {
		return "", fmt.Errorf("%s declares no module", gomod)
	}
	return f.Module.Mod.Path, nil
}

// ModuleCacheDir returns the module download cache, honoring GOMODCACHE
// and GOPATH.
func ModuleCacheDir(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	if dir := getenv("GOMODCACHE"); dir != "" {
		return dir
	}
	gopath := getenv("GOPATH")
	if gopath == "" {
		home := getenv("HOME")
		if home == "" {
			home, _ = os.UserHomeDir()
		}
		gopath = filepath.Join(home, "go")
	}
	return filepath.Join(filepath.SplitList(gopath)[0], "pkg", "mod")
}

// EscapePath applies the module cache's case encoding: every upper-case
// letter becomes '!' followed by its lower-case form. Paths the module
// system rejects are returned unchanged.
func EscapePath(path string) string {
	escaped, err := module.EscapePath(path)
	if err != nil {
		return path
	}
	return escaped
}

// ModuleDir returns the directory of path@version in the module cache.
func ModuleDir(cache, path, version string) string {
	v, err := module.EscapeVersion(version)
	if err != nil {
		v = version
	}
	return filepath.Join(cache, filepath.FromSlash(EscapePath(path))+"@"+v)
}
