package runtimes

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/t4go/internal/errors"
)

// Reference is a resolved assembly reference: a module the generated code
// may import.
type Reference struct {
	// Spec is the reference as written.
	Spec string
	// Module is the module or import path.
	Module string
	// Dir is a local directory providing Module, if any.
	Dir string
	// Version is the required module version for remote modules.
	Version string
	// Std marks packages of the toolchain's standard library, which need
	// no requirement.
	Std bool
}

// Local reports whether the reference is satisfied by a directory.
func (r Reference) Local() bool {
	return r.Dir != ""
}

// ResolveReference resolves one reference. Accepted forms are
// "module=dir", a directory containing go.mod, "path@version" and a bare
// import path found under the runtime's reference directories.
func ResolveReference(rt *Runtime, spec string) (Reference, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Reference{}, errors.ArgumentError("spec", "must not be empty")
	}
	ref := Reference{Spec: spec}

	if module, dir, ok := strings.Cut(spec, "="); ok {
		module, dir = strings.TrimSpace(module), strings.TrimSpace(dir)
		if module == "" || dir == "" {
			return Reference{}, unresolved(spec, "want module=dir")
		}
		abs, err := existingDir(dir)
		if err != nil {
			return Reference{}, unresolved(spec, err.Error())
		}
		ref.Module, ref.Dir = module, abs
		return ref, nil
	}

	if info, err := os.Stat(spec); err == nil && info.IsDir() {
		abs, err := existingDir(spec)
		if err != nil {
			return Reference{}, unresolved(spec, err.Error())
		}
		module, err := ModulePath(filepath.Join(abs, "go.mod"))
		if err != nil {
			return Reference{}, unresolved(spec, err.Error())
		}
		ref.Module, ref.Dir = module, abs
		return ref, nil
	}

	if path, version, ok := strings.Cut(spec, "@"); ok {
		if path == "" || version == "" {
			return Reference{}, unresolved(spec, "want path@version")
		}
		ref.Module, ref.Version = path, version
		return ref, nil
	}

	ref.Module = spec
	if rt == nil {
		return Reference{}, unresolved(spec, "no toolchain to resolve it against")
	}
	if isDir(filepath.Join(rt.ReferenceDir, filepath.FromSlash(spec))) {
		ref.Std = true
		return ref, nil
	}
	if rt.Kind == KindGOPATH && rt.FacadesDir != "" {
		dir := filepath.Join(rt.FacadesDir, filepath.FromSlash(spec))
		if isDir(dir) {
			ref.Dir = dir
			return ref, nil
		}
	}
	return Reference{}, unresolved(spec, "not found in "+rt.ReferenceDir)
}

func unresolved(spec, reason string) error {
	return errors.NewSemanticError(errors.CodeUnresolvedReference,
		fmt.Sprintf("cannot resolve reference %q: %s", spec, reason))
}

func existingDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if !isDir(abs) {
		return "", fmt.Errorf("%s is not a directory", dir)
	}
	return abs, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
