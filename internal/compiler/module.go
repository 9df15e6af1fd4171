package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/mod/modfile"

	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/runtimes"
	"github.com/conneroisu/t4go/pkg/tt"
)

const (
	// ModulePath is the module path of synthesized template modules.
	ModulePath = "t4go.local/template"
	// ResponseFile records the exact go build argument list.
	ResponseFile = "build.rsp"
	// placeholderVersion is required for modules provided by a replace.
	placeholderVersion = "v0.0.0-00010101000000-000000000000"
)

// ContractModule is the module that provides the runtime package imported
// by generated code.
var ContractModule = strings.TrimSuffix(tt.ImportPath, "/pkg/tt")

// DefaultContractDir returns the root of the module this binary was built
// from, which provides the runtime package. It is empty when the sources
// are not available, for example in trimmed builds.
func DefaultContractDir() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok || !filepath.IsAbs(file) {
		return ""
	}
	root := filepath.Dir(filepath.Dir(filepath.Dir(file)))
	if _, err := os.Stat(filepath.Join(root, "go.mod")); err != nil {
		return ""
	}
	return root
}

// moduleFile synthesizes the go.mod of a template build: the contract
// module pinned to contractDir, local references by replace and remote
// references by version.
func moduleFile(goVersion, contractDir string, refs []runtimes.Reference) (string, error) {
	f := new(modfile.File)
	if err := f.AddModuleStmt(ModulePath); err != nil {
		return "", err
	}
	if goVersion = strings.TrimPrefix(goVersion, "go"); goVersion != "" {
		if err := f.AddGoStmt(goVersion); err != nil {
			return "", errors.ArgumentError("LanguageVersion", err.Error())
		}
	}

	seen := make(map[string]bool)
	replace := func(path, dir string) error {
		f.AddNewRequire(path, placeholderVersion, false)
		return f.AddReplace(path, "", filepath.ToSlash(dir), "")
	}
	if contractDir != "" {
		if err := replace(ContractModule, contractDir); err != nil {
			return "", err
		}
		seen[ContractModule] = true
	}
	for _, ref := range refs {
		if ref.Std || seen[ref.Module] {
			continue
		}
		seen[ref.Module] = true
		switch {
		case ref.Local():
			if err := replace(ref.Module, ref.Dir); err != nil {
				return "", err
			}
		case ref.Version != "":
			f.AddNewRequire(ref.Module, ref.Version, false)
		}
	}

	f.Cleanup()
	data, err := f.Format()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// moduleFiles returns the complete file set of a template module.
func moduleFiles(req *Request, rt *runtimes.Runtime, contractDir string, refs []runtimes.Reference) ([]SourceFile, error) {
	goVersion := req.Options.LanguageVersion
	if goVersion == "" && rt != nil {
		goVersion = rt.MaxLanguageVersion
	}
	gomod, err := moduleFile(goVersion, contractDir, refs)
	if err != nil {
		return nil, err
	}
	files := append([]SourceFile(nil), req.Sources...)
	files = append(files, SourceFile{Name: "go.mod", Content: gomod})

	// Seeding go.sum from the contract module avoids checksum lookups for
	// the runtime package's own dependencies.
	if contractDir != "" {
		if sum, err := os.ReadFile(filepath.Join(contractDir, "go.sum")); err == nil {
			files = append(files, SourceFile{Name: "go.sum", Content: string(sum)})
		}
	}
	return files, nil
}

// writeFiles writes files into dir. File names must be plain base names.
func writeFiles(dir string, files []SourceFile) error {
	for _, f := range files {
		if f.Name == "" || f.Name != filepath.Base(f.Name) || f.Name == "." || f.Name == ".." {
			return errors.ArgumentError("SourceFile.Name", fmt.Sprintf("%q is not a plain file name", f.Name))
		}
		if err := os.WriteFile(filepath.Join(dir, f.Name), []byte(f.Content), 0o644); err != nil {
			return errors.FileOperationError("write", filepath.Join(dir, f.Name), err)
		}
	}
	return nil
}

// sourceImage is the msgpack layout of an ImageSource assembly.
type sourceImage struct {
	Files map[string]string `msgpack:"files"`
	Args  []string          `msgpack:"args"`
}

func encodeSourceImage(files []SourceFile, args []string) ([]byte, error) {
	img := sourceImage{Files: make(map[string]string, len(files)), Args: args}
	for _, f := range files {
		img.Files[f.Name] = f.Content
	}
	return msgpack.Marshal(&img)
}

func decodeSourceImage(data []byte) ([]SourceFile, []string, error) {
	var img sourceImage
	if err := msgpack.Unmarshal(data, &img); err != nil {
		return nil, nil, fmt.Errorf("corrupt source image: %w", err)
	}
	names := make([]string, 0, len(img.Files))
	for name := range img.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	files := make([]SourceFile, 0, len(names))
	for _, name := range names {
		files = append(files, SourceFile{Name: name, Content: img.Files[name]})
	}
	return files, img.Args, nil
}

// Relink returns a source image whose go.mod binds the contract module to
// contractDir and every local reference to the directory bind returns for
// its module. A reference bind does not know keeps its compiled directory
// if that still exists; otherwise linking fails. Native images are
// returned unchanged since they carry all their code.
func Relink(asm *Assembly, contractDir string, bind func(module string) (string, bool)) (*Assembly, error) {
	if asm == nil {
		return nil, errors.ArgumentError("asm", "must not be nil")
	}
	if asm.Kind() != ImageSource {
		return asm, nil
	}

	files, args, err := decodeSourceImage(asm.image)
	if err != nil {
		return nil, err
	}

	goVersion := ""
	for _, f := range files {
		if f.Name != "go.mod" {
			continue
		}
		if mf, err := modfile.ParseLax(f.Name, []byte(f.Content), nil); err == nil && mf.Go != nil {
			goVersion = mf.Go.Version
		}
	}

	refs := asm.References()
	for i, ref := range refs {
		if !ref.Local() {
			continue
		}
		if bind != nil {
			if dir, ok := bind(ref.Module); ok {
				refs[i].Dir = dir
				continue
			}
		}
		if info, err := os.Stat(ref.Dir); err != nil || !info.IsDir() {
			return nil, errors.NewRuntimeError(errors.CodeLoadFailed,
				fmt.Sprintf("cannot resolve module %s: %s no longer exists and no reference path provides it", ref.Module, ref.Dir), nil, false)
		}
	}

	for i, f := range files {
		if f.Name != "go.mod" {
			continue
		}
		if files[i].Content, err = moduleFile(goVersion, contractDir, refs); err != nil {
			return nil, err
		}
	}
	image, err := encodeSourceImage(files, args)
	if err != nil {
		return nil, err
	}
	return NewAssembly(ImageSource, image, refs), nil
}
