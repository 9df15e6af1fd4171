package parser

import (
	"os"
	"path/filepath"
)

// IncludeResolver loads the text of included documents.
//
// ResolveInclude returns the content of name and its canonical identity,
// the key used for once="true" deduplication and for locations inside the
// included document.
type IncludeResolver interface {
	ResolveInclude(name string) (content, location string, ok bool)
}

// IncludeResolverFunc adapts a function to IncludeResolver.
type IncludeResolverFunc func(name string) (content, location string, ok bool)

// ResolveInclude implements IncludeResolver.
func (f IncludeResolverFunc) ResolveInclude(name string) (string, string, bool) {
	return f(name)
}

// FileIncludeResolver reads includes from disk. Relative names are tried
// as given, then against each search path in order.
type FileIncludeResolver struct {
	SearchPaths []string
}

// ResolveInclude implements IncludeResolver. The canonical identity is the
// cleaned absolute path.
func (r *FileIncludeResolver) ResolveInclude(name string) (string, string, bool) {
	candidates := []string{name}
	if !filepath.IsAbs(name) {
		for _, dir := range r.SearchPaths {
			candidates = append(candidates, filepath.Join(dir, name))
		}
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		data, err := os.ReadFile(candidate)
		if err != nil {
			continue
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			abs = candidate
		}
		return string(data), filepath.Clean(abs), true
	}

	return "", "", false
}

// MapIncludeResolver serves includes from memory, keyed by cleaned path.
type MapIncludeResolver map[string]string

// ResolveInclude implements IncludeResolver.
func (m MapIncludeResolver) ResolveInclude(name string) (string, string, bool) {
	key := filepath.Clean(name)
	content, ok := m[key]
	return content, key, ok
}
