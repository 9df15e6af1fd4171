package codedom

import "strings"

// Options controls rendering.
type Options struct {
	// LinePragmas maps generated code back to template locations. When it
	// is off, Go output is gofmt-formatted.
	LinePragmas bool
}

// Provider renders compilation units for one target language.
type Provider interface {
	// Language is the canonical language name.
	Language() string
	FileExtension() string
	Render(unit *CompilationUnit, opts Options) (string, error)
	// RenderStatement renders a single statement without line pragmas.
	RenderStatement(st Statement) string
	// Quote renders s as a string constant.
	Quote(s string) string
	IsValidIdentifier(name string) bool
}

var providers = map[string]func() Provider{
	"go":     func() Provider { return NewGoProvider() },
	"golang": func() Provider { return NewGoProvider() },
}

// ProviderFor returns the provider for a template language name, matched
// without regard to case.
func ProviderFor(language string) (Provider, bool) {
	newProvider, ok := providers[strings.ToLower(strings.TrimSpace(language))]
	if !ok {
		return nil, false
	}
	return newProvider(), true
}

// Languages lists the accepted language names.
func Languages() []string {
	return []string{"Go", "golang"}
}
