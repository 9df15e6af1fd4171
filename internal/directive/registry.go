package directive

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/conneroisu/t4go/internal/errors"
)

// ResolverFunc finds processors that were not registered up front.
type ResolverFunc func(name string) (Factory, error)

// Registry maps processor names to factories and directive names to the
// processor that handles them. Registries are safe for concurrent use.
type Registry struct {
	factories  map[string]Factory
	directives map[string]string
	resolver   ResolverFunc
	mutex      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories:  make(map[string]Factory),
		directives: make(map[string]string),
	}
}

// NewDefaultRegistry creates a registry with the built-in processors.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ParameterProcessorName, NewParameterProcessor, ParameterDirectiveName)
	return r
}

// Register adds a processor factory and routes the given directive names
// to it. Names are case-insensitive.
func (r *Registry) Register(name string, factory Factory, directives ...string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.factories[strings.ToLower(name)] = factory
	for _, d := range directives {
		r.directives[strings.ToLower(d)] = name
	}
}

// SetResolver installs the hook consulted for unknown processor names.
func (r *Registry) SetResolver(fn ResolverFunc) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.resolver = fn
}

// Lookup returns the registered factory for a processor name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	f, ok := r.factories[strings.ToLower(name)]
	return f, ok
}

// Resolve returns the factory for a processor name, consulting the
// resolver hook and then fallback for processors not registered.
func (r *Registry) Resolve(name string, fallback ResolverFunc) (Factory, error) {
	if f, ok := r.Lookup(name); ok {
		return f, nil
	}

	r.mutex.RLock()
	resolver := r.resolver
	r.mutex.RUnlock()

	for _, fn := range []ResolverFunc{resolver, fallback} {
		if fn == nil {
			continue
		}
		f, err := fn(name)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeSemantic, errors.CodeUnknownProcessor,
				fmt.Sprintf("could not resolve directive processor '%s'", name))
		}
		if f != nil {
			return f, nil
		}
	}

	return nil, errors.NewSemanticError(errors.CodeUnknownProcessor,
		fmt.Sprintf("no directive processor named '%s' is registered", name))
}

// ForDirective returns the processor name registered for a directive.
func (r *Registry) ForDirective(directive string) (string, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	name, ok := r.directives[strings.ToLower(directive)]
	return name, ok
}

// Names returns the registered processor names, sorted.
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
