// Package settings resolves the per-run settings of a parsed template from
// its directives and the capabilities of the host.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/language"

	"github.com/conneroisu/t4go/internal/codedom"
	"github.com/conneroisu/t4go/internal/directive"
	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/logging"
	"github.com/conneroisu/t4go/internal/parser"
	"github.com/conneroisu/t4go/internal/source"
)

const (
	// DefaultTypeName names the generated type.
	DefaultTypeName = "GeneratedTextTransformation"
	// DefaultPackage is the package of transform runs.
	DefaultPackage = "main"
	// Receiver is the receiver name of generated methods.
	Receiver = "t"
)

// Line pragma modes.
const (
	PragmasAbsolute = "absolute"
	PragmasRelative = "relative"
	PragmasOff      = "off"
)

// PreprocessOptions turns a run into preprocessing mode.
type PreprocessOptions struct {
	// Package of the generated file.
	Package string
	// TypeName of the generated type.
	TypeName string
}

// HostCapabilities is what the host contributes to settings resolution.
type HostCapabilities struct {
	StandardImports    []string
	StandardReferences []string
	Preprocess         *PreprocessOptions
	// LinePragmas is the configured pragma mode. "off" overrides the
	// template; "relative" applies when the template enables pragmas.
	LinePragmas      string
	ResolveProcessor directive.ResolverFunc
	Logger           logging.Logger
}

// Settings are the resolved settings of one run.
type Settings struct {
	Language        string
	LanguageVersion string
	Provider        codedom.Provider
	Debug           bool
	Inherits        string
	Culture         string
	HostSpecific    bool
	// HostFromBase reports that the base type provides the host accessors.
	HostFromBase    bool
	CompilerOptions []string
	LinePragmas     bool
	RelativePragmas bool
	Internal        bool
	Extension       string
	Encoding        string

	Package       string
	TypeName      string
	Receiver      string
	Preprocessing bool

	Imports    []codedom.Import
	References []string

	// Processors are the started processors in the order of first use.
	Processors   []directive.Processor
	Contribution directive.Contribution
}

// FullTypeName is the package-qualified name of the generated type.
func (s *Settings) FullTypeName() string {
	return s.Package + "." + s.TypeName
}

// Parameters returns the parameters declared by every processor.
func (s *Settings) Parameters() []directive.Parameter {
	return s.Contribution.Parameters
}

// AddImport adds an import once.
func (s *Settings) AddImport(path, alias string) {
	for _, imp := range s.Imports {
		if imp.Path == path && imp.Alias == alias {
			return
		}
	}
	s.Imports = append(s.Imports, codedom.Import{Path: path, Alias: alias})
}

// AddReference adds a reference once.
func (s *Settings) AddReference(ref string) {
	for _, r := range s.References {
		if r == ref {
			return
		}
	}
	s.References = append(s.References, ref)
}

type resolver struct {
	pt         *parser.ParsedTemplate
	caps       HostCapabilities
	registry   *directive.Registry
	s          *Settings
	processors map[string]directive.Processor
	logger     logging.Logger
}

// Resolve walks the directives of pt in document order and returns the
// settings of the run. Later values of the same attribute win. Problems are
// recorded in pt.Diagnostics. A nil registry uses the default one.
func Resolve(pt *parser.ParsedTemplate, caps HostCapabilities, registry *directive.Registry) *Settings {
	if registry == nil {
		registry = directive.NewDefaultRegistry()
	}

	s := &Settings{
		Language:    "Go",
		Provider:    codedom.NewGoProvider(),
		LinePragmas: true,
		Package:     DefaultPackage,
		TypeName:    DefaultTypeName,
		Receiver:    Receiver,
	}
	if caps.Preprocess != nil {
		s.Preprocessing = true
		if caps.Preprocess.Package != "" {
			s.Package = caps.Preprocess.Package
		}
		if caps.Preprocess.TypeName != "" {
			s.TypeName = caps.Preprocess.TypeName
		}
	}
	for _, imp := range caps.StandardImports {
		s.AddImport(imp, "")
	}
	for _, ref := range caps.StandardReferences {
		s.AddReference(ref)
	}

	r := &resolver{
		pt:         pt,
		caps:       caps,
		registry:   registry,
		s:          s,
		processors: make(map[string]directive.Processor),
		logger:     logging.OrNop(caps.Logger).WithComponent("settings"),
	}

	for _, d := range pt.Directives() {
		switch {
		case d.Is("template"):
			r.template(d)
		case d.Is("output"):
			r.output(d)
		case d.Is("assembly"):
			r.assembly(d)
		case d.Is("import"):
			r.importDirective(d)
		default:
			r.custom(d)
		}
	}

	switch caps.LinePragmas {
	case PragmasOff:
		s.LinePragmas = false
	case PragmasRelative:
		s.RelativePragmas = true
	}

	if s.Internal && s.TypeName != "" {
		first, size := utf8.DecodeRuneInString(s.TypeName)
		s.TypeName = string(unicode.ToLower(first)) + s.TypeName[size:]
	}

	r.finish()
	return s
}

func (r *resolver) template(d *parser.Directive) {
	for _, key := range d.Attributes.Keys() {
		value := d.Attributes.Value(key)
		switch strings.ToLower(key) {
		case "language":
			p, ok := codedom.ProviderFor(value)
			if !ok {
				r.pt.Errorf(d.Start, errors.CodeUnsupportedLanguage,
					"language '%s' is not supported; use one of %s", value, strings.Join(codedom.Languages(), ", "))
				continue
			}
			r.s.Language = p.Language()
			r.s.Provider = p

		case "langversion":
			r.s.LanguageVersion = strings.TrimSpace(value)

		case "debug":
			if b, ok := r.parseBool(d, key, value); ok {
				r.s.Debug = b
			}

		case "inherits":
			r.s.Inherits = strings.TrimSpace(value)

		case "culture":
			if value == "" {
				r.s.Culture = ""
				continue
			}
			tag, err := language.Parse(value)
			if err != nil {
				r.pt.Errorf(d.Start, errors.CodeInvalidAttribute, "culture '%s' is not a valid language tag", value)
				continue
			}
			r.s.Culture = tag.String()

		case "hostspecific":
			switch strings.ToLower(strings.TrimSpace(value)) {
			case "true":
				r.s.HostSpecific, r.s.HostFromBase = true, false
			case "false":
				r.s.HostSpecific, r.s.HostFromBase = false, false
			case "truefrombase":
				r.s.HostSpecific, r.s.HostFromBase = true, true
			default:
				r.pt.Errorf(d.Start, errors.CodeInvalidAttribute,
					"hostspecific must be true, false or trueFromBase, not '%s'", value)
			}

		case "compileroptions":
			r.s.CompilerOptions = append(r.s.CompilerOptions[:0], strings.Fields(value)...)

		case "linepragmas":
			switch strings.ToLower(strings.TrimSpace(value)) {
			case "true", PragmasAbsolute:
				r.s.LinePragmas, r.s.RelativePragmas = true, false
			case PragmasRelative:
				r.s.LinePragmas, r.s.RelativePragmas = true, true
			case "false", PragmasOff:
				r.s.LinePragmas = false
			default:
				r.pt.Errorf(d.Start, errors.CodeInvalidAttribute,
					"linePragmas must be true, false, absolute or relative, not '%s'", value)
			}

		case "visibility":
			switch strings.ToLower(strings.TrimSpace(value)) {
			case "public":
				r.s.Internal = false
			case "internal":
				r.s.Internal = true
			default:
				r.pt.Errorf(d.Start, errors.CodeInvalidAttribute,
					"visibility must be public or internal, not '%s'", value)
			}

		default:
			r.unknownAttribute(d, key)
		}
	}
}

func (r *resolver) output(d *parser.Directive) {
	for _, key := range d.Attributes.Keys() {
		value := d.Attributes.Value(key)
		switch strings.ToLower(key) {
		case "extension":
			r.s.Extension = strings.TrimSpace(value)
		case "encoding":
			enc, err := ianaindex.IANA.Encoding(value)
			if err != nil || enc == nil {
				r.pt.Errorf(d.Start, errors.CodeInvalidAttribute, "encoding '%s' is not supported", value)
				continue
			}
			name, err := ianaindex.IANA.Name(enc)
			if err != nil {
				name = value
			}
			r.s.Encoding = name
		default:
			r.unknownAttribute(d, key)
		}
	}
}

func (r *resolver) assembly(d *parser.Directive) {
	name, ok := d.Attributes.Get("name")
	if !ok || strings.TrimSpace(name) == "" {
		r.pt.Errorf(d.Start, errors.CodeMissingAttribute, "assembly directive requires a name attribute")
		return
	}
	r.s.AddReference(strings.TrimSpace(name))
	r.warnExtra(d, "name")
}

func (r *resolver) importDirective(d *parser.Directive) {
	ns, ok := d.Attributes.Get("namespace")
	if !ok || strings.TrimSpace(ns) == "" {
		r.pt.Errorf(d.Start, errors.CodeMissingAttribute, "import directive requires a namespace attribute")
		return
	}
	r.s.AddImport(strings.TrimSpace(ns), strings.TrimSpace(d.Attributes.Value("alias")))
	r.warnExtra(d, "namespace", "alias")
}

func (r *resolver) custom(d *parser.Directive) {
	attrs := d.Attributes.Clone()
	name, ok := attrs.Extract("processor")
	if !ok || name == "" {
		name, ok = r.registry.ForDirective(d.Name)
	}
	if !ok || name == "" {
		r.pt.Errorf(d.Start, errors.CodeUnknownProcessor,
			"no directive processor is registered for directive '%s'", d.Name)
		return
	}

	p, err := r.processor(name)
	if err != nil {
		r.fail(d, err)
		return
	}
	if !p.IsDirectiveSupported(d.Name) {
		r.pt.Errorf(d.Start, errors.CodeUnknownProcessor,
			"directive processor '%s' does not support directive '%s'", name, d.Name)
		return
	}
	if err := p.Process(d.Name, attrs); err != nil {
		r.fail(d, err)
	}
}

// processor returns the run's processor instance, starting it on first use.
func (r *resolver) processor(name string) (directive.Processor, error) {
	key := strings.ToLower(name)
	if p, ok := r.processors[key]; ok {
		return p, nil
	}

	factory, err := r.registry.Resolve(name, r.caps.ResolveProcessor)
	if err != nil {
		return nil, err
	}
	p := factory()
	if p == nil {
		return nil, errors.NewSemanticError(errors.CodeUnknownProcessor,
			fmt.Sprintf("directive processor '%s' could not be created", name))
	}

	p.Start(&directive.RunContext{
		Provider:        r.s.Provider,
		TemplateContent: r.pt.Content,
		Diagnostics:     r.pt.Diagnostics,
		Preprocessing:   r.s.Preprocessing,
		Receiver:        r.s.Receiver,
		Logger:          r.logger,
	})
	r.processors[key] = p
	r.s.Processors = append(r.s.Processors, p)
	r.logger.Debug(context.Background(), "started directive processor", "processor", name)
	return p, nil
}

func (r *resolver) finish() {
	s := r.s

	for _, p := range s.Processors {
		if p.RequiresHostSpecific() && !s.HostSpecific {
			s.HostSpecific = true
			r.pt.Warnf(sourceOf(r.pt), errors.CodeHostSpecificForced,
				"directive processor '%s' requires a host-specific template; hostspecific was set to true", p.Name())
		}
	}

	for _, p := range s.Processors {
		p.SetHostSpecific(s.HostSpecific)
	}

	for _, p := range s.Processors {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.pt.Errorf(sourceOf(r.pt), errors.CodeProcessorFailed,
						"directive processor '%s' failed: %v", p.Name(), rec)
				}
			}()
			p.Finish()
			s.Contribution.Merge(p.Contribution())
		}()
	}

	for _, imp := range s.Contribution.Imports {
		s.AddImport(imp, "")
	}
	for _, ref := range s.Contribution.References {
		s.AddReference(ref)
	}
}

func (r *resolver) parseBool(d *parser.Directive, key, value string) (bool, bool) {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		r.pt.Errorf(d.Start, errors.CodeInvalidAttribute,
			"attribute '%s' of directive '%s' must be true or false, not '%s'", key, d.Name, value)
		return false, false
	}
	return b, true
}

func (r *resolver) unknownAttribute(d *parser.Directive, key string) {
	r.pt.Warnf(d.Start, errors.CodeUnknownAttribute,
		"unknown attribute '%s' on directive '%s'", key, d.Name)
}

func (r *resolver) warnExtra(d *parser.Directive, known ...string) {
	for _, key := range d.Attributes.Keys() {
		isKnown := false
		for _, k := range known {
			if strings.EqualFold(k, key) {
				isKnown = true
				break
			}
		}
		if !isKnown {
			r.unknownAttribute(d, key)
		}
	}
}

func (r *resolver) fail(d *parser.Directive, err error) {
	var te *errors.T4Error
	if errors.As(err, &te) {
		if te.Location.IsEmpty() {
			te = te.WithLocation(d.Start)
		}
		r.pt.Diagnostics.AddError(te)
		return
	}
	r.pt.Errorf(d.Start, errors.CodeProcessorFailed, "%v", err)
}

func sourceOf(pt *parser.ParsedTemplate) source.Location {
	return source.Location{File: pt.File}
}
