// Package codegen turns a parsed template and its settings into a
// compilation unit and its rendered source.
package codegen

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/conneroisu/t4go/internal/codedom"
	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/logging"
	"github.com/conneroisu/t4go/internal/parser"
	"github.com/conneroisu/t4go/internal/settings"
	"github.com/conneroisu/t4go/internal/source"
	"github.com/conneroisu/t4go/pkg/tt"
)

// DefaultFileName is the name of the generated file of transform runs.
const DefaultFileName = "template.go"

// Options configures generation.
type Options struct {
	// OutputFile is the path the generated source is written to. Relative
	// line pragmas are computed against its directory.
	OutputFile string
	Logger     logging.Logger
}

type generator struct {
	pt   *parser.ParsedTemplate
	s    *settings.Settings
	opts Options
	unit *codedom.CompilationUnit
	recv *codedom.Ident
	prov codedom.Provider
	// usesRuntime is set when the unit refers to package tt.
	usesRuntime bool
}

// Generate builds the compilation unit of pt and renders it. Nothing is
// generated when pt already has errors. Problems found while generating
// are recorded in pt.Diagnostics; the unit is still returned.
func Generate(pt *parser.ParsedTemplate, s *settings.Settings) (*codedom.CompilationUnit, string) {
	return GenerateWithOptions(pt, s, Options{})
}

// GenerateWithOptions is Generate with explicit options.
func GenerateWithOptions(pt *parser.ParsedTemplate, s *settings.Settings, opts Options) (*codedom.CompilationUnit, string) {
	if pt == nil || s == nil || pt.HasErrors() {
		return nil, ""
	}

	logger := logging.OrNop(opts.Logger).WithComponent("codegen")
	perf := logging.StartOperation(logger, "generate")
	defer perf.End(context.Background())

	provider := s.Provider
	if provider == nil {
		provider = codedom.NewGoProvider()
	}
	g := &generator{
		pt:   pt,
		s:    s,
		opts: opts,
		recv: &codedom.Ident{Name: s.Receiver},
		prov: provider,
	}
	g.build()

	src, err := provider.Render(g.unit, codedom.Options{LinePragmas: s.LinePragmas})
	if err != nil {
		pt.Errorf(source.Location{File: pt.File}, errors.CodeRenderFailed, "could not render generated code: %v", err)
		return g.unit, ""
	}
	return g.unit, src
}

func (g *generator) build() {
	s := g.s
	fileName := DefaultFileName
	if g.opts.OutputFile != "" {
		fileName = filepath.Base(g.opts.OutputFile)
	}

	from := "template"
	if g.pt.File != "" {
		from = filepath.Base(g.pt.File)
	}
	g.unit = &codedom.CompilationUnit{
		FileName: fileName,
		Header:   []string{fmt.Sprintf("Code generated by t4go from %s. DO NOT EDIT.", from)},
		Package:  s.Package,
	}

	typeRef := "*" + s.TypeName
	td := &codedom.TypeDecl{
		Doc:        []string{fmt.Sprintf("%s renders %s.", s.TypeName, from)},
		Name:       s.TypeName,
		Directives: s.Contribution.TypeDirectives,
		Embeds:     []string{g.baseType()},
		Fields:     append([]codedom.Field(nil), s.Contribution.Fields...),
	}
	if s.HostSpecific && !s.HostFromBase {
		td.Fields = append(td.Fields, codedom.Field{Name: "host", Type: "tt.Host"})
		g.usesRuntime = true
	}

	transform, helpers := g.walk()

	decls := []codedom.Decl{td, transform, g.initialize()}
	if s.HostSpecific && !s.HostFromBase {
		decls = append(decls, g.hostAccessors(typeRef)...)
	}
	decls = append(decls, helpers...)

	for _, m := range s.Contribution.Methods {
		if m.Recv == "" {
			bound := *m
			bound.Recv, bound.RecvType = s.Receiver, typeRef
			m = &bound
		}
		decls = append(decls, m)
	}
	if s.Contribution.ClassCode != "" {
		decls = append(decls, &codedom.Snippet{Code: s.Contribution.ClassCode})
	}

	if s.Preprocessing && s.Inherits == "" {
		decls = append(decls, &codedom.Snippet{Code: selfContainedBase(s.TypeName)})
		g.unit.AddImport("fmt", "")
		g.unit.AddImport("strings", "")
	}
	if !s.Preprocessing {
		decls = append(decls, g.entryPoint())
		g.usesRuntime = true
	}

	if g.usesRuntime {
		g.unit.AddImport(tt.ImportPath, "")
	}
	for _, imp := range s.Imports {
		g.unit.AddImport(imp.Path, imp.Alias)
	}
	g.unit.Decls = decls
}

// baseType returns the embedded base of the generated type.
func (g *generator) baseType() string {
	switch {
	case g.s.Inherits != "":
		return g.s.Inherits
	case g.s.Preprocessing:
		return baseName(g.s.TypeName)
	default:
		g.usesRuntime = true
		return "tt.TextTransformation"
	}
}

// walk builds TransformText from the segments. Everything from the first
// helper on belongs to the helper section and becomes top-level code.
func (g *generator) walk() (*codedom.Func, []codedom.Decl) {
	s := g.s
	body := append([]codedom.Statement(nil), s.Contribution.TransformPrologue...)
	var helpers []codedom.Decl
	helperMode := false

	for _, seg := range g.pt.Segments() {
		loc := g.pragma(seg.Start)
		var st codedom.Statement

		switch seg.Kind {
		case parser.BlockSegment:
			if helperMode {
				g.pt.Errorf(seg.TagStart, errors.CodeBlockAfterHelper,
					"a statement block cannot follow a helper block")
				helpers = append(helpers, &codedom.Snippet{Code: seg.Text, Pragma: loc})
				continue
			}
			st = &codedom.SnippetStmt{Code: seg.Text, Pragma: loc}

		case parser.ExpressionSegment:
			st = g.writeValue(&codedom.Raw{Code: seg.Text, Pragma: loc})
			if helperMode {
				plain := g.writeValue(&codedom.Raw{Code: seg.Text})
				helpers = append(helpers, &codedom.Snippet{Code: g.prov.RenderStatement(plain), Pragma: loc})
				continue
			}

		case parser.ContentSegment:
			st = codedom.Invoke(g.recv, "Write", &codedom.Literal{Value: seg.Text})
			if helperMode {
				if strings.TrimSpace(seg.Text) != "" {
					helpers = append(helpers, &codedom.Snippet{Code: g.prov.RenderStatement(st)})
				}
				continue
			}

		case parser.HelperSegment:
			helpers = append(helpers, &codedom.Snippet{Code: seg.Text, Pragma: loc})
			helperMode = true
			continue
		}

		body = append(body, st)
	}

	body = append(body, &codedom.Return{
		Value: codedom.MethodCall(codedom.MethodCall(g.recv, "GenerationEnvironment"), "String"),
	})

	return &codedom.Func{
		Doc:      []string{"TransformText renders the template."},
		Recv:     s.Receiver,
		RecvType: "*" + s.TypeName,
		Name:     "TransformText",
		Results:  "string",
		Body:     body,
	}, helpers
}

func (g *generator) writeValue(x codedom.Expression) codedom.Statement {
	return codedom.Invoke(g.recv, "Write",
		codedom.MethodCall(codedom.MethodCall(g.recv, "ToStringHelper"), "ToStringWithCulture", x))
}

func (g *generator) initialize() *codedom.Func {
	s := g.s
	body := append([]codedom.Statement(nil), s.Contribution.PreInit...)

	if s.Inherits == "" {
		base := "TextTransformation"
		if s.Preprocessing {
			base = baseName(s.TypeName)
		}
		body = append(body, codedom.Invoke(&codedom.Selector{X: g.recv, Name: base}, "Initialize"))
	}

	if s.Culture != "" {
		body = append(body, &codedom.SnippetStmt{Code: fmt.Sprintf(
			"if err := %[1]s.ToStringHelper().SetCulture(%[2]q); err != nil {\n\t%[1]s.Error(err.Error())\n}",
			s.Receiver, s.Culture)})
	}

	body = append(body, s.Contribution.PostInit...)

	if s.Preprocessing && s.HostSpecific && (s.Extension != "" || s.Encoding != "") {
		var b strings.Builder
		fmt.Fprintf(&b, "if h := %s.Host(); h != nil {\n", s.Receiver)
		if s.Extension != "" {
			fmt.Fprintf(&b, "\th.SetFileExtension(%q)\n", s.Extension)
		}
		if s.Encoding != "" {
			fmt.Fprintf(&b, "\th.SetOutputEncoding(%q)\n", s.Encoding)
		}
		b.WriteString("}")
		body = append(body, &codedom.SnippetStmt{Code: b.String()})
	}

	return &codedom.Func{
		Doc:      []string{"Initialize prepares the transformation before TransformText runs."},
		Recv:     s.Receiver,
		RecvType: "*" + s.TypeName,
		Name:     "Initialize",
		Body:     body,
	}
}

func (g *generator) hostAccessors(typeRef string) []codedom.Decl {
	r := g.s.Receiver
	return []codedom.Decl{
		&codedom.Func{
			Doc:      []string{"Host returns the templating host."},
			Recv:     r,
			RecvType: typeRef,
			Name:     "Host",
			Results:  "tt.Host",
			Body:     []codedom.Statement{&codedom.Return{Value: &codedom.Selector{X: g.recv, Name: "host"}}},
		},
		&codedom.Func{
			Doc:      []string{"SetHost sets the templating host."},
			Recv:     r,
			RecvType: typeRef,
			Name:     "SetHost",
			Params:   "h tt.Host",
			Body: []codedom.Statement{
				&codedom.Assign{Left: &codedom.Selector{X: g.recv, Name: "host"}, Right: &codedom.Ident{Name: "h"}},
			},
		},
	}
}

func (g *generator) entryPoint() *codedom.Func {
	return &codedom.Func{
		Name: "main",
		Body: []codedom.Statement{
			&codedom.SnippetStmt{Code: fmt.Sprintf(
				"tt.Serve(map[string]tt.Factory{\n\t%q: func() interface{} { return &%s{} },\n})",
				g.s.FullTypeName(), g.s.TypeName)},
		},
	}
}

// pragma returns the location a line pragma should map to, or nil when
// pragmas are off or the segment has no file.
func (g *generator) pragma(loc source.Location) *source.Location {
	if !g.s.LinePragmas || loc.File == "" {
		return nil
	}

	file := loc.File
	if abs, err := filepath.Abs(file); err == nil {
		file = abs
	}
	if g.s.RelativePragmas {
		dir := "."
		if g.opts.OutputFile != "" {
			dir = filepath.Dir(g.opts.OutputFile)
		}
		if absDir, err := filepath.Abs(dir); err == nil {
			if rel, err := filepath.Rel(absDir, file); err == nil {
				file = rel
			}
		}
	}

	mapped := source.NewLocation(filepath.ToSlash(file), loc.Line, loc.Column)
	return &mapped
}
