package codedom

import (
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"strconv"
	"strings"

	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/source"
)

// DefaultFileName names units that do not set FileName.
const DefaultFileName = "template.go"

// GoProvider renders units as Go source.
//
// Line pragmas become //line directives in front of verbatim snippets and
// /*line*/ comments in front of verbatim expressions. After each mapped
// snippet the real position in the generated file is restored, so compiler
// errors in generated scaffolding point at the generated file.
type GoProvider struct{}

// NewGoProvider returns the Go provider.
func NewGoProvider() *GoProvider {
	return &GoProvider{}
}

// Language implements Provider.
func (p *GoProvider) Language() string { return "Go" }

// FileExtension implements Provider.
func (p *GoProvider) FileExtension() string { return ".go" }

// Quote implements Provider.
func (p *GoProvider) Quote(s string) string { return strconv.Quote(s) }

// IsValidIdentifier implements Provider.
func (p *GoProvider) IsValidIdentifier(name string) bool { return token.IsIdentifier(name) }

// Render implements Provider. Imports that nothing in the rendered file
// refers to are kept as blank imports so the unit still compiles.
func (p *GoProvider) Render(unit *CompilationUnit, opts Options) (string, error) {
	if unit == nil {
		return "", errors.ArgumentError("unit", "must not be nil")
	}
	if unit.Package == "" {
		return "", errors.ArgumentError("unit.Package", "must not be empty")
	}

	src := p.render(unit, opts, nil)
	if unused := unusedImports(src, unit.Imports); len(unused) > 0 {
		src = p.render(unit, opts, unused)
	}

	if !opts.LinePragmas {
		if formatted, err := format.Source([]byte(src)); err == nil {
			src = string(formatted)
		}
	}
	return src, nil
}

// RenderStatement implements Provider.
func (p *GoProvider) RenderStatement(st Statement) string {
	w := &goWriter{line: 1}
	w.stmt(st)
	return strings.TrimRight(w.b.String(), "\n")
}

func (p *GoProvider) render(unit *CompilationUnit, opts Options, blank map[Import]bool) string {
	file := unit.FileName
	if file == "" {
		file = DefaultFileName
	}
	w := &goWriter{line: 1, file: file, pragmas: opts.LinePragmas}

	for _, h := range unit.Header {
		w.printf("// %s", h)
	}
	if len(unit.Header) > 0 {
		w.raw("\n")
	}
	w.printf("package %s", unit.Package)

	if len(unit.Imports) > 0 {
		w.raw("\n")
		w.printf("import (")
		w.depth++
		for _, imp := range unit.Imports {
			switch {
			case blank[imp]:
				w.printf("_ %s", strconv.Quote(imp.Path))
			case imp.Alias != "":
				w.printf("%s %s", imp.Alias, strconv.Quote(imp.Path))
			default:
				w.printf("%s", strconv.Quote(imp.Path))
			}
		}
		w.depth--
		w.printf(")")
	}

	for _, d := range unit.Decls {
		w.raw("\n")
		w.decl(d)
	}
	return w.b.String()
}

type goWriter struct {
	b       strings.Builder
	line    int
	depth   int
	file    string
	pragmas bool
	// mapped is set when an inline /*line*/ comment has moved the position
	// into the template on the current line.
	mapped bool
}

func (w *goWriter) raw(s string) {
	w.b.WriteString(s)
	w.line += strings.Count(s, "\n")
}

func (w *goWriter) printf(format string, args ...interface{}) {
	w.raw(strings.Repeat("\t", w.depth))
	w.raw(fmt.Sprintf(format, args...))
	w.raw("\n")
	if w.mapped {
		w.mapped = false
		w.restore()
	}
}

func (w *goWriter) comment(lines []string) {
	for _, l := range lines {
		w.printf("// %s", l)
	}
}

func (w *goWriter) restore() {
	w.raw(fmt.Sprintf("//line %s:%d\n", w.file, w.line+1))
}

func canMap(loc *source.Location) bool {
	return loc != nil && loc.File != "" && loc.Line > 0
}

func linePos(loc *source.Location) string {
	if loc.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", loc.File, loc.Line, loc.Column)
	}
	return fmt.Sprintf("%s:%d", loc.File, loc.Line)
}

func (w *goWriter) snippet(code string, pragma *source.Location) {
	if w.pragmas && canMap(pragma) {
		// //line must start at column 1 and applies to the next line, so the
		// snippet is written unindented.
		w.raw("//line " + linePos(pragma) + "\n")
		w.raw(code)
		if !strings.HasSuffix(code, "\n") {
			w.raw("\n")
		}
		w.restore()
		return
	}
	w.raw(strings.Repeat("\t", w.depth))
	w.raw(code)
	if !strings.HasSuffix(code, "\n") {
		w.raw("\n")
	}
}

func (w *goWriter) decl(d Decl) {
	switch d := d.(type) {
	case *TypeDecl:
		w.comment(d.Doc)
		for _, dir := range d.Directives {
			w.printf("%s", dir)
		}
		w.printf("type %s struct {", d.Name)
		w.depth++
		for _, e := range d.Embeds {
			w.printf("%s", e)
		}
		for _, f := range d.Fields {
			if f.Doc != "" {
				w.printf("// %s", f.Doc)
			}
			w.printf("%s %s", f.Name, f.Type)
		}
		w.depth--
		w.printf("}")

	case *Func:
		w.comment(d.Doc)
		sig := d.Name + "(" + d.Params + ")"
		if d.Recv != "" {
			sig = "(" + d.Recv + " " + d.RecvType + ") " + sig
		}
		if d.Results != "" {
			sig += " " + d.Results
		}
		w.printf("func %s {", sig)
		w.depth++
		for _, st := range d.Body {
			w.stmt(st)
		}
		w.depth--
		w.printf("}")

	case *Snippet:
		w.snippet(d.Code, d.Pragma)
	}
}

func (w *goWriter) stmt(st Statement) {
	switch s := st.(type) {
	case *SnippetStmt:
		w.snippet(s.Code, s.Pragma)

	case *ExprStmt:
		w.printf("%s", w.expr(s.X))

	case *VarDecl:
		switch {
		case s.Type == "":
			w.printf("%s := %s", s.Name, w.expr(s.Value))
		case s.Value == nil:
			w.printf("var %s %s", s.Name, s.Type)
		default:
			w.printf("var %s %s = %s", s.Name, s.Type, w.expr(s.Value))
		}

	case *Assign:
		w.printf("%s = %s", w.expr(s.Left), w.expr(s.Right))

	case *If:
		w.printf("if %s {", w.expr(s.Cond))
		w.block(s.Then)
		if len(s.Else) > 0 {
			w.printf("} else {")
			w.block(s.Else)
		}
		w.printf("}")

	case *Return:
		if s.Value == nil {
			w.printf("return")
			return
		}
		w.printf("return %s", w.expr(s.Value))

	case *Comment:
		w.printf("// %s", s.Text)
	}
}

func (w *goWriter) block(body []Statement) {
	w.depth++
	for _, st := range body {
		w.stmt(st)
	}
	w.depth--
}

func (w *goWriter) expr(e Expression) string {
	switch x := e.(type) {
	case nil:
		return "nil"
	case *Literal:
		return strconv.Quote(x.Value)
	case *Ident:
		return x.Name
	case *Selector:
		return w.expr(x.X) + "." + x.Name
	case *Call:
		args := make([]string, len(x.Args))
		for i, a := range x.Args {
			args[i] = w.expr(a)
		}
		return w.expr(x.Fun) + "(" + strings.Join(args, ", ") + ")"
	case *Raw:
		if w.pragmas && canMap(x.Pragma) {
			w.mapped = true
			return "/*line " + linePos(x.Pragma) + "*/" + x.Code
		}
		return x.Code
	default:
		return fmt.Sprintf("/* unsupported expression %T */", e)
	}
}

// unusedImports parses src and reports the imports whose package name is
// never used as a selector. Imports whose name cannot be derived from the
// path are assumed used. Unparseable source reports nothing.
func unusedImports(src string, imports []Import) map[Import]bool {
	if len(imports) == 0 {
		return nil
	}
	f, err := parser.ParseFile(token.NewFileSet(), "", src, parser.SkipObjectResolution)
	if err != nil {
		return nil
	}

	used := make(map[string]bool)
	ast.Inspect(f, func(n ast.Node) bool {
		if sel, ok := n.(*ast.SelectorExpr); ok {
			if id, ok := sel.X.(*ast.Ident); ok {
				used[id.Name] = true
			}
		}
		return true
	})

	var unused map[Import]bool
	for _, imp := range imports {
		name := importName(imp)
		if name == "" || used[name] {
			continue
		}
		if unused == nil {
			unused = make(map[Import]bool)
		}
		unused[imp] = true
	}
	return unused
}

func importName(imp Import) string {
	switch imp.Alias {
	case "_", ".":
		return ""
	case "":
	default:
		return imp.Alias
	}

	elems := strings.Split(imp.Path, "/")
	name := elems[len(elems)-1]
	if len(elems) > 1 && isMajorVersion(name) {
		name = elems[len(elems)-2]
	}
	if !token.IsIdentifier(name) {
		return ""
	}
	return name
}

func isMajorVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	n, err := strconv.Atoi(s[1:])
	return err == nil && n >= 2
}
