// Package codedom is a small syntax tree for generated compilation units
// and the per-language providers that render it to source text.
//
// The code generator decides what to emit by building a CompilationUnit;
// a Provider decides how that unit looks in a target language.
package codedom

import "github.com/conneroisu/t4go/internal/source"

// CompilationUnit is one generated source file.
type CompilationUnit struct {
	// FileName is the name the rendered file will be compiled under. Line
	// pragmas restore positions relative to it.
	FileName string
	// Header holds comment lines written before the package clause.
	Header  []string
	Package string
	Imports []Import
	Decls   []Decl
}

// AddImport adds path unless it is already imported under the same alias.
func (u *CompilationUnit) AddImport(path, alias string) {
	for _, imp := range u.Imports {
		if imp.Path == path && imp.Alias == alias {
			return
		}
	}
	u.Imports = append(u.Imports, Import{Path: path, Alias: alias})
}

// Type returns the type declaration named name, or nil.
func (u *CompilationUnit) Type(name string) *TypeDecl {
	for _, d := range u.Decls {
		if td, ok := d.(*TypeDecl); ok && td.Name == name {
			return td
		}
	}
	return nil
}

// Import is a package import.
type Import struct {
	Path  string
	Alias string
}

// Decl is a top-level declaration: *TypeDecl, *Func or *Snippet.
type Decl interface {
	decl()
}

// TypeDecl declares a struct type.
type TypeDecl struct {
	Doc  []string
	Name string
	// Directives are comment directives written on the lines directly above
	// the declaration.
	Directives []string
	Embeds     []string
	Fields     []Field
}

// Field is a struct field.
type Field struct {
	Name string
	Type string
	Doc  string
}

// Func declares a function, or a method when Recv is set.
type Func struct {
	Doc      []string
	Recv     string
	RecvType string
	Name     string
	Params   string
	Results  string
	Body     []Statement
}

// Snippet is verbatim top-level code, optionally mapped back to the
// template location it came from.
type Snippet struct {
	Code   string
	Pragma *source.Location
}

func (*TypeDecl) decl() {}
func (*Func) decl()     {}
func (*Snippet) decl()  {}

// Statement is a statement inside a function body.
type Statement interface {
	stmt()
}

// ExprStmt evaluates an expression for its side effects.
type ExprStmt struct {
	X Expression
}

// SnippetStmt is verbatim statement code.
type SnippetStmt struct {
	Code   string
	Pragma *source.Location
}

// VarDecl declares a local. An empty Type uses short variable declaration.
type VarDecl struct {
	Name  string
	Type  string
	Value Expression
}

// Assign stores Right into Left.
type Assign struct {
	Left  Expression
	Right Expression
}

// If is a conditional with an optional else branch.
type If struct {
	Cond Expression
	Then []Statement
	Else []Statement
}

// Return returns an optional value.
type Return struct {
	Value Expression
}

// Comment is a line comment.
type Comment struct {
	Text string
}

func (*ExprStmt) stmt()    {}
func (*SnippetStmt) stmt() {}
func (*VarDecl) stmt()     {}
func (*Assign) stmt()      {}
func (*If) stmt()          {}
func (*Return) stmt()      {}
func (*Comment) stmt()     {}

// Expression is a value-producing node.
type Expression interface {
	expr()
}

// Literal is a string constant.
type Literal struct {
	Value string
}

// Ident names a variable, constant or type.
type Ident struct {
	Name string
}

// Selector is X.Name.
type Selector struct {
	X    Expression
	Name string
}

// Call invokes Fun with Args.
type Call struct {
	Fun  Expression
	Args []Expression
}

// Raw is verbatim expression code, optionally mapped back to the template.
type Raw struct {
	Code   string
	Pragma *source.Location
}

func (*Literal) expr()  {}
func (*Ident) expr()    {}
func (*Selector) expr() {}
func (*Call) expr()     {}
func (*Raw) expr()      {}

// MethodCall builds recv.name(args...).
func MethodCall(recv Expression, name string, args ...Expression) *Call {
	return &Call{Fun: &Selector{X: recv, Name: name}, Args: args}
}

// Invoke builds recv.name(args...) as a statement.
func Invoke(recv Expression, name string, args ...Expression) *ExprStmt {
	return &ExprStmt{X: MethodCall(recv, name, args...)}
}
