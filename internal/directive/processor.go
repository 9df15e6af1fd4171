// Package directive implements the directive processor protocol: custom
// directives are routed to processors that contribute code, imports and
// references to the generated unit.
package directive

import (
	"github.com/conneroisu/t4go/internal/codedom"
	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/logging"
	"github.com/conneroisu/t4go/internal/parser"
)

// Processor handles one or more custom directives for a single run.
//
// The lifecycle is Start, then Process once per directive routed to the
// processor, then Finish. Contribution is read after Finish.
type Processor interface {
	// Name is the processor name directives refer to.
	Name() string
	IsDirectiveSupported(name string) bool
	Start(ctx *RunContext)
	Process(name string, attrs *parser.Attributes) error
	Finish()
	// RequiresHostSpecific forces every processor of the run into
	// host-specific mode.
	RequiresHostSpecific() bool
	SetHostSpecific(hostSpecific bool)
	Contribution() Contribution
}

// Factory creates a fresh processor for a run.
type Factory func() Processor

// RunContext is what a processor can see of the run.
type RunContext struct {
	Provider        codedom.Provider
	TemplateContent string
	Diagnostics     *errors.Diagnostics
	Preprocessing   bool
	// Receiver is the receiver name of the generated methods.
	Receiver string
	Logger   logging.Logger
}

// Contribution is the code a processor adds to the generated unit.
type Contribution struct {
	// ClassCode is verbatim top-level code.
	ClassCode string
	// Methods without a receiver are bound to the generated type.
	Methods []*codedom.Func
	// PreInit runs at the start of Initialize, PostInit after the base
	// class call.
	PreInit  []codedom.Statement
	PostInit []codedom.Statement
	// TransformPrologue runs at the start of TransformText.
	TransformPrologue []codedom.Statement
	Fields            []codedom.Field
	Imports           []string
	References        []string
	// TypeDirectives are comment directives placed on the type declaration.
	TypeDirectives []string
	Parameters     []Parameter
}

// Parameter is a template parameter declared by a processor.
type Parameter struct {
	Processor string
	Name      string
	Type      string
}

// Merge appends other to c.
func (c *Contribution) Merge(other Contribution) {
	if other.ClassCode != "" {
		if c.ClassCode != "" {
			c.ClassCode += "\n"
		}
		c.ClassCode += other.ClassCode
	}
	c.Methods = append(c.Methods, other.Methods...)
	c.PreInit = append(c.PreInit, other.PreInit...)
	c.PostInit = append(c.PostInit, other.PostInit...)
	c.TransformPrologue = append(c.TransformPrologue, other.TransformPrologue...)
	c.Fields = append(c.Fields, other.Fields...)
	c.Imports = append(c.Imports, other.Imports...)
	c.References = append(c.References, other.References...)
	c.TypeDirectives = append(c.TypeDirectives, other.TypeDirectives...)
	c.Parameters = append(c.Parameters, other.Parameters...)
}

// IsEmpty reports whether the contribution adds nothing.
func (c *Contribution) IsEmpty() bool {
	return c.ClassCode == "" && len(c.Methods) == 0 && len(c.PreInit) == 0 &&
		len(c.PostInit) == 0 && len(c.TransformPrologue) == 0 && len(c.Fields) == 0 &&
		len(c.Imports) == 0 && len(c.References) == 0 && len(c.TypeDirectives) == 0 &&
		len(c.Parameters) == 0
}
