package directive

import (
	"fmt"
	"strings"

	"github.com/conneroisu/t4go/internal/codedom"
	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/parser"
	"github.com/conneroisu/t4go/pkg/tt"
)

const (
	// ParameterProcessorName is the name of the built-in parameter processor.
	ParameterProcessorName = "ParameterDirectiveProcessor"
	// ParameterDirectiveName is the directive it handles.
	ParameterDirectiveName = "parameter"
)

// typeAliases maps the framework type names used by existing templates to
// their Go equivalents.
var typeAliases = map[string]string{
	"System.String":   "string",
	"System.Boolean":  "bool",
	"System.Byte":     "byte",
	"System.SByte":    "int8",
	"System.Int16":    "int16",
	"System.UInt16":   "uint16",
	"System.Int32":    "int32",
	"System.UInt32":   "uint32",
	"System.Int64":    "int64",
	"System.UInt64":   "uint64",
	"System.Single":   "float32",
	"System.Double":   "float64",
	"System.Decimal":  "float64",
	"System.Char":     "rune",
	"System.Object":   "interface{}",
	"System.DateTime": "time.Time",
	"System.TimeSpan": "time.Duration",
}

// GoType returns the Go spelling of a parameter type.
func GoType(name string) string {
	name = strings.TrimSpace(name)
	if alias, ok := typeAliases[name]; ok {
		return alias
	}
	return name
}

// ParameterProcessor turns parameter directives into typed accessors.
//
// A parameter's value is looked up during Initialize: first in the session,
// then (host-specific runs only) through the host, then in the ambient
// values the caller passed across the isolation boundary.
type ParameterProcessor struct {
	ctx          *RunContext
	hostSpecific bool
	params       []Parameter
	contribution Contribution
}

// NewParameterProcessor creates a parameter processor.
func NewParameterProcessor() Processor {
	return &ParameterProcessor{}
}

// Name implements Processor.
func (p *ParameterProcessor) Name() string { return ParameterProcessorName }

// IsDirectiveSupported implements Processor.
func (p *ParameterProcessor) IsDirectiveSupported(name string) bool {
	return strings.EqualFold(name, ParameterDirectiveName)
}

// Start implements Processor.
func (p *ParameterProcessor) Start(ctx *RunContext) {
	p.ctx = ctx
	p.params = nil
	p.contribution = Contribution{}
}

// Process implements Processor.
func (p *ParameterProcessor) Process(name string, attrs *parser.Attributes) error {
	pname := strings.TrimSpace(attrs.Value("name"))
	ptype := strings.TrimSpace(attrs.Value("type"))

	if pname == "" {
		return errors.NewSemanticError(errors.CodeMissingAttribute,
			"parameter directive requires a name attribute")
	}
	if ptype == "" {
		return errors.NewSemanticError(errors.CodeMissingAttribute,
			fmt.Sprintf("parameter '%s' requires a type attribute", pname))
	}
	if p.ctx != nil && p.ctx.Provider != nil && !p.ctx.Provider.IsValidIdentifier(pname) {
		return errors.NewSemanticError(errors.CodeInvalidAttribute,
			fmt.Sprintf("parameter name '%s' is not a valid identifier", pname))
	}
	for _, existing := range p.params {
		if existing.Name == pname {
			return errors.NewSemanticError(errors.CodeDuplicateParameter,
				fmt.Sprintf("parameter '%s' is declared more than once", pname))
		}
	}

	p.params = append(p.params, Parameter{Processor: ParameterProcessorName, Name: pname, Type: GoType(ptype)})
	return nil
}

// Finish implements Processor.
func (p *ParameterProcessor) Finish() {
	recv := "t"
	preprocessing := false
	if p.ctx != nil {
		if p.ctx.Receiver != "" {
			recv = p.ctx.Receiver
		}
		preprocessing = p.ctx.Preprocessing
	}
	selfContained := preprocessing && !p.hostSpecific

	c := Contribution{Parameters: append([]Parameter(nil), p.params...)}
	if len(p.params) > 0 && !selfContained {
		c.Imports = append(c.Imports, tt.ImportPath)
	}

	for _, param := range p.params {
		field := "_" + param.Name + "Field"
		if strings.HasPrefix(param.Type, "time.") {
			c.Imports = append(c.Imports, "time")
		}

		c.Fields = append(c.Fields, codedom.Field{Name: field, Type: param.Type})
		c.Methods = append(c.Methods, &codedom.Func{
			Doc:     []string{fmt.Sprintf("%s returns the value of the %s template parameter.", param.Name, param.Name)},
			Name:    param.Name,
			Results: param.Type,
			Body: []codedom.Statement{
				&codedom.Return{Value: &codedom.Selector{X: &codedom.Ident{Name: recv}, Name: field}},
			},
		})
		c.TransformPrologue = append(c.TransformPrologue,
			&codedom.VarDecl{Name: param.Name, Value: codedom.MethodCall(&codedom.Ident{Name: recv}, param.Name)},
			&codedom.Assign{Left: &codedom.Ident{Name: "_"}, Right: &codedom.Ident{Name: param.Name}},
		)

		if selfContained {
			c.PostInit = append(c.PostInit, &codedom.SnippetStmt{Code: sessionLookup(recv, field, param)})
		} else {
			c.PostInit = append(c.PostInit, &codedom.SnippetStmt{Code: resolveLookup(recv, field, param, p.hostSpecific)})
		}
	}

	p.contribution = c
}

func resolveLookup(recv, field string, param Parameter, hostSpecific bool) string {
	host := "nil"
	if hostSpecific {
		host = recv + ".Host()"
	}
	return fmt.Sprintf(`if v, ok, err := tt.ResolveParameter[%s](%s.Session(), %s, %q, %q); err != nil {
	%s.Error(err.Error())
} else if ok {
	%s.%s = v
}`, param.Type, recv, host, param.Processor, param.Name, recv, recv, field)
}

func sessionLookup(recv, field string, param Parameter) string {
	mismatch := fmt.Sprintf("The type '%s' of the parameter '%s' did not match the type passed to the template", param.Type, param.Name)
	return fmt.Sprintf(`if v, ok := %s.Session()[%q]; ok {
	if tv, ok := v.(%s); ok {
		%s.%s = tv
	} else {
		%s.Error(%q)
	}
}`, recv, param.Name, param.Type, recv, field, recv, mismatch)
}

// RequiresHostSpecific implements Processor.
func (p *ParameterProcessor) RequiresHostSpecific() bool { return false }

// SetHostSpecific implements Processor.
func (p *ParameterProcessor) SetHostSpecific(hostSpecific bool) { p.hostSpecific = hostSpecific }

// Contribution implements Processor.
func (p *ParameterProcessor) Contribution() Contribution { return p.contribution }
