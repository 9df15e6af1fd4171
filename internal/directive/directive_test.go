package directive

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/t4go/internal/codedom"
	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/parser"
	"github.com/conneroisu/t4go/pkg/tt"
)

func attrs(kv ...string) *parser.Attributes {
	a := parser.NewAttributes()
	for i := 0; i+1 < len(kv); i += 2 {
		a.Set(kv[i], kv[i+1])
	}
	return a
}

func startParameters(preprocessing bool) Processor {
	p := NewParameterProcessor()
	p.Start(&RunContext{
		Provider:      codedom.NewGoProvider(),
		Diagnostics:   errors.NewDiagnostics(),
		Preprocessing: preprocessing,
		Receiver:      "t",
	})
	return p
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry()

	name, ok := r.ForDirective("PARAMETER")
	require.True(t, ok)
	assert.Equal(t, ParameterProcessorName, name)

	f, ok := r.Lookup(strings.ToLower(ParameterProcessorName))
	require.True(t, ok)
	assert.Equal(t, ParameterProcessorName, f().Name())

	_, ok = r.ForDirective("custom")
	assert.False(t, ok)
	assert.Equal(t, []string{strings.ToLower(ParameterProcessorName)}, r.Names())
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()

	_, err := r.Resolve("Missing", nil)
	require.Error(t, err)
	assert.True(t, errors.HasErrorCode(err, errors.CodeUnknownProcessor))

	r.SetResolver(func(name string) (Factory, error) {
		if name == "Dynamic" {
			return NewParameterProcessor, nil
		}
		return nil, nil
	})
	f, err := r.Resolve("Dynamic", nil)
	require.NoError(t, err)
	assert.NotNil(t, f)

	f, err = r.Resolve("Fallback", func(string) (Factory, error) { return NewParameterProcessor, nil })
	require.NoError(t, err)
	assert.NotNil(t, f)

	_, err = r.Resolve("Failing", func(string) (Factory, error) { return nil, fmt.Errorf("load failed") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load failed")
}

func TestParameterProcessErrors(t *testing.T) {
	tests := []struct {
		name  string
		attrs *parser.Attributes
		code  string
	}{
		{"missing name", attrs("type", "int"), errors.CodeMissingAttribute},
		{"missing type", attrs("name", "N"), errors.CodeMissingAttribute},
		{"invalid name", attrs("name", "not valid", "type", "int"), errors.CodeInvalidAttribute},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := startParameters(false)
			err := p.Process("parameter", tc.attrs)
			require.Error(t, err)
			assert.True(t, errors.HasErrorCode(err, tc.code))
		})
	}

	p := startParameters(false)
	require.NoError(t, p.Process("parameter", attrs("name", "N", "type", "int")))
	err := p.Process("parameter", attrs("name", "N", "type", "string"))
	assert.True(t, errors.HasErrorCode(err, errors.CodeDuplicateParameter))
}

func TestParameterContribution(t *testing.T) {
	p := startParameters(false)
	p.SetHostSpecific(true)
	require.NoError(t, p.Process("parameter", attrs("name", "TestParam", "type", "System.Int32")))
	p.Finish()

	c := p.Contribution()
	assert.Equal(t, []string{tt.ImportPath}, c.Imports)
	assert.Equal(t, []codedom.Field{{Name: "_TestParamField", Type: "int32"}}, c.Fields)
	assert.Equal(t, []Parameter{{Processor: ParameterProcessorName, Name: "TestParam", Type: "int32"}}, c.Parameters)

	require.Len(t, c.Methods, 1)
	assert.Equal(t, "TestParam", c.Methods[0].Name)
	assert.Equal(t, "int32", c.Methods[0].Results)

	provider := codedom.NewGoProvider()
	require.Len(t, c.TransformPrologue, 2)
	assert.Equal(t, "TestParam := t.TestParam()", provider.RenderStatement(c.TransformPrologue[0]))
	assert.Equal(t, "_ = TestParam", provider.RenderStatement(c.TransformPrologue[1]))

	require.Len(t, c.PostInit, 1)
	lookup := provider.RenderStatement(c.PostInit[0])
	assert.Contains(t, lookup, `tt.ResolveParameter[int32](t.Session(), t.Host(), "ParameterDirectiveProcessor", "TestParam")`)
	assert.Contains(t, lookup, "t._TestParamField = v")
}

func TestParameterContributionWithoutHost(t *testing.T) {
	p := startParameters(false)
	require.NoError(t, p.Process("parameter", attrs("name", "When", "type", "System.DateTime")))
	p.Finish()

	c := p.Contribution()
	assert.ElementsMatch(t, []string{tt.ImportPath, "time"}, c.Imports)
	lookup := codedom.NewGoProvider().RenderStatement(c.PostInit[0])
	assert.Contains(t, lookup, "tt.ResolveParameter[time.Time](t.Session(), nil,")
}

func TestParameterContributionSelfContained(t *testing.T) {
	p := startParameters(true)
	require.NoError(t, p.Process("parameter", attrs("name", "Name", "type", "string")))
	p.Finish()

	c := p.Contribution()
	assert.Empty(t, c.Imports)
	lookup := codedom.NewGoProvider().RenderStatement(c.PostInit[0])
	assert.Contains(t, lookup, `t.Session()["Name"]`)
	assert.Contains(t, lookup, "v.(string)")
	assert.NotContains(t, lookup, "tt.")
}

func TestContributionMerge(t *testing.T) {
	var c Contribution
	assert.True(t, c.IsEmpty())

	c.Merge(Contribution{ClassCode: "a", Imports: []string{"fmt"}})
	c.Merge(Contribution{ClassCode: "b", References: []string{"r"}})
	assert.Equal(t, "a\nb", c.ClassCode)
	assert.Equal(t, []string{"fmt"}, c.Imports)
	assert.Equal(t, []string{"r"}, c.References)
	assert.False(t, c.IsEmpty())
}

func TestGoType(t *testing.T) {
	assert.Equal(t, "int32", GoType("System.Int32"))
	assert.Equal(t, "string", GoType(" System.String "))
	assert.Equal(t, "map[string]int", GoType("map[string]int"))
}
