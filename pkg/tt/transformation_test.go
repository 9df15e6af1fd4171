package tt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteWithoutIndent(t *testing.T) {
	var tr TextTransformation
	tr.Write("a\r\nb")
	tr.Write("")
	tr.WriteLine("c")
	tr.Writef("%d-%s", 1, "x")
	assert.Equal(t, "a\r\nbc\n1-x", tr.GenerationEnvironment().String())
}

func TestWriteIndentsEveryLine(t *testing.T) {
	var tr TextTransformation
	tr.PushIndent("  ")
	tr.Write("a\nb\n")
	tr.Write("c\r\nd")
	tr.PushIndent("\t")
	tr.WriteLine("")
	tr.Write("e")

	assert.Equal(t, "  a\n  b\n  c\r\n  d\n  \te", tr.GenerationEnvironment().String())
	assert.Equal(t, "  \t", tr.CurrentIndent())
}

func TestPopAndClearIndent(t *testing.T) {
	var tr TextTransformation
	assert.Equal(t, "", tr.PopIndent())

	tr.PushIndent("ab")
	tr.PushIndent("c")
	assert.Equal(t, "c", tr.PopIndent())
	assert.Equal(t, "ab", tr.CurrentIndent())

	tr.PushIndent("x")
	tr.ClearIndent()
	assert.Equal(t, "", tr.CurrentIndent())
	assert.Equal(t, "", tr.PopIndent())
}

func TestErrorsAndWarnings(t *testing.T) {
	var tr TextTransformation
	tr.Warning("careful")
	assert.False(t, tr.HasErrors())

	tr.Error("broken")
	assert.True(t, tr.HasErrors())

	errs := tr.Errors()
	require.Len(t, errs, 2)
	assert.True(t, errs[0].(*TransformError).IsWarning())
	assert.Equal(t, "broken", errs[1].Error())
}

func TestSessionNeverNil(t *testing.T) {
	var tr TextTransformation
	assert.NotNil(t, tr.Session())

	tr.SetSession(map[string]interface{}{"k": 1})
	assert.Equal(t, 1, tr.Session()["k"])
}

func TestToStringWithCulture(t *testing.T) {
	var h ToStringHelper
	assert.Equal(t, "", h.ToStringWithCulture(nil))
	assert.Equal(t, "1234.5", h.ToStringWithCulture(1234.5))
	assert.Equal(t, "x", h.ToStringWithCulture("x"))

	require.NoError(t, h.SetCulture("de-DE"))
	assert.Equal(t, "de-DE", h.Culture())
	assert.Contains(t, h.ToStringWithCulture(1234.5), ",5")
	assert.Equal(t, "true", h.ToStringWithCulture(true))

	assert.Error(t, h.SetCulture("not a culture!"))
	require.NoError(t, h.SetCulture(""))
	assert.Equal(t, "7", h.ToStringWithCulture(7))
}
