package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCanonicalLine(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		origin    string
		line1     int
		col       int
		endLine   int
		endCol    int
		severity  Severity
		code      string
		message   string
		subcatego string
	}{
		{
			name:     "line and column",
			line:     "class1.cs(16,4): error CS0152: message",
			origin:   "class1.cs",
			line1:    16,
			col:      4,
			severity: SeverityError,
			code:     "CS0152",
			message:  "message",
		},
		{
			name:     "line only",
			line:     "a.tt(7): warning W100: unused",
			origin:   "a.tt",
			line1:    7,
			severity: SeverityWarning,
			code:     "W100",
			message:  "unused",
		},
		{
			name:     "line range",
			line:     "a.tt(7-9): warning W100: unused",
			origin:   "a.tt",
			line1:    7,
			endLine:  9,
			severity: SeverityWarning,
			code:     "W100",
			message:  "unused",
		},
		{
			name:     "column range",
			line:     "a.tt(3,2-8): error E1: bad",
			origin:   "a.tt",
			line1:    3,
			col:      2,
			endCol:   8,
			severity: SeverityError,
			code:     "E1",
			message:  "bad",
		},
		{
			name:     "full range",
			line:     "a.tt(3,2,4,1): error E1: bad",
			origin:   "a.tt",
			line1:    3,
			col:      2,
			endLine:  4,
			endCol:   1,
			severity: SeverityError,
			code:     "E1",
			message:  "bad",
		},
		{
			name:     "unparseable range keeps the rest",
			line:     "a.tt(x,y): error E2: still captured",
			origin:   "a.tt",
			severity: SeverityError,
			code:     "E2",
			message:  "still captured",
		},
		{
			name:      "subcategory",
			line:      "main.go: Compiler error CS1: broken",
			origin:    "main.go",
			severity:  SeverityError,
			code:      "CS1",
			message:   "broken",
			subcatego: "Compiler",
		},
		{
			name:     "no origin",
			line:     "error T4G4001: no runtime",
			severity: SeverityError,
			code:     "T4G4001",
			message:  "no runtime",
		},
		{
			name:     "windows drive letter",
			line:     `C:\src\a.tt(1,2): Warning X9: upper case severity`,
			origin:   `C:\src\a.tt`,
			line1:    1,
			col:      2,
			severity: SeverityWarning,
			code:     "X9",
			message:  "upper case severity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := ParseCanonicalLine(tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.origin, d.Origin)
			assert.Equal(t, tt.line1, d.Location.Line)
			assert.Equal(t, tt.col, d.Location.Column)
			assert.Equal(t, tt.endLine, d.EndLine)
			assert.Equal(t, tt.endCol, d.EndColumn)
			assert.Equal(t, tt.severity, d.Severity)
			assert.Equal(t, tt.code, d.Code)
			assert.Equal(t, tt.message, d.Message)
			assert.Equal(t, tt.subcatego, d.Subcategory)
		})
	}
}

func TestParseCanonicalLineIsError(t *testing.T) {
	d, ok := ParseCanonicalLine("class1.cs(16,4): error CS0152: message")
	require.True(t, ok)
	assert.True(t, d.IsError())
}

func TestParseCanonicalLineNotDiagnostic(t *testing.T) {
	lines := []string{
		"",
		"Build succeeded.",
		"class1.cs(16,4): message without triple",
		"error: missing code",
		"main.go:12:3: undefined: x",
	}
	for _, line := range lines {
		assert.NotPanics(t, func() {
			_, ok := ParseCanonicalLine(line)
			assert.False(t, ok, line)
		})
	}
}

func TestOutputParserGoOutput(t *testing.T) {
	output := "# example.com/gen\n" +
		"/tmp/a.tt:4:7: undefined: foo\n" +
		"./main.go:12: syntax error\n" +
		"/tmp/a.tt:9:2: cannot use x (variable of type int) as string value\n" +
		"\thave int\n" +
		"\twant string\n" +
		"go: downloading example.com/x v1.0.0\n" +
		"too many errors\n"

	diags := NewOutputParser().Parse(output)
	require.Len(t, diags, 3)

	assert.Equal(t, "/tmp/a.tt", diags[0].Location.File)
	assert.Equal(t, 4, diags[0].Location.Line)
	assert.Equal(t, 7, diags[0].Location.Column)
	assert.Equal(t, "undefined: foo", diags[0].Message)

	assert.Equal(t, "./main.go", diags[1].Location.File)
	assert.Equal(t, 12, diags[1].Location.Line)
	assert.Equal(t, 0, diags[1].Location.Column)

	assert.Equal(t, "cannot use x (variable of type int) as string value\nhave int\nwant string", diags[2].Message)
	for _, d := range diags {
		assert.True(t, d.IsError())
	}
}

func TestOutputParserMixed(t *testing.T) {
	output := "a.tt(1,1): warning T4G2004: unknown attribute\r\n" +
		"go: example.com/missing@v1.0.0: invalid version\r\n"

	diags := NewOutputParser().Parse(output)
	require.Len(t, diags, 2)
	assert.Equal(t, SeverityWarning, diags[0].Severity)
	assert.Equal(t, "T4G2004", diags[0].Code)
	assert.Equal(t, "example.com/missing@v1.0.0: invalid version", diags[1].Message)
	assert.Empty(t, diags[1].Location.File)
}
