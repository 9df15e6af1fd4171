package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/conneroisu/t4go/internal/errors"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
)

// printDiagnostics writes one line per diagnostic, colored by severity,
// followed by suggestions for well-known failures.
func printDiagnostics(w io.Writer, diags []*errors.Diagnostic) {
	for _, d := range diags {
		c := infoColor
		switch d.Severity {
		case errors.SeverityError:
			c = errorColor
		case errors.SeverityWarning:
			c = warningColor
		}
		c.Fprintln(w, d.String())
	}

	if s := errors.SuggestionsFor(diags); len(s) > 0 {
		fmt.Fprintln(w)
		fmt.Fprint(w, errors.FormatSuggestions("", s))
	}
}

func countErrors(diags []*errors.Diagnostic) int {
	n := 0
	for _, d := range diags {
		if d.IsError() {
			n++
		}
	}
	return n
}
