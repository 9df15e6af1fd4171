package errors

import (
	"fmt"
	"strings"
)

// ErrorSuggestion represents a suggestion for fixing an error
type ErrorSuggestion struct {
	Title       string
	Description string
	Command     string
}

// SuggestionsFor returns hints for the well-known failure codes found in diags.
func SuggestionsFor(diags []*Diagnostic) []ErrorSuggestion {
	seen := make(map[string]bool)
	var out []ErrorSuggestion
	for _, d := range diags {
		if seen[d.Code] {
			continue
		}
		seen[d.Code] = true
		out = append(out, suggestionsForCode(d.Code)...)
	}
	return out
}

func suggestionsForCode(code string) []ErrorSuggestion {
	switch code {
	case CodeRuntimeNotFound:
		return []ErrorSuggestion{
			{
				Title:       "Install a Go toolchain",
				Description: "No directory containing bin/go was found on PATH, GOROOT or the SDK search paths",
				Command:     "t4go sdk",
			},
			{
				Title:       "Point at an SDK explicitly",
				Description: "Set sdk.dir in .t4go.yml or export T4GO_SDK_DIR",
			},
		}
	case CodeIncludeNotFound:
		return []ErrorSuggestion{{
			Title:       "Add an include search path",
			Description: "Includes are resolved relative to the including file, then against paths.include",
			Command:     "t4go transform -I <dir> <template>",
		}}
	case CodeUnknownProcessor:
		return []ErrorSuggestion{{
			Title:       "Register the directive processor",
			Description: "Custom directives need a processor registered with the engine's registry",
		}}
	case CodeLanguageVersionTooNew:
		return []ErrorSuggestion{{
			Title:   "Lower langversion or install a newer SDK",
			Command: "t4go sdk",
		}}
	}
	return nil
}

// FormatSuggestions formats suggestions into a user-friendly string
func FormatSuggestions(title string, suggestions []ErrorSuggestion) string {
	if len(suggestions) == 0 {
		return title
	}

	var output strings.Builder
	if title != "" {
		output.WriteString(title + "\n\n")
	}
	output.WriteString("Suggestions:\n")

	for i, suggestion := range suggestions {
		output.WriteString(fmt.Sprintf("  %d. %s\n", i+1, suggestion.Title))
		if suggestion.Description != "" {
			output.WriteString(fmt.Sprintf("     %s\n", suggestion.Description))
		}
		if suggestion.Command != "" {
			output.WriteString(fmt.Sprintf("     Run: %s\n", suggestion.Command))
		}
	}

	return output.String()
}
