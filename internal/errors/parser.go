package errors

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/conneroisu/t4go/internal/source"
)

// Canonical compiler message grammar:
//
//	[origin[(line[,col[-endcol|,endline,endcol|,endline]])] :][subcategory ]severity code: message
var (
	canonicalLine = regexp.MustCompile(
		`^\s*(?:(?P<origin>(?:\d+>)?(?:[a-zA-Z]:)?[^:]*?)\s*:\s*)?` +
			`(?P<sub>(?:[^:]*? )?)` +
			`(?i:(?P<sev>error|warning|info))\s+(?P<code>[^:\s]+)\s*:` +
			`(?P<text>.*)$`)
	originLocation = regexp.MustCompile(`^(.*?)\s*\(([^()]*)\)$`)
)

// outputPattern recognizes one shape of toolchain output that the canonical
// grammar does not cover.
type outputPattern struct {
	regex       *regexp.Regexp
	severity    Severity
	parseFields func(matches []string) (file string, line int, column int, message string)
}

// OutputParser turns compiler output into diagnostics.
type OutputParser struct {
	goPatterns []outputPattern
}

// NewOutputParser creates a new output parser.
func NewOutputParser() *OutputParser {
	return &OutputParser{goPatterns: buildGoPatterns()}
}

// Parse parses every line of output. Indented lines directly following a
// diagnostic continue its message, as the Go compiler prints them.
func (p *OutputParser) Parse(output string) []*Diagnostic {
	var diags []*Diagnostic
	var last *Diagnostic

	for _, raw := range splitLines(output) {
		if strings.TrimSpace(raw) == "" {
			last = nil
			continue
		}
		if last != nil && (strings.HasPrefix(raw, "\t") || strings.HasPrefix(raw, "    ")) {
			last.Message += "\n" + strings.TrimSpace(raw)
			continue
		}
		d, ok := p.ParseLine(raw)
		if !ok {
			last = nil
			continue
		}
		diags = append(diags, d)
		last = d
	}

	return diags
}

// ParseLine parses a single line. The second result is false when the line
// is not a diagnostic.
func (p *OutputParser) ParseLine(line string) (*Diagnostic, bool) {
	line = strings.TrimRight(line, "\r\n")
	if d, ok := ParseCanonicalLine(line); ok {
		return d, true
	}

	trimmed := strings.TrimSpace(line)
	if ignoredGoLine(trimmed) {
		return nil, false
	}
	for _, pattern := range p.goPatterns {
		matches := pattern.regex.FindStringSubmatch(trimmed)
		if matches == nil {
			continue
		}
		file, lineNum, column, message := pattern.parseFields(matches)
		return &Diagnostic{
			Severity: pattern.severity,
			Message:  message,
			Location: source.Location{File: file, Line: lineNum, Column: column},
			Origin:   file,
		}, true
	}

	return nil, false
}

// ParseCanonicalLine parses a line in the canonical compiler message format.
// Numeric ranges that cannot be parsed are dropped; origin, severity, code
// and message are still captured.
func ParseCanonicalLine(line string) (*Diagnostic, bool) {
	m := canonicalLine.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	get := func(name string) string {
		return m[canonicalLine.SubexpIndex(name)]
	}

	sev, ok := ParseSeverity(get("sev"))
	if !ok {
		return nil, false
	}

	d := &Diagnostic{
		Severity:    sev,
		Code:        get("code"),
		Message:     strings.TrimSpace(get("text")),
		Subcategory: strings.TrimSpace(get("sub")),
	}

	origin := strings.TrimSpace(get("origin"))
	// MSBuild-style node prefix "12>".
	if i := strings.Index(origin, ">"); i > 0 && isDigits(origin[:i]) {
		origin = origin[i+1:]
	}
	if origin == "" {
		return d, true
	}

	d.Origin = origin
	d.Location.File = origin
	if lm := originLocation.FindStringSubmatch(origin); lm != nil {
		d.Origin = lm[1]
		d.Location.File = lm[1]
		if r, ok := parseRange(lm[2]); ok {
			d.Location.Line = r[0]
			d.Location.Column = r[1]
			d.EndLine = r[2]
			d.EndColumn = r[3]
		}
	}

	return d, true
}

// parseRange parses the text inside the origin parentheses into
// line, column, end line and end column.
func parseRange(s string) ([4]int, bool) {
	var r [4]int
	parts := strings.Split(strings.ReplaceAll(s, " ", ""), ",")

	var err error
	switch len(parts) {
	case 1:
		r[0], r[2], err = splitRange(parts[0])
	case 2:
		if r[0], err = strconv.Atoi(parts[0]); err == nil {
			r[1], r[3], err = splitRange(parts[1])
		}
	case 3:
		if r[0], err = strconv.Atoi(parts[0]); err == nil {
			if r[1], err = strconv.Atoi(parts[1]); err == nil {
				r[2], err = strconv.Atoi(strings.TrimPrefix(parts[2], "-"))
			}
		}
	case 4:
		for i, part := range parts {
			if r[i], err = strconv.Atoi(part); err != nil {
				break
			}
		}
	default:
		return [4]int{}, false
	}
	if err != nil {
		return [4]int{}, false
	}
	for _, v := range r {
		if v < 0 {
			return [4]int{}, false
		}
	}

	return r, true
}

// splitRange parses "a" or "a-b".
func splitRange(s string) (int, int, error) {
	first, second, found := strings.Cut(s, "-")
	a, err := strconv.Atoi(first)
	if err != nil {
		return 0, 0, err
	}
	if !found {
		return a, 0, nil
	}
	b, err := strconv.Atoi(second)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func buildGoPatterns() []outputPattern {
	return []outputPattern{
		{
			regex:    regexp.MustCompile(`^(.+?):(\d+):(\d+): (.+)$`),
			severity: SeverityError,
			parseFields: func(matches []string) (string, int, int, string) {
				line, _ := strconv.Atoi(matches[2])
				column, _ := strconv.Atoi(matches[3])
				return matches[1], line, column, matches[4]
			},
		},
		{
			regex:    regexp.MustCompile(`^(.+?):(\d+): (.+)$`),
			severity: SeverityError,
			parseFields: func(matches []string) (string, int, int, string) {
				line, _ := strconv.Atoi(matches[2])
				return matches[1], line, 0, matches[3]
			},
		},
		{
			regex:    regexp.MustCompile(`^package (.+) is not in (?:GOROOT|std)\b.*$`),
			severity: SeverityError,
			parseFields: func(matches []string) (string, int, int, string) {
				return "", 0, 0, "package " + matches[1] + " not found"
			},
		},
		{
			regex:    regexp.MustCompile(`^go: (.+)$`),
			severity: SeverityError,
			parseFields: func(matches []string) (string, int, int, string) {
				return "", 0, 0, matches[1]
			},
		},
	}
}

// ignoredGoLine reports progress and header lines printed by the go command.
func ignoredGoLine(line string) bool {
	switch {
	case strings.HasPrefix(line, "#"):
		return true
	case strings.HasPrefix(line, "go: downloading "),
		strings.HasPrefix(line, "go: finding "),
		strings.HasPrefix(line, "go: extracting "),
		strings.HasPrefix(line, "go: found "),
		strings.HasPrefix(line, "go: added "),
		strings.HasPrefix(line, "go: upgraded "):
		return true
	case line == "too many errors":
		return true
	}
	return false
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Split(s, "\n")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
