package errors

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/conneroisu/t4go/internal/source"
)

// Severity represents the severity of a diagnostic.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseSeverity maps a compiler category word onto a Severity.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(s) {
	case "error", "fatal":
		return SeverityError, true
	case "warning", "warn":
		return SeverityWarning, true
	case "info", "message", "note":
		return SeverityInfo, true
	}
	return SeverityInfo, false
}

// Diagnostic is a single error or warning produced by any phase.
type Diagnostic struct {
	Severity Severity
	Code     string
	Message  string
	Location source.Location

	// Range end, when the reporter knows it. Zero when absent.
	EndLine   int
	EndColumn int

	// Origin is the raw origin text of a parsed compiler line, which may not be a file.
	Origin      string
	Subcategory string
}

// IsError reports whether the diagnostic has error severity.
func (d *Diagnostic) IsError() bool {
	return d.Severity == SeverityError
}

// String formats the diagnostic as "path(line,col): severity code: message".
func (d *Diagnostic) String() string {
	var b strings.Builder

	file := d.Location.File
	if file == "" {
		file = d.Origin
	}
	switch {
	case file != "" && !d.Location.IsEmpty():
		fmt.Fprintf(&b, "%s(%d,%d): ", file, d.Location.Line, d.Location.Column)
	case file != "":
		b.WriteString(file)
		b.WriteString(": ")
	}

	b.WriteString(d.Severity.String())
	if d.Code != "" {
		b.WriteByte(' ')
		b.WriteString(d.Code)
	}
	b.WriteString(": ")
	b.WriteString(d.Message)

	return b.String()
}

// Diagnostics collects diagnostics across the phases of one run. The zero
// value is ready to use and safe for concurrent use.
type Diagnostics struct {
	items []*Diagnostic
	mutex sync.RWMutex
}

// NewDiagnostics creates an empty collection.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{}
}

// Add appends diagnostics to the collection. Nil entries are ignored.
func (ds *Diagnostics) Add(diags ...*Diagnostic) {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()
	for _, d := range diags {
		if d != nil {
			ds.items = append(ds.items, d)
		}
	}
}

// AddAll appends every diagnostic of another collection.
func (ds *Diagnostics) AddAll(other *Diagnostics) {
	if other == nil || other == ds {
		return
	}
	ds.Add(other.All()...)
}

// Errorf records an error at loc.
func (ds *Diagnostics) Errorf(loc source.Location, code, format string, args ...interface{}) *Diagnostic {
	d := &Diagnostic{
		Severity: SeverityError,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Location: loc,
	}
	ds.Add(d)
	return d
}

// Warnf records a warning at loc.
func (ds *Diagnostics) Warnf(loc source.Location, code, format string, args ...interface{}) *Diagnostic {
	d := &Diagnostic{
		Severity: SeverityWarning,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Location: loc,
	}
	ds.Add(d)
	return d
}

// AddError records err as an error diagnostic. A *T4Error keeps its code and location.
func (ds *Diagnostics) AddError(err error) {
	if err == nil {
		return
	}
	var te *T4Error
	if As(err, &te) {
		ds.Add(te.Diagnostic())
		return
	}
	ds.Add(&Diagnostic{Severity: SeverityError, Message: err.Error()})
}

// HasErrors returns true if any diagnostic has error severity.
func (ds *Diagnostics) HasErrors() bool {
	if ds == nil {
		return false
	}
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()
	for _, d := range ds.items {
		if d.IsError() {
			return true
		}
	}
	return false
}

// Len returns the number of diagnostics.
func (ds *Diagnostics) Len() int {
	if ds == nil {
		return 0
	}
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()
	return len(ds.items)
}

// All returns a copy of every diagnostic in insertion order.
func (ds *Diagnostics) All() []*Diagnostic {
	if ds == nil {
		return nil
	}
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()
	result := make([]*Diagnostic, len(ds.items))
	copy(result, ds.items)
	return result
}

// Errors returns the error-severity diagnostics.
func (ds *Diagnostics) Errors() []*Diagnostic {
	return ds.filter(SeverityError)
}

// Warnings returns the warning-severity diagnostics.
func (ds *Diagnostics) Warnings() []*Diagnostic {
	return ds.filter(SeverityWarning)
}

func (ds *Diagnostics) filter(sev Severity) []*Diagnostic {
	var out []*Diagnostic
	for _, d := range ds.All() {
		if d.Severity == sev {
			out = append(out, d)
		}
	}
	return out
}

// Sort orders diagnostics by file, then position. Diagnostics without a
// position keep their relative order after the positioned ones of the same file.
func (ds *Diagnostics) Sort() {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()
	sort.SliceStable(ds.items, func(i, j int) bool {
		a, b := ds.items[i], ds.items[j]
		if a.Location.File != b.Location.File {
			return a.Location.File < b.Location.File
		}
		if a.Location.IsEmpty() != b.Location.IsEmpty() {
			return !a.Location.IsEmpty()
		}
		return a.Location.Before(b.Location)
	})
}

// Clear removes every diagnostic.
func (ds *Diagnostics) Clear() {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()
	ds.items = nil
}

// Format renders all diagnostics, one per line.
func (ds *Diagnostics) Format() string {
	var b strings.Builder
	for _, d := range ds.All() {
		b.WriteString(d.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Err returns nil when no errors were recorded, otherwise an error summarizing them.
func (ds *Diagnostics) Err() error {
	errs := ds.Errors()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, d := range errs {
		msgs = append(msgs, d.String())
	}
	return &T4Error{
		Type:    ErrorTypeInternal,
		Message: strings.Join(msgs, "\n"),
	}
}
