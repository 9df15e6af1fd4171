package parser

import (
	"strings"

	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/source"
)

// SegmentKind identifies the kind of a template segment.
type SegmentKind int

const (
	// ContentSegment is literal text.
	ContentSegment SegmentKind = iota
	// BlockSegment is a statement block, <# #>.
	BlockSegment
	// ExpressionSegment is an expression whose value is written, <#= #>.
	ExpressionSegment
	// HelperSegment is class feature code, <#+ #>.
	HelperSegment
)

func (k SegmentKind) String() string {
	switch k {
	case ContentSegment:
		return "Content"
	case BlockSegment:
		return "Block"
	case ExpressionSegment:
		return "Expression"
	case HelperSegment:
		return "Helper"
	default:
		return "Unknown"
	}
}

// Item is an element of a parsed template: a *Directive or a *Segment.
type Item interface {
	StartLocation() source.Location
}

// Segment is a unit of literal text or embedded code.
type Segment struct {
	Kind     SegmentKind
	Text     string
	Start    source.Location
	End      source.Location
	TagStart source.Location
}

// StartLocation implements Item.
func (s *Segment) StartLocation() source.Location { return s.Start }

// Directive is a <#@ name attr="value" #> tag.
type Directive struct {
	Name       string
	Attributes *Attributes
	Start      source.Location
	End        source.Location
	TagStart   source.Location
}

// StartLocation implements Item.
func (d *Directive) StartLocation() source.Location { return d.Start }

// Is reports whether the directive has the given name, ignoring case.
func (d *Directive) Is(name string) bool {
	return strings.EqualFold(d.Name, name)
}

// Extract removes an attribute and returns its value.
func (d *Directive) Extract(name string) (string, bool) {
	return d.Attributes.Extract(name)
}

// ParsedTemplate is the result of parsing one root document with its
// includes flattened. It is read-only once parsing ends, except for the
// diagnostics that later phases append.
type ParsedTemplate struct {
	File        string
	Content     string
	Diagnostics *errors.Diagnostics

	items    []Item
	includes []string
}

// NewParsedTemplate creates an empty template for file.
func NewParsedTemplate(file, content string) *ParsedTemplate {
	return &ParsedTemplate{
		File:        file,
		Content:     content,
		Diagnostics: errors.NewDiagnostics(),
	}
}

// Items returns directives and segments in document order.
func (pt *ParsedTemplate) Items() []Item {
	out := make([]Item, len(pt.items))
	copy(out, pt.items)
	return out
}

// Directives returns the directives in document order.
func (pt *ParsedTemplate) Directives() []*Directive {
	var out []*Directive
	for _, it := range pt.items {
		if d, ok := it.(*Directive); ok {
			out = append(out, d)
		}
	}
	return out
}

// Segments returns the segments in document order.
func (pt *ParsedTemplate) Segments() []*Segment {
	var out []*Segment
	for _, it := range pt.items {
		if s, ok := it.(*Segment); ok {
			out = append(out, s)
		}
	}
	return out
}

// Includes returns the canonical identities of every included document, in
// the order they were read.
func (pt *ParsedTemplate) Includes() []string {
	out := make([]string, len(pt.includes))
	copy(out, pt.includes)
	return out
}

// HasErrors reports whether any error diagnostic has been recorded.
func (pt *ParsedTemplate) HasErrors() bool {
	return pt.Diagnostics.HasErrors()
}

// Errorf records an error. An empty location falls back to the document.
func (pt *ParsedTemplate) Errorf(loc source.Location, code, format string, args ...interface{}) {
	pt.Diagnostics.Errorf(pt.orDocument(loc), code, format, args...)
}

// Warnf records a warning. An empty location falls back to the document.
func (pt *ParsedTemplate) Warnf(loc source.Location, code, format string, args ...interface{}) {
	pt.Diagnostics.Warnf(pt.orDocument(loc), code, format, args...)
}

func (pt *ParsedTemplate) orDocument(loc source.Location) source.Location {
	if loc.File == "" {
		loc.File = pt.File
	}
	return loc
}

func (pt *ParsedTemplate) add(it Item) {
	pt.items = append(pt.items, it)
}
