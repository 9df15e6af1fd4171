// Package source provides the position types shared by every phase of the
// template pipeline.
package source

import "fmt"

// Location is a 1-based line/column position inside a named document.
// Locations are plain values: two locations are equal when all fields are.
type Location struct {
	File   string
	Line   int
	Column int
}

// NewLocation returns a location at the given line and column.
func NewLocation(file string, line, column int) Location {
	return Location{File: file, Line: line, Column: column}
}

// Start returns the first position of a document.
func Start(file string) Location {
	return Location{File: file, Line: 1, Column: 1}
}

// AddColumn returns the location moved n columns to the right.
func (l Location) AddColumn(n int) Location {
	return Location{File: l.File, Line: l.Line, Column: l.Column + n}
}

// AddLine returns the location at the first column of the next line.
func (l Location) AddLine() Location {
	return Location{File: l.File, Line: l.Line + 1, Column: 1}
}

// IsEmpty reports whether the location carries no position information.
func (l Location) IsEmpty() bool {
	return l.Line == 0 && l.Column == 0
}

// Before reports whether l is strictly before o in the same document.
func (l Location) Before(o Location) bool {
	if l.Line != o.Line {
		return l.Line < o.Line
	}
	return l.Column < o.Column
}

// String formats the location as file(line,col), the form used in diagnostics.
func (l Location) String() string {
	if l.IsEmpty() {
		return l.File
	}
	return fmt.Sprintf("%s(%d,%d)", l.File, l.Line, l.Column)
}
