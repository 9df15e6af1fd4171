package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocationAdvance(t *testing.T) {
	loc := Start("a.tt")
	assert.Equal(t, Location{File: "a.tt", Line: 1, Column: 1}, loc)

	loc = loc.AddColumn(3)
	assert.Equal(t, 4, loc.Column)

	loc = loc.AddLine()
	assert.Equal(t, Location{File: "a.tt", Line: 2, Column: 1}, loc)
}

func TestLocationEquality(t *testing.T) {
	a := NewLocation("x", 3, 7)
	b := Start("x").AddLine().AddLine().AddColumn(6)
	assert.Equal(t, a, b)
	assert.True(t, a == b)
}

func TestLocationString(t *testing.T) {
	assert.Equal(t, "f.tt(2,5)", NewLocation("f.tt", 2, 5).String())
	assert.Equal(t, "f.tt", Location{File: "f.tt"}.String())
	assert.True(t, Location{}.IsEmpty())
}

func TestLocationBefore(t *testing.T) {
	assert.True(t, NewLocation("f", 1, 9).Before(NewLocation("f", 2, 1)))
	assert.True(t, NewLocation("f", 2, 1).Before(NewLocation("f", 2, 2)))
	assert.False(t, NewLocation("f", 2, 2).Before(NewLocation("f", 2, 2)))
}
