//go:build property

package runtimes

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genIdentifier() gopter.Gen {
	return gen.OneGenOf(
		gen.IntRange(0, 50).Map(func(n int) string { return fmt.Sprint(n) }),
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" && len(s) < 8 }),
	)
}

func genVersion() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 20),
		gen.IntRange(0, 30),
		gen.IntRange(0, 10),
		gen.SliceOfN(2, genIdentifier()),
		gen.IntRange(0, 2),
		gen.Bool(),
	).Map(func(vals []interface{}) Version {
		ids := vals[3].([]string)
		v := Version{Major: vals[0].(int), Minor: vals[1].(int), Patch: vals[2].(int)}
		if n := vals[4].(int); n > 0 {
			v.Prerelease = ids[0]
			if n > 1 {
				v.Prerelease += "." + ids[1]
			}
		}
		if vals[5].(bool) {
			v.Metadata = "build." + ids[1]
		}
		return v
	})
}

func TestVersionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(4242)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("parse(string(v)) round-trips", prop.ForAll(
		func(v Version) bool {
			parsed, err := Parse(v.String())
			return err == nil && parsed.String() == v.String() && parsed.Compare(v) == 0
		},
		genVersion(),
	))

	properties.Property("compare is antisymmetric", prop.ForAll(
		func(a, b Version) bool {
			return a.Compare(b) == -b.Compare(a)
		},
		genVersion(), genVersion(),
	))

	properties.Property("compare is transitive", prop.ForAll(
		func(a, b, c Version) bool {
			if a.Compare(b) <= 0 && b.Compare(c) <= 0 {
				return a.Compare(c) <= 0
			}
			return true
		},
		genVersion(), genVersion(), genVersion(),
	))

	properties.Property("a release sorts after its prereleases", prop.ForAll(
		func(v Version) bool {
			if v.Prerelease == "" {
				return true
			}
			release := Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch}
			return v.LessThan(release)
		},
		genVersion(),
	))

	properties.TestingRun(t)
}
