package testutil

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// AssertGolden compares got against testdata/golden/{name}.golden.
//
// To regenerate golden files, run the package tests with -update.
func AssertGolden(t *testing.T, name string, got []byte) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, got)
}

// AssertGoldenJSON marshals v as indented JSON and compares it against the
// golden file.
func AssertGoldenJSON(t *testing.T, name string, v any) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("marshal %s: %v", name, err)
	}
	AssertGolden(t, name, append(data, '\n'))
}
