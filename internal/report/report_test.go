package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortFollowsDeclarationOrder(t *testing.T) {
	r := &Report{
		Successes: []Success{
			{Name: "zeta", Action: ActionInstalled},
			{Name: "alpha", Action: ActionUpdated},
			{Name: "removed-b", Action: ActionRemoved},
			{Name: "removed-a", Action: ActionRemoved},
			{Name: "mid", Action: ActionUnchanged},
		},
		Failures: []Failure{
			{Name: "mid-fail", Kind: KindFetch, Message: "boom"},
			{Name: "alpha-fail", Kind: KindFetch, Message: "boom"},
		},
	}

	declared := []string{"alpha", "alpha-fail", "mid", "mid-fail", "zeta"}
	r.Sort(declared)

	var successNames []string
	for _, s := range r.Successes {
		successNames = append(successNames, s.Name)
	}
	// Declared plugins in declaration order, removed orphans after in
	// name order.
	assert.Equal(t, []string{"alpha", "mid", "zeta", "removed-a", "removed-b"}, successNames)

	assert.Equal(t, "alpha-fail", r.Failures[0].Name)
	assert.Equal(t, "mid-fail", r.Failures[1].Name)
}

func TestRenderSuccessesBeforeFailures(t *testing.T) {
	r := &Report{
		Successes: []Success{
			{Name: "luar", Action: ActionUpdated, Changelog: []string{"abc123 Fix thing", "def456 Add thing"}},
			{Name: "peneira", Action: ActionInstalled},
		},
		Failures: []Failure{
			{Name: "phantom", Kind: KindDiverged, Message: "history diverged"},
		},
	}

	out := Render(r, DefaultTheme())

	require.Contains(t, out, "luar")
	assert.Contains(t, out, "abc123 Fix thing")
	assert.Contains(t, out, "peneira")
	assert.Contains(t, out, "some plugins could not be updated")
	assert.Contains(t, out, "diverged-history")

	assert.Less(t, strings.Index(out, "luar"), strings.Index(out, "phantom"))
}

func TestRenderOnlyFailures(t *testing.T) {
	r := &Report{
		Failures: []Failure{{Name: "broken", Kind: KindFetch, Message: "no route to host"}},
	}

	out := Render(r, DefaultTheme())
	assert.Contains(t, out, "some plugins could not be updated")
	assert.Contains(t, out, "no route to host")
}

func TestRenderEmpty(t *testing.T) {
	out := Render(&Report{}, DefaultTheme())
	assert.Equal(t, "Nothing to do.\n", out)
}

func TestEmptyAndFailed(t *testing.T) {
	assert.True(t, (&Report{}).Empty())
	assert.False(t, (&Report{}).Failed())

	r := &Report{Failures: []Failure{{Name: "x"}}}
	assert.False(t, r.Empty())
	assert.True(t, r.Failed())
}
