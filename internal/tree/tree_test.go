package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remote(name string, children ...*Node) *Node {
	return &Node{
		Name:     name,
		Location: ParseLocation("https://github.com/example/" + name),
		Children: children,
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw   string
		local bool
	}{
		{"https://github.com/gustavo-hms/luar", false},
		{"http://example.com/repo", false},
		{"git@github.com:occivink/kakoune-phantom-selection", false},
		{"/home/user/code/my-plugin", true},
		{"~/plugins/scratch", true},
		{"relative/dir", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			loc := ParseLocation(tt.raw)
			assert.Equal(t, tt.local, loc.Local)
			assert.Equal(t, tt.raw, loc.Raw)
		})
	}
}

func TestPropagateDisabledMonotonic(t *testing.T) {
	grandchild := remote("grandchild")
	child := remote("child", grandchild)
	child.Disabled = true
	root := remote("root", child)

	f := Forest{root}
	f.PropagateDisabled()

	assert.False(t, root.DisabledEffective)
	assert.True(t, child.DisabledEffective)
	// Not declared disabled, but inherits from the parent.
	assert.False(t, grandchild.Disabled)
	assert.True(t, grandchild.DisabledEffective)

	// Monotonicity: no node may be enabled under a disabled parent.
	f.Walk(func(n, parent *Node) bool {
		if parent != nil && parent.DisabledEffective {
			assert.True(t, n.DisabledEffective, "node %s enabled under disabled parent %s", n.Name, parent.Name)
		}
		return true
	})
}

func TestPropagateDisabledRootDeclared(t *testing.T) {
	root := remote("root", remote("child"))
	root.Disabled = true

	f := Forest{root}
	f.PropagateDisabled()

	assert.True(t, root.DisabledEffective)
	assert.True(t, root.Children[0].DisabledEffective)
}

func TestWalkPreOrder(t *testing.T) {
	f := Forest{
		remote("a", remote("a1"), remote("a2", remote("a2x"))),
		remote("b"),
	}

	assert.Equal(t, []string{"a", "a1", "a2", "a2x", "b"}, f.Names())
}

func TestWalkPrune(t *testing.T) {
	f := Forest{remote("a", remote("a1", remote("deep")))}

	var visited []string
	f.Walk(func(n, _ *Node) bool {
		visited = append(visited, n.Name)
		return n.Name != "a1"
	})
	assert.Equal(t, []string{"a", "a1"}, visited)
}

func TestWalkReportsParent(t *testing.T) {
	child := remote("child")
	f := Forest{remote("root", child)}

	parents := make(map[string]string)
	f.Walk(func(n, parent *Node) bool {
		if parent != nil {
			parents[n.Name] = parent.Name
		}
		return true
	})
	assert.Equal(t, map[string]string{"child": "root"}, parents)
}

func TestFind(t *testing.T) {
	f := Forest{remote("a", remote("a1")), remote("b")}

	require.NotNil(t, f.Find("a1"))
	assert.Equal(t, "a1", f.Find("a1").Name)
	assert.Nil(t, f.Find("missing"))
}

func TestValidateDuplicateNames(t *testing.T) {
	f := Forest{remote("luar", remote("peneira")), remote("peneira")}

	err := f.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate plugin names")
	assert.Contains(t, err.Error(), "peneira")
}

func TestValidateMissingLocation(t *testing.T) {
	f := Forest{{Name: "orphanless"}}

	err := f.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a location")
}

func TestValidateOK(t *testing.T) {
	f := Forest{remote("a", remote("b")), remote("c")}
	assert.NoError(t, f.Validate())
}
