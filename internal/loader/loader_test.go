package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alforje/alforje/internal/tree"
)

func remote(name string, children ...*tree.Node) *tree.Node {
	return &tree.Node{
		Name:     name,
		Location: tree.ParseLocation("https://github.com/example/" + name),
		Children: children,
	}
}

func generate(f tree.Forest) string {
	f.PropagateDisabled()
	return Generate(f)
}

func TestRootLeafStanza(t *testing.T) {
	n := remote("phantom")
	n.Config = "map global normal f ': phantom-selection-add-selection<ret>'"

	out := generate(tree.Forest{n})
	assert.Contains(t, out, "try %[ require-module phantom ]\nmap global normal f ': phantom-selection-add-selection<ret>'\n")
	assert.NotContains(t, out, "provide-module")
	assert.NotContains(t, out, "ModuleLoaded")
}

func TestRootWithChildrenStanza(t *testing.T) {
	out := generate(tree.Forest{remote("luar", remote("peneira"))})

	assert.Contains(t, out,
		"try %[ require-module luar ] catch %[\n    provide-module luar ''\n    require-module luar\n]\n")
}

func TestChildGatedOnParentCompletion(t *testing.T) {
	child := remote("peneira")
	child.Config = "set-option global peneira_files_command 'rg --files'"
	out := generate(tree.Forest{remote("luar", child)})

	hook := "hook -once global ModuleLoaded luar %["
	require.Contains(t, out, hook)

	// The child's request lives inside the parent's load-completion hook,
	// never as an unconditional top-level require.
	hookStart := strings.Index(out, hook)
	childReq := strings.Index(out, "require-module peneira")
	assert.Greater(t, childReq, hookStart)
	assert.Contains(t, out, "    try %[ require-module peneira ]\n    set-option global peneira_files_command 'rg --files'\n]")
	assert.NotContains(t, out, "\ntry %[ require-module peneira ]")
}

func TestChildWithChildrenStanza(t *testing.T) {
	out := generate(tree.Forest{remote("a", remote("b", remote("c")))})

	assert.Contains(t, out,
		"hook -once global ModuleLoaded a %[\n    try %[ require-module b ] catch %[\n        provide-module b ''\n        require-module b\n    ]\n")
	// The grandchild gates on its own parent, not on the root.
	assert.Contains(t, out, "hook -once global ModuleLoaded b %[")
}

func TestDisabledSubtreeEmitsNothing(t *testing.T) {
	grandchild := remote("grandchild")
	disabled := remote("disabled-child", grandchild)
	disabled.Disabled = true
	root := remote("root", disabled)

	out := generate(tree.Forest{root})

	assert.Contains(t, out, "require-module root")
	assert.NotContains(t, out, "disabled-child")
	// Not itself declared disabled, but under a disabled ancestor.
	assert.NotContains(t, out, "grandchild")
}

func TestDisabledChildDoesNotForceProvideFallback(t *testing.T) {
	disabled := remote("off")
	disabled.Disabled = true
	out := generate(tree.Forest{remote("root", disabled)})

	// With no enabled children the root needs no ModuleLoaded event.
	assert.NotContains(t, out, "provide-module root")
}

func TestLocalDirectoryEmitsNoRequire(t *testing.T) {
	local := &tree.Node{
		Name:     "scratch",
		Location: tree.ParseLocation("/home/ada/code/scratch"),
		Config:   "map global user s ': scratch-toggle<ret>'",
	}

	out := generate(tree.Forest{local})
	assert.NotContains(t, out, "require-module scratch")
	assert.Contains(t, out, "map global user s ': scratch-toggle<ret>'\n")
}

func TestLocalDirectoryWithoutConfigEmitsNothing(t *testing.T) {
	local := &tree.Node{Name: "quiet", Location: tree.ParseLocation("/home/ada/code/quiet")}

	out := generate(tree.Forest{local})
	assert.NotContains(t, out, "quiet")
}

func TestChildOfLocalParentIsUngated(t *testing.T) {
	child := remote("dep")
	local := &tree.Node{
		Name:     "scratch",
		Location: tree.ParseLocation("/home/ada/code/scratch"),
		Children: []*tree.Node{child},
	}

	out := generate(tree.Forest{local})
	// A local parent has no ModuleLoaded event; the child loads right away.
	assert.NotContains(t, out, "ModuleLoaded")
	assert.Contains(t, out, "try %[ require-module dep ]")
}

func TestSiblingDeclarationOrderPreserved(t *testing.T) {
	out := generate(tree.Forest{remote("zeta"), remote("alpha"), remote("mid")})

	zi := strings.Index(out, "require-module zeta")
	ai := strings.Index(out, "require-module alpha")
	mi := strings.Index(out, "require-module mid")
	assert.Less(t, zi, ai)
	assert.Less(t, ai, mi)
}

func TestWrapperDelimiters(t *testing.T) {
	out := generate(tree.Forest{remote("p")})
	assert.True(t, strings.HasPrefix(out, "hook global KakBegin .* %🧺\n"))
	assert.True(t, strings.HasSuffix(out, "🧺\n"))
}

func TestGenerateDeterministic(t *testing.T) {
	f := tree.Forest{remote("a", remote("b")), remote("c")}
	f.PropagateDisabled()
	assert.Equal(t, Generate(f), Generate(f))
}

func TestWriteRegeneratesInFull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alforje.kak")
	require.NoError(t, os.WriteFile(path, []byte("stale content from a previous run"), 0o644))

	f := tree.Forest{remote("p")}
	f.PropagateDisabled()
	require.NoError(t, Write(path, f))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stale content")
	assert.Contains(t, string(data), "require-module p")
}
