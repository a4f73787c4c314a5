package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func parseFragment(t *testing.T, doc string) *html.Node {
	t.Helper()
	root, err := html.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	return root
}

// TestSkeletonHashesInvariantToTextContent covers the level-2
// (structure) invariance: two pages with identical tag structure but
// different text content must produce the same level2 hash.
func TestSkeletonHashesInvariantToTextContent(t *testing.T) {
	a := parseFragment(t, `<html><body><div><p>Hello world</p><p>Second paragraph</p></div></body></html>`)
	b := parseFragment(t, `<html><body><div><p>Completely different text</p><p>Another sentence entirely</p></div></body></html>`)

	l2a, l1a := skeletonHashes(a)
	l2b, l1b := skeletonHashes(b)

	require.Equal(t, l2a, l2b, "level2 structure hash must be invariant to text content")
	require.Equal(t, l1a, l1b, "level1 hash must also be invariant to text content when tags/ids/classes match")
}

// TestSkeletonHashesInvariantToClassOrder covers the level-1
// (template) invariance: a node's classList is sorted before hashing, so
// two pages differing only in class attribute order must hash identically
// at level1 (and, since class order never affects level2, at level2 too).
func TestSkeletonHashesInvariantToClassOrder(t *testing.T) {
	a := parseFragment(t, `<html><body><div class="card featured highlight">x</div></body></html>`)
	b := parseFragment(t, `<html><body><div class="highlight card featured">y</div></body></html>`)

	l2a, l1a := skeletonHashes(a)
	l2b, l1b := skeletonHashes(b)

	require.Equal(t, l2a, l2b)
	require.Equal(t, l1a, l1b, "level1 hash must be invariant to class attribute order")
}

// TestSkeletonHashesDifferOnStructuralChange is the negative control: a
// genuinely different tag structure must not collide at either level.
func TestSkeletonHashesDifferOnStructuralChange(t *testing.T) {
	a := parseFragment(t, `<html><body><div><p>one</p></div></body></html>`)
	b := parseFragment(t, `<html><body><section><p>one</p></section></body></html>`)

	l2a, _ := skeletonHashes(a)
	l2b, _ := skeletonHashes(b)
	require.NotEqual(t, l2a, l2b)
}

// TestSkeletonHashesDifferOnIDOrClass covers the level1/level2 split: an
// id/class change must shift level1 but leave level2 (tag-only) alone.
func TestSkeletonHashesDifferOnIDOrClass(t *testing.T) {
	a := parseFragment(t, `<html><body><div id="main" class="card">x</div></body></html>`)
	b := parseFragment(t, `<html><body><div id="sidebar" class="widget">y</div></body></html>`)

	l2a, l1a := skeletonHashes(a)
	l2b, l1b := skeletonHashes(b)

	require.Equal(t, l2a, l2b, "level2 ignores id/class entirely")
	require.NotEqual(t, l1a, l1b, "level1 must reflect id/class differences")
}
