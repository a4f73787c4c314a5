package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/OneOfOne/xxhash"
	"golang.org/x/net/html"
)

// skeletonHashes computes the page's two-level skeleton hash. Level 2 is the coarse tag-only structure; level 1 adds
// #id and sorted .classList per node. Each level's whole serialized
// structure goes through finalize: an xxhash digest of the string
// (fast, non-cryptographic) is mixed into a SHA-256 over the string
// itself, truncated to 16 hex chars.
func skeletonHashes(root *html.Node) (level2, level1 string) {
	var l2, l1 strings.Builder
	serializeSkeleton(root, &l2, &l1)
	return finalize(l2.String()), finalize(l1.String())
}

func serializeSkeleton(n *html.Node, l2, l1 *strings.Builder) {
	if n.Type == html.ElementNode {
		l2.WriteString(n.Data)
		l1.WriteString(n.Data)
		if id := attr(n, "id"); id != "" {
			l1.WriteString("#")
			l1.WriteString(id)
		}
		if classes := classList(n); len(classes) > 0 {
			l1.WriteString(".")
			l1.WriteString(strings.Join(classes, "."))
		}
		l2.WriteString("(")
		l1.WriteString("(")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		serializeSkeleton(c, l2, l1)
	}
	if n.Type == html.ElementNode {
		l2.WriteString(")")
		l1.WriteString(")")
	}
}

func classList(n *html.Node) []string {
	raw := attr(n, "class")
	if raw == "" {
		return nil
	}
	classes := strings.Fields(raw)
	sort.Strings(classes)
	return classes
}

// finalize hashes the whole signature with xxhash, then SHA-256s that
// digest's hex form followed by the full signature, keeping the first 16
// hex characters.
func finalize(signature string) string {
	seed := xxhash.Checksum64([]byte(signature))
	sum := sha256.Sum256([]byte(strconv.FormatUint(seed, 16) + signature))
	return hex.EncodeToString(sum[:])[:16]
}
