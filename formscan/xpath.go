package formscan

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// XPath handling matches the injected observer script: absolute paths of
// the form /html[1]/body[1]/form[2]/input[1], with 1-based positional
// indexes counted among same-tag element siblings.

// absoluteXPath computes the path of n from the document root.
func absoluteXPath(n *html.Node) string {
	var segs []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		segs = append(segs, segment(cur))
	}
	// segs were collected leaf-first
	var b strings.Builder
	for i := len(segs) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(segs[i])
	}
	return b.String()
}

// relativeXPath computes the path of n relative to root, with a leading
// slash, so it can be appended to root's own XPath. Returns "" when n is
// root itself.
func relativeXPath(root, n *html.Node) string {
	var segs []string
	for cur := n; cur != nil && cur != root; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		segs = append(segs, segment(cur))
	}
	var b strings.Builder
	for i := len(segs) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(segs[i])
	}
	return b.String()
}

func segment(n *html.Node) string {
	idx := 1
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && sib.Data == n.Data {
			idx++
		}
	}
	return fmt.Sprintf("%s[%d]", n.Data, idx)
}
