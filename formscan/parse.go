package formscan

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// stripText removes all markup, leaving the text a user would read.
// Script and style bodies are dropped by the policy.
var stripText = bluemonday.StrictPolicy()

// ScanDocument parses a full DOM snapshot and classifies every form in it.
// XPaths are absolute (rooted at /html[1]).
func ScanDocument(rawHTML []byte) ([]FormDescriptor, error) {
	doc, err := html.Parse(bytes.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("formscan: parse document: %w", err)
	}
	var forms []FormDescriptor
	for _, fn := range findForms(doc) {
		forms = append(forms, classifyNode(fn, absoluteXPath(fn)))
	}
	return forms, nil
}

// ScanFragment parses a serialised subtree (a mutation's inserted HTML) and
// classifies any forms inside it. rootXPath is the live-document XPath of
// the subtree root; form XPaths are joined onto it. The fragment may itself
// be a form element.
func ScanFragment(fragment, rootXPath string) ([]FormDescriptor, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return nil, fmt.Errorf("formscan: parse fragment: %w", err)
	}

	var forms []FormDescriptor
	for _, root := range nodes {
		if root.Type != html.ElementNode {
			continue
		}
		if root.DataAtom == atom.Form {
			forms = append(forms, classifyNode(root, rootXPath))
			continue
		}
		for _, fn := range findForms(root) {
			rel := relativeXPath(root, fn)
			forms = append(forms, classifyNode(fn, rootXPath+rel))
		}
	}
	return forms, nil
}

// classifyNode extracts controls and visible text from a form node and runs
// the classifier.
func classifyNode(formNode *html.Node, formXPath string) FormDescriptor {
	var controls []Control
	walk(formNode, func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Input {
			controls = append(controls, NewControl(
				attr(n, "type"),
				attr(n, "name"),
				attr(n, "id"),
				attr(n, "placeholder"),
				formXPath+relativeXPath(formNode, n),
			))
		}
	})

	text := stripText.Sanitize(renderNode(formNode))
	return ClassifyForm(formXPath, controls, text)
}

// findForms returns all form elements under n, in document order.
// Nested forms are invalid HTML and the parser flattens them, so each
// returned node is a distinct form.
func findForms(n *html.Node) []*html.Node {
	var forms []*html.Node
	walk(n, func(c *html.Node) {
		if c.Type == html.ElementNode && c.DataAtom == atom.Form {
			forms = append(forms, c)
		}
	})
	return forms
}

func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func renderNode(n *html.Node) string {
	var buf bytes.Buffer
	html.Render(&buf, n)
	return buf.String()
}
