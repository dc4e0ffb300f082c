package page

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const hostTemplate = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>MFL</title></head>
<body><div id="app"></div></body>
</html>`

// ScriptElement is the observable part of an injected script tag
type ScriptElement struct {
	ID    string
	Src   string
	Async bool
}

// Document is the live host document plugins are injected into
type Document struct {
	root *html.Node
	body *html.Node
}

// NewDocument parses the pristine host page
func NewDocument() (*Document, error) {
	return ParseDocument(strings.NewReader(hostTemplate))
}

// ParseDocument parses an HTML page and locates its body
func ParseDocument(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse host document: %w", err)
	}
	body := findFirst(root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Body
	})
	if body == nil {
		return nil, fmt.Errorf("host document has no body")
	}
	return &Document{root: root, body: body}, nil
}

// GetElementByID returns the first element whose id attribute equals id
func (d *Document) GetElementByID(id string) *html.Node {
	return findFirst(d.root, func(n *html.Node) bool {
		v, ok := attr(n, "id")
		return n.Type == html.ElementNode && ok && v == id
	})
}

// AppendToBody appends n as the last child of body
func (d *Document) AppendToBody(n *html.Node) {
	d.body.AppendChild(n)
}

// Remove detaches n from its parent
func (d *Document) Remove(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Scripts lists every script element in document order
func (d *Document) Scripts() []ScriptElement {
	var out []ScriptElement
	walk(d.root, func(n *html.Node) {
		if n.Type != html.ElementNode || n.DataAtom != atom.Script {
			return
		}
		id, _ := attr(n, "id")
		src, _ := attr(n, "src")
		_, async := attr(n, "async")
		out = append(out, ScriptElement{ID: id, Src: src, Async: async})
	})
	return out
}

// Render writes the document as HTML
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// NewScriptElement builds an external, asynchronously executed script tag
func NewScriptElement(id, src string) (*html.Node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("script %s has no src", id)
	}
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Script,
		Data:     "script",
		Attr: []html.Attribute{
			{Key: "id", Val: id},
			{Key: "src", Val: src},
			{Key: "async", Val: ""},
		},
	}, nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}
