// Package entity binds XML documents returned by the OpenNebula API into a
// navigable tree.
//
// Every element becomes a [Node]. Elements named TEMPLATE or USER_TEMPLATE
// are bound to a [Template] instead: an ordered mapping that can be read,
// modified and passed back to update calls without loss.
//
//	pool, _ := entity.Bind(payload)
//	for _, m := range pool.Children("MARKETPLACE") {
//	    fmt.Println(m.Get("NAME"), m.Template("TEMPLATE").Text("MARKET_MAD"))
//	}
package entity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// ErrEmptyDocument is returned by [Bind] when the document has no root
// element.
var ErrEmptyDocument = errors.New("entity: document has no root element")

// templateTags lists the elements bound as [Template]. Any other element is
// bound as a plain [Node].
var templateTags = map[string]bool{
	"TEMPLATE":      true,
	"USER_TEMPLATE": true,
}

// IsTemplateTag reports whether elements named tag are bound as templates.
func IsTemplateTag(tag string) bool {
	return templateTags[tag]
}

// Node is one element of a bound document.
type Node struct {
	tag      string
	text     string
	attrs    map[string]string
	children []*Node
	template *Template
}

// Bind parses an XML document and returns its root element.
//
// Namespace declarations are dropped; tags are matched by local name.
func Bind(markup []byte) (*Node, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(markup); err != nil {
		return nil, fmt.Errorf("entity: parse document: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, ErrEmptyDocument
	}
	return bindElement(root), nil
}

func bindElement(el *etree.Element) *Node {
	n := &Node{tag: el.Tag}
	for _, a := range el.Attr {
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
			continue
		}
		if n.attrs == nil {
			n.attrs = make(map[string]string)
		}
		n.attrs[a.Key] = a.Value
	}

	if IsTemplateTag(el.Tag) {
		n.template = bindTemplate(el)
		return n
	}

	children := el.ChildElements()
	if len(children) == 0 {
		n.text = strings.TrimSpace(el.Text())
		return n
	}
	n.children = make([]*Node, 0, len(children))
	for _, child := range children {
		n.children = append(n.children, bindElement(child))
	}
	return n
}

// bindTemplate converts el into a Template. An element without children
// yields an empty template, never nil.
func bindTemplate(el *etree.Element) *Template {
	t := NewTemplate(el.Tag)
	for _, child := range el.ChildElements() {
		if len(child.ChildElements()) == 0 {
			t.add(child.Tag, strings.TrimSpace(child.Text()))
			continue
		}
		t.add(child.Tag, bindTemplate(child))
	}
	return t
}

// Tag returns the element name.
func (n *Node) Tag() string {
	return n.tag
}

// Text returns the trimmed text of a leaf element.
func (n *Node) Text() string {
	return n.text
}

// Attr returns the value of attribute name, or "".
func (n *Node) Attr(name string) string {
	return n.attrs[name]
}

// Nodes returns all child elements in document order. Template nodes have
// no child nodes; use [Node.AsTemplate].
func (n *Node) Nodes() []*Node {
	return n.children
}

// Child returns the first child element named tag, or nil.
func (n *Node) Child(tag string) *Node {
	for _, c := range n.children {
		if c.tag == tag {
			return c
		}
	}
	return nil
}

// Children returns every child element named tag.
func (n *Node) Children(tag string) []*Node {
	var out []*Node
	for _, c := range n.children {
		if c.tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// Get returns the text of the first child named tag, or "".
func (n *Node) Get(tag string) string {
	if c := n.Child(tag); c != nil {
		return c.text
	}
	return ""
}

// Int parses the text of the first child named tag as an integer.
func (n *Node) Int(tag string) (int, error) {
	c := n.Child(tag)
	if c == nil {
		return 0, fmt.Errorf("entity: %s has no %s element", n.tag, tag)
	}
	v, err := strconv.Atoi(c.text)
	if err != nil {
		return 0, fmt.Errorf("entity: %s/%s: %w", n.tag, tag, err)
	}
	return v, nil
}

// Template returns the template bound from the child named tag, or nil when
// there is no such child or tag is not a template element.
//
//	host.Template("TEMPLATE").Text("ARCH")
func (n *Node) Template(tag string) *Template {
	if c := n.Child(tag); c != nil {
		return c.template
	}
	return nil
}

// AsTemplate returns the template view of n itself.
func (n *Node) AsTemplate() (*Template, bool) {
	return n.template, n.template != nil
}
