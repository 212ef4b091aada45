// Package schema defines the extraction tree model and compiles trees into
// executable plans: a single in-browser program for pure trees, or a hybrid
// snapshot plan for trees containing host callbacks.
package schema

import (
	"context"
	"fmt"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Kind identifies the variant of a Node.
type Kind string

const (
	KindText   Kind = "text"
	KindAttr   Kind = "attr"
	KindHTML   Kind = "html"
	KindExists Kind = "exists"
	KindCount  Kind = "count"
	KindArray  Kind = "array"
	KindObject Kind = "object"
	KindCustom Kind = "custom"
)

// CustomFunc is the host-side callback for custom nodes. It receives the
// matched element as a goquery selection over a DOM snapshot and returns the
// resolved value. Custom nodes force the whole tree into snapshot execution.
type CustomFunc func(ctx context.Context, el *goquery.Selection) (interface{}, error)

// Field pairs an object key with its child node. Declaration order is
// preserved through compilation and into results.
type Field struct {
	Name string
	Node *Node
}

// Node is one vertex of an extraction tree. Nodes are immutable after
// construction; purity is computed by the builders, never by inspection at
// execution time.
type Node struct {
	Kind      Kind
	Selector  string
	Attribute string
	Default   interface{}
	Trim      bool
	Child     *Node   // array element node
	Fields    []Field // object entries, in declaration order
	Fn        CustomFunc

	pure bool

	planOnce sync.Once
	plan     *Plan
}

// Pure reports whether the tree contains no custom nodes and can therefore
// execute entirely in the browser in one round trip.
func (n *Node) Pure() bool { return n.pure }

// LeafOption adjusts a leaf node at construction time.
type LeafOption func(*Node)

// Default substitutes v when the leaf's selector matches nothing.
func Default(v interface{}) LeafOption {
	return func(n *Node) { n.Default = v }
}

// NoTrim disables whitespace trimming on text leaves.
func NoTrim() LeafOption {
	return func(n *Node) { n.Trim = false }
}

// Text extracts the trimmed text content of the first element matching
// selector, relative to the current element. An empty selector reads the
// current element itself.
func Text(selector string, opts ...LeafOption) *Node {
	return newLeaf(KindText, selector, opts)
}

// Attr extracts the named attribute of the first match.
func Attr(selector, attribute string, opts ...LeafOption) *Node {
	n := newLeaf(KindAttr, selector, opts)
	n.Attribute = attribute
	return n
}

// HTML extracts the inner HTML of the first match.
func HTML(selector string, opts ...LeafOption) *Node {
	return newLeaf(KindHTML, selector, opts)
}

// Exists resolves to a strict boolean: whether selector matches anything.
func Exists(selector string) *Node {
	return &Node{Kind: KindExists, Selector: selector, Trim: true, pure: true}
}

// Count resolves to the number of elements matching selector, zero included.
func Count(selector string) *Node {
	return &Node{Kind: KindCount, Selector: selector, Trim: true, pure: true}
}

// Array maps child over every element matching selector, in document order.
// Zero matches resolve to an empty, non-nil slice.
func Array(selector string, child *Node) *Node {
	return &Node{Kind: KindArray, Selector: selector, Child: child, Trim: true, pure: child.pure}
}

// Object resolves each field independently and assembles a Record whose key
// order matches the declaration order of fields.
func Object(fields ...Field) *Node {
	pure := true
	for _, f := range fields {
		if f.Node == nil || !f.Node.pure {
			pure = false
			break
		}
	}
	return &Node{Kind: KindObject, Fields: fields, Trim: true, pure: pure}
}

// Custom wraps a host callback. Its presence anywhere in a tree makes the
// whole tree mixed.
func Custom(fn CustomFunc) *Node {
	return &Node{Kind: KindCustom, Fn: fn, Trim: true}
}

func newLeaf(kind Kind, selector string, opts []LeafOption) *Node {
	n := &Node{Kind: kind, Selector: selector, Trim: true, pure: true}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Validate checks structural invariants of the tree.
func (n *Node) Validate() error {
	switch n.Kind {
	case KindText, KindHTML, KindExists, KindCount:
		return nil
	case KindAttr:
		if n.Attribute == "" {
			return fmt.Errorf("attr node requires an attribute name")
		}
		return nil
	case KindArray:
		if n.Selector == "" {
			return fmt.Errorf("array node requires a selector")
		}
		if n.Child == nil {
			return fmt.Errorf("array node requires a child node")
		}
		return n.Child.Validate()
	case KindObject:
		if len(n.Fields) == 0 {
			return fmt.Errorf("object node requires at least one field")
		}
		seen := make(map[string]bool, len(n.Fields))
		for _, f := range n.Fields {
			if f.Name == "" {
				return fmt.Errorf("object field name cannot be empty")
			}
			if seen[f.Name] {
				return fmt.Errorf("duplicate object field %q", f.Name)
			}
			seen[f.Name] = true
			if f.Node == nil {
				return fmt.Errorf("object field %q has no node", f.Name)
			}
			if err := f.Node.Validate(); err != nil {
				return fmt.Errorf("field %q: %w", f.Name, err)
			}
		}
		return nil
	case KindCustom:
		if n.Fn == nil {
			return fmt.Errorf("custom node requires a callback")
		}
		return nil
	default:
		return fmt.Errorf("unknown node kind %q", n.Kind)
	}
}
