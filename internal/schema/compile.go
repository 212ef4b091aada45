package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Mode selects how a plan executes against a page.
type Mode string

const (
	// ModeAuto runs pure trees in-browser and mixed trees via snapshots.
	ModeAuto Mode = "auto"
	// ModeBrowser forces single-round-trip in-browser execution (pure only).
	ModeBrowser Mode = "browser"
	// ModeSnapshot resolves the tree host-side over per-root outerHTML
	// snapshots, one browser round trip per root element.
	ModeSnapshot Mode = "snapshot"
)

// Evaluator runs a JavaScript expression in the page and JSON-decodes its
// result into out. Satisfied by browser.Page.
type Evaluator interface {
	Evaluate(ctx context.Context, expr string, out interface{}) error
}

// Plan is the executable form of an extraction tree. Pure trees carry a
// serialized schema interpreted by a fixed in-browser program; mixed trees
// fall back to per-root snapshot resolution.
type Plan struct {
	node       *Node
	pure       bool
	schemaJSON string
}

// Plan compiles the tree once and caches the result on the node. Nodes are
// immutable, so the plan is shared by every request using the schema.
func (n *Node) Plan() (*Plan, error) {
	var err error
	n.planOnce.Do(func() {
		if vErr := n.Validate(); vErr != nil {
			err = vErr
			return
		}
		p := &Plan{node: n, pure: n.pure}
		if n.pure {
			encoded, mErr := json.Marshal(encodeNode(n))
			if mErr != nil {
				err = fmt.Errorf("encoding schema: %w", mErr)
				return
			}
			p.schemaJSON = string(encoded)
		}
		n.plan = p
	})
	if err != nil {
		return nil, err
	}
	if n.plan == nil {
		return nil, fmt.Errorf("schema failed to compile")
	}
	return n.plan, nil
}

// Pure reports whether the plan executes in a single in-browser call.
func (p *Plan) Pure() bool { return p.pure }

// Execute runs the plan against the page, returning one result value per
// element matching rootSelector, in document order.
func (p *Plan) Execute(ctx context.Context, ev Evaluator, rootSelector string, mode Mode) ([]interface{}, error) {
	switch mode {
	case "", ModeAuto:
		if p.pure {
			return p.executeBrowser(ctx, ev, rootSelector)
		}
		return p.executeSnapshot(ctx, ev, rootSelector)
	case ModeBrowser:
		if !p.pure {
			return nil, fmt.Errorf("mixed schema cannot execute in-browser")
		}
		return p.executeBrowser(ctx, ev, rootSelector)
	case ModeSnapshot:
		return p.executeSnapshot(ctx, ev, rootSelector)
	default:
		return nil, fmt.Errorf("unknown execution mode %q", mode)
	}
}

// executeBrowser ships the schema and the interpreter to the page in one
// Evaluate call and reshapes the decoded JSON into ordered records.
func (p *Plan) executeBrowser(ctx context.Context, ev Evaluator, rootSelector string) ([]interface{}, error) {
	var raw []interface{}
	if err := ev.Evaluate(ctx, p.BrowserProgram(rootSelector), &raw); err != nil {
		return nil, err
	}
	results := make([]interface{}, len(raw))
	for i, r := range raw {
		results[i] = reshape(p.node, r)
	}
	return results, nil
}

// executeSnapshot enumerates root elements, snapshots each one's outerHTML,
// and resolves the tree host-side with goquery.
func (p *Plan) executeSnapshot(ctx context.Context, ev Evaluator, rootSelector string) ([]interface{}, error) {
	var count int
	if err := ev.Evaluate(ctx, countExpr(rootSelector), &count); err != nil {
		return nil, err
	}
	results := make([]interface{}, 0, count)
	for i := 0; i < count; i++ {
		var html string
		if err := ev.Evaluate(ctx, outerHTMLExpr(rootSelector, i), &html); err != nil {
			return nil, err
		}
		root, err := parseSnapshot(html)
		if err != nil {
			return nil, fmt.Errorf("parsing snapshot of root %d: %w", i, err)
		}
		value, err := resolveSnapshot(ctx, p.node, root)
		if err != nil {
			return nil, err
		}
		results = append(results, value)
	}
	return results, nil
}

// BrowserProgram returns the full in-browser expression for the given root
// selector: the fixed interpreter applied to the serialized schema. Only the
// schema and selector vary per request; no host code crosses the boundary.
func (p *Plan) BrowserProgram(rootSelector string) string {
	return fmt.Sprintf("(%s)(%s, %s)", interpreterJS, p.schemaJSON, jsString(rootSelector))
}

func countExpr(selector string) string {
	return fmt.Sprintf("document.querySelectorAll(%s).length", jsString(selector))
}

func outerHTMLExpr(selector string, index int) string {
	return fmt.Sprintf(
		"(function(){var n=document.querySelectorAll(%s)[%d];return n?n.outerHTML:null;})()",
		jsString(selector), index)
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// encodeNode converts a pure node into its wire form for the interpreter.
// Object fields travel as [name, node] pairs so declaration order survives
// JSON encoding.
func encodeNode(n *Node) map[string]interface{} {
	m := map[string]interface{}{
		"kind": string(n.Kind),
		"trim": n.Trim,
	}
	if n.Selector != "" {
		m["selector"] = n.Selector
	}
	if n.Attribute != "" {
		m["attribute"] = n.Attribute
	}
	if n.Default != nil {
		m["default"] = n.Default
	}
	if n.Child != nil {
		m["child"] = encodeNode(n.Child)
	}
	if len(n.Fields) > 0 {
		fields := make([]interface{}, len(n.Fields))
		for i, f := range n.Fields {
			fields[i] = []interface{}{f.Name, encodeNode(f.Node)}
		}
		m["fields"] = fields
	}
	return m
}

// parseSnapshot wraps one element's outerHTML into a goquery selection rooted
// at that element.
func parseSnapshot(html string) (*goquery.Selection, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	root := doc.Find("body").Children().First()
	if root.Length() == 0 {
		// Roots like <html> or bare text parse without a body child.
		return doc.Selection, nil
	}
	return root, nil
}

// interpreterJS is the fixed in-browser resolver. It recursively walks the
// serialized schema relative to each root element and returns plain JSON
// values; missing matches resolve to the node's default, never throw.
const interpreterJS = `function(schema, rootSel) {
	function first(el, sel) { return sel ? el.querySelector(sel) : el; }
	function dflt(node) { return 'default' in node ? node['default'] : null; }
	function resolve(node, el) {
		switch (node.kind) {
		case 'text': {
			var t = first(el, node.selector);
			if (!t) return dflt(node);
			var v = t.textContent == null ? '' : t.textContent;
			return node.trim ? v.trim() : v;
		}
		case 'attr': {
			var t = first(el, node.selector);
			if (!t) return dflt(node);
			var v = t.getAttribute(node.attribute);
			return v == null ? dflt(node) : v;
		}
		case 'html': {
			var t = first(el, node.selector);
			return t ? t.innerHTML : dflt(node);
		}
		case 'exists':
			return !!first(el, node.selector);
		case 'count':
			return node.selector ? el.querySelectorAll(node.selector).length : 1;
		case 'array': {
			var out = [];
			var kids = el.querySelectorAll(node.selector);
			for (var i = 0; i < kids.length; i++) out.push(resolve(node.child, kids[i]));
			return out;
		}
		case 'object': {
			var out = {};
			for (var i = 0; i < node.fields.length; i++) {
				out[node.fields[i][0]] = resolve(node.fields[i][1], el);
			}
			return out;
		}
		}
		return null;
	}
	var roots = document.querySelectorAll(rootSel);
	var results = [];
	for (var i = 0; i < roots.length; i++) results.push(resolve(schema, roots[i]));
	return results;
}`
