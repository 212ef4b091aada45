package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// resolveSnapshot walks the tree host-side against a goquery selection,
// mirroring the in-browser interpreter's semantics exactly. Custom nodes run
// here with the matched sub-selection; pure nodes resolve over the same
// snapshot, so a mixed tree composes identically to a fully pure one.
func resolveSnapshot(ctx context.Context, n *Node, el *goquery.Selection) (interface{}, error) {
	switch n.Kind {
	case KindText:
		target, ok := firstMatch(el, n.Selector)
		if !ok {
			return n.Default, nil
		}
		text := target.Text()
		if n.Trim {
			text = strings.TrimSpace(text)
		}
		return text, nil

	case KindAttr:
		target, ok := firstMatch(el, n.Selector)
		if !ok {
			return n.Default, nil
		}
		value, exists := target.Attr(n.Attribute)
		if !exists {
			return n.Default, nil
		}
		return value, nil

	case KindHTML:
		target, ok := firstMatch(el, n.Selector)
		if !ok {
			return n.Default, nil
		}
		html, err := target.Html()
		if err != nil {
			return nil, fmt.Errorf("reading inner HTML: %w", err)
		}
		return html, nil

	case KindExists:
		if n.Selector == "" {
			return true, nil
		}
		return el.Find(n.Selector).Length() > 0, nil

	case KindCount:
		if n.Selector == "" {
			return 1, nil
		}
		return el.Find(n.Selector).Length(), nil

	case KindArray:
		matches := el.Find(n.Selector)
		results := make([]interface{}, 0, matches.Length())
		var resolveErr error
		matches.EachWithBreak(func(_ int, child *goquery.Selection) bool {
			value, err := resolveSnapshot(ctx, n.Child, child)
			if err != nil {
				resolveErr = err
				return false
			}
			results = append(results, value)
			return true
		})
		if resolveErr != nil {
			return nil, resolveErr
		}
		return results, nil

	case KindObject:
		rec := NewRecord(len(n.Fields))
		for _, f := range n.Fields {
			value, err := resolveSnapshot(ctx, f.Node, el)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Name, err)
			}
			rec.Set(f.Name, value)
		}
		return rec, nil

	case KindCustom:
		return n.Fn(ctx, el)

	default:
		return nil, fmt.Errorf("unknown node kind %q", n.Kind)
	}
}

// firstMatch returns the first descendant matching selector, or the current
// element itself when selector is empty. ok is false when nothing matches.
func firstMatch(el *goquery.Selection, selector string) (*goquery.Selection, bool) {
	if selector == "" {
		return el, el.Length() > 0
	}
	match := el.Find(selector).First()
	return match, match.Length() > 0
}
