// internal/schema/parse_test.go
package schema

import (
	"testing"
)

func TestParseYAML(t *testing.T) {
	doc := []byte(`
type: object
fields:
  - name: title
    type: text
    selector: h1
  - name: link
    type: attr
    selector: a
    attribute: href
    default: none
  - name: tags
    type: array
    selector: .tag
    item:
      type: text
  - name: raw
    type: text
    selector: pre
    trim: false
`)
	node, err := ParseYAML(doc)
	if err != nil {
		t.Fatalf("ParseYAML failed: %v", err)
	}
	if node.Kind != KindObject {
		t.Fatalf("kind = %s, want object", node.Kind)
	}
	if !node.Pure() {
		t.Error("declarative schemas are always pure")
	}

	wantFields := []string{"title", "link", "tags", "raw"}
	if len(node.Fields) != len(wantFields) {
		t.Fatalf("got %d fields, want %d", len(node.Fields), len(wantFields))
	}
	for i, name := range wantFields {
		if node.Fields[i].Name != name {
			t.Errorf("field[%d] = %q, want %q (declaration order)", i, node.Fields[i].Name, name)
		}
	}

	link := node.Fields[1].Node
	if link.Kind != KindAttr || link.Attribute != "href" || link.Default != "none" {
		t.Errorf("link node = %+v, want attr href with default", link)
	}
	tags := node.Fields[2].Node
	if tags.Kind != KindArray || tags.Child == nil || tags.Child.Kind != KindText {
		t.Errorf("tags node = %+v, want array of text", tags)
	}
	raw := node.Fields[3].Node
	if raw.Trim {
		t.Error("trim: false not honored")
	}
}

func TestParseJSON(t *testing.T) {
	doc := []byte(`{
		"type": "object",
		"fields": [
			{"name": "headline", "type": "text", "selector": "h2"},
			{"name": "present", "type": "exists", "selector": ".badge"},
			{"name": "links", "type": "count", "selector": "a"}
		]
	}`)
	node, err := ParseJSON(doc)
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}
	if len(node.Fields) != 3 {
		t.Fatalf("got %d fields, want 3", len(node.Fields))
	}
	if node.Fields[1].Node.Kind != KindExists || node.Fields[2].Node.Kind != KindCount {
		t.Errorf("field kinds = %s, %s; want exists, count",
			node.Fields[1].Node.Kind, node.Fields[2].Node.Kind)
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		spec NodeSpec
	}{
		{"missing type", NodeSpec{Selector: "h1"}},
		{"unknown type", NodeSpec{Type: "regex", Selector: "h1"}},
		{"attr without attribute", NodeSpec{Type: "attr", Selector: "a"}},
		{"array without item", NodeSpec{Type: "array", Selector: "li"}},
		{"object without fields", NodeSpec{Type: "object"}},
		{"field without name", NodeSpec{Type: "object", Fields: []FieldSpec{
			{NodeSpec: NodeSpec{Type: "text", Selector: "h1"}},
		}}},
		{"invalid nested item", NodeSpec{Type: "array", Selector: "li", Item: &NodeSpec{Type: "attr"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.spec.Build(); err == nil {
				t.Error("expected build error")
			}
		})
	}
}

func TestParseYAMLInvalid(t *testing.T) {
	if _, err := ParseYAML([]byte("type: [broken")); err == nil {
		t.Error("expected YAML parse error")
	}
}
