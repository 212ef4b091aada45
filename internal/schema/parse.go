package schema

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// NodeSpec is the declarative form of an extraction node, loadable from YAML
// configuration files or JSON API requests. Custom nodes have no declarative
// form; host callbacks are attachable only through the Go API.
type NodeSpec struct {
	Type      string      `yaml:"type" json:"type"`
	Selector  string      `yaml:"selector,omitempty" json:"selector,omitempty"`
	Attribute string      `yaml:"attribute,omitempty" json:"attribute,omitempty"`
	Default   interface{} `yaml:"default,omitempty" json:"default,omitempty"`
	Trim      *bool       `yaml:"trim,omitempty" json:"trim,omitempty"`
	Item      *NodeSpec   `yaml:"item,omitempty" json:"item,omitempty"`
	Fields    []FieldSpec `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// FieldSpec is one named entry of a declarative object node.
type FieldSpec struct {
	Name     string `yaml:"name" json:"name"`
	NodeSpec `yaml:",inline"`
}

// ParseYAML builds an extraction tree from a YAML document.
func ParseYAML(data []byte) (*Node, error) {
	var spec NodeSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing schema YAML: %w", err)
	}
	return spec.Build()
}

// ParseJSON builds an extraction tree from a JSON document.
func ParseJSON(data []byte) (*Node, error) {
	var spec NodeSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing schema JSON: %w", err)
	}
	return spec.Build()
}

// Build converts the declarative spec into an immutable node tree.
func (s *NodeSpec) Build() (*Node, error) {
	var opts []LeafOption
	if s.Default != nil {
		opts = append(opts, Default(s.Default))
	}
	if s.Trim != nil && !*s.Trim {
		opts = append(opts, NoTrim())
	}

	switch s.Type {
	case "text":
		return Text(s.Selector, opts...), nil
	case "attr":
		if s.Attribute == "" {
			return nil, fmt.Errorf("attr node requires an attribute name")
		}
		return Attr(s.Selector, s.Attribute, opts...), nil
	case "html":
		return HTML(s.Selector, opts...), nil
	case "exists":
		return Exists(s.Selector), nil
	case "count":
		return Count(s.Selector), nil
	case "array":
		if s.Item == nil {
			return nil, fmt.Errorf("array node requires an item spec")
		}
		child, err := s.Item.Build()
		if err != nil {
			return nil, fmt.Errorf("array item: %w", err)
		}
		return Array(s.Selector, child), nil
	case "object":
		if len(s.Fields) == 0 {
			return nil, fmt.Errorf("object node requires fields")
		}
		fields := make([]Field, 0, len(s.Fields))
		for i := range s.Fields {
			f := &s.Fields[i]
			if f.Name == "" {
				return nil, fmt.Errorf("object field %d has no name", i)
			}
			child, err := f.NodeSpec.Build()
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Name, err)
			}
			fields = append(fields, Field{Name: f.Name, Node: child})
		}
		return Object(fields...), nil
	case "":
		return nil, fmt.Errorf("schema node is missing a type")
	default:
		return nil, fmt.Errorf("unknown schema node type %q", s.Type)
	}
}
