package rulespec

import (
	"fmt"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Spec carries a rule specification decoded from a YAML or JSON document.
// Unlike a plain map[string]any, the object form keeps document order because
// decoding goes through yaml.Node.
type Spec struct {
	rules []Rule
}

// NewSpec parses any supported form into a Spec.
func NewSpec(raw any) (Spec, error) {
	rules, err := Parse(raw)
	if err != nil {
		return Spec{}, err
	}
	return Spec{rules: rules}, nil
}

// Rules returns a copy of the normalised rules.
func (s Spec) Rules() []Rule {
	if len(s.rules) == 0 {
		return nil
	}
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Empty reports whether the spec declares no rules.
func (s Spec) Empty() bool { return len(s.rules) == 0 }

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	rules, err := rulesFromNode(node)
	if err != nil {
		return err
	}
	s.rules = rules
	return nil
}

// UnmarshalJSON decodes JSON through the YAML parser so object order survives.
func (s *Spec) UnmarshalJSON(data []byte) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("rulespec: decode json: %w", err)
	}
	node := &doc
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		node = doc.Content[0]
	}
	return s.UnmarshalYAML(node)
}

// MarshalYAML renders the spec as a list of rule strings.
func (s Spec) MarshalYAML() (any, error) {
	return s.strings(), nil
}

// MarshalJSON renders the spec as a list of rule strings.
func (s Spec) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.strings())
}

func (s Spec) strings() []string {
	out := make([]string, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r.String())
	}
	return out
}

func rulesFromNode(node *yaml.Node) ([]Rule, error) {
	if node == nil {
		return nil, nil
	}
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, nil
		}
		return rulesFromNode(node.Content[0])
	case yaml.AliasNode:
		return rulesFromNode(node.Alias)
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil, nil
		}
		return ParseString(node.Value)
	case yaml.SequenceNode:
		out := make([]Rule, 0, len(node.Content))
		for _, item := range node.Content {
			switch item.Kind {
			case yaml.ScalarNode:
				rule, ok, err := parseRule(item.Value)
				if err != nil {
					return nil, err
				}
				if ok {
					out = append(out, rule)
				}
			case yaml.MappingNode:
				nested, err := rulesFromMapping(item)
				if err != nil {
					return nil, err
				}
				out = append(out, nested...)
			default:
				return nil, fmt.Errorf("%w: unexpected list entry at line %d", ErrUnsupportedSpec, item.Line)
			}
		}
		return dedupe(out), nil
	case yaml.MappingNode:
		return rulesFromMapping(node)
	default:
		return nil, fmt.Errorf("%w: yaml node kind %d", ErrUnsupportedSpec, node.Kind)
	}
}

func rulesFromMapping(node *yaml.Node) ([]Rule, error) {
	out := make([]Rule, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var value any
		if err := node.Content[i+1].Decode(&value); err != nil {
			return nil, fmt.Errorf("rulespec: decode %q params: %w", node.Content[i].Value, err)
		}
		rule, ok, err := ruleFromEntry(node.Content[i].Value, value)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rule)
		}
	}
	return dedupe(out), nil
}
