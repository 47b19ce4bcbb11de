package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// FieldKind tags the shape of a schema field.
type FieldKind string

const (
	KindString  FieldKind = "string"
	KindNumber  FieldKind = "number"
	KindBoolean FieldKind = "boolean"
	KindObject  FieldKind = "object"
	KindArray   FieldKind = "array"
)

// Field describes one node of a report schema.
// Object fields list their properties in declaration order; array fields
// describe their element in Items.
type Field struct {
	Name        string
	Kind        FieldKind
	Description string
	Fields      []Field
	Items       *Field
	Required    bool
}

// Schema is the target structure a report must conform to.
// Each top-level field is one report section.
type Schema struct {
	Title    string
	Sections []Field
}

// SectionNames returns the section names in declaration order.
func (s *Schema) SectionNames() []string {
	names := make([]string, len(s.Sections))
	for i, f := range s.Sections {
		names[i] = f.Name
	}
	return names
}

// Section looks up a section field by name.
func (s *Schema) Section(name string) (Field, bool) {
	for _, f := range s.Sections {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Project returns a copy of r restricted to the schema's sections.
// Unknown keys are dropped and reported.
func (s *Schema) Project(r Report) (Report, []string) {
	out := make(Report, len(r))
	var dropped []string
	for k, v := range r {
		if _, ok := s.Section(k); ok {
			out[k] = v
			continue
		}
		dropped = append(dropped, k)
	}
	slices.Sort(dropped)
	return out, dropped
}

// Validate checks a complete report against the schema.
// Every key must name a section, required sections must be present and
// every value must match its field's shape.
func (s *Schema) Validate(r Report) error {
	if r == nil {
		return fmt.Errorf("%w: report is empty", ErrMalformedReport)
	}
	for key := range r {
		if _, ok := s.Section(key); !ok {
			return fmt.Errorf("%w: %w: %q", ErrMalformedReport, ErrUnknownSection, key)
		}
	}
	for _, f := range s.Sections {
		raw, ok := r[f.Name]
		if !ok || isNull(raw) {
			if f.Required {
				return fmt.Errorf("%w: missing section %q", ErrMalformedReport, f.Name)
			}
			continue
		}
		if err := f.ValidateValue(raw); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedReport, err)
		}
	}
	return nil
}

// ValidateValue checks that raw JSON matches the field's shape.
func (f Field) ValidateValue(raw json.RawMessage) error {
	return f.validate(f.Name, raw)
}

func (f Field) validate(path string, raw json.RawMessage) error {
	switch f.Kind {
	case KindString:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("%s: expected string", path)
		}
	case KindNumber:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("%s: expected number", path)
		}
	case KindBoolean:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("%s: expected boolean", path)
		}
	case KindObject:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
			return fmt.Errorf("%s: expected object", path)
		}
		for _, child := range f.Fields {
			v, ok := obj[child.Name]
			if !ok || isNull(v) {
				if child.Required {
					return fmt.Errorf("%s.%s: required", path, child.Name)
				}
				continue
			}
			if err := child.validate(path+"."+child.Name, v); err != nil {
				return err
			}
		}
	case KindArray:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil || items == nil {
			return fmt.Errorf("%s: expected array", path)
		}
		if f.Items == nil {
			return nil
		}
		for i, item := range items {
			if err := f.Items.validate(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%s: unsupported field kind %q", path, f.Kind)
	}
	return nil
}

// JSONSchema renders the schema as a JSON Schema object suitable for
// structured-output instructions and tool parameters.
func (s *Schema) JSONSchema() map[string]any {
	root := Field{Kind: KindObject, Fields: s.Sections, Description: s.Title}
	out := root.JSONSchema()
	if s.Title != "" {
		out["title"] = s.Title
	}
	return out
}

// JSONSchema renders a single field as JSON Schema.
func (f Field) JSONSchema() map[string]any {
	out := map[string]any{"type": string(f.Kind)}
	if f.Description != "" {
		out["description"] = f.Description
	}
	switch f.Kind {
	case KindObject:
		props := make(map[string]any, len(f.Fields))
		required := make([]string, 0, len(f.Fields))
		for _, child := range f.Fields {
			props[child.Name] = child.JSONSchema()
			if child.Required {
				required = append(required, child.Name)
			}
		}
		out["properties"] = props
		out["required"] = required
		out["additionalProperties"] = false
	case KindArray:
		if f.Items != nil {
			out["items"] = f.Items.JSONSchema()
		}
	}
	return out
}

// SectionText renders a section value as plain text. String sections are
// unquoted; structured sections are returned as compact JSON.
func SectionText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// SectionValue converts text produced for this field back into a section
// value and validates it.
func (f Field) SectionValue(text string) (json.RawMessage, error) {
	if f.Kind == KindString {
		raw, err := json.Marshal(strings.TrimSpace(text))
		if err != nil {
			return nil, err
		}
		return raw, nil
	}
	raw := json.RawMessage(strings.TrimSpace(text))
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: %s: content is not valid JSON", ErrMalformedReport, f.Name)
	}
	if err := f.ValidateValue(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedReport, err)
	}
	return raw, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

// ParseTemplate parses a JSON or YAML report template into a Schema.
//
// Templates follow the JSON Schema object subset:
//
//	{"type": "object",
//	 "properties": {"Reason": {"type": "string", "description": "..."}},
//	 "required": ["Reason"]}
//
// Property order is preserved. The template is only ever interpreted as data.
func ParseTemplate(data []byte) (*Schema, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil, fmt.Errorf("%w: empty template", ErrInvalidTemplate)
		}
		root = root.Content[0]
	}

	field, err := parseField("", root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	if field.Kind != KindObject || len(field.Fields) == 0 {
		return nil, fmt.Errorf("%w: template must be an object with properties", ErrInvalidTemplate)
	}

	return &Schema{Title: field.Description, Sections: field.Fields}, nil
}

func parseField(name string, node *yaml.Node) (Field, error) {
	if node.Kind != yaml.MappingNode {
		return Field{}, fmt.Errorf("field %q: expected mapping", name)
	}

	f := Field{Name: name}
	var (
		required   []string
		properties *yaml.Node
		items      *yaml.Node
		kind       string
		title      string
	)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		switch key {
		case "type":
			kind = val.Value
		case "description":
			f.Description = val.Value
		case "title":
			title = val.Value
		case "properties":
			properties = val
		case "items":
			items = val
		case "required":
			if val.Kind != yaml.SequenceNode {
				return Field{}, fmt.Errorf("field %q: required must be a list", name)
			}
			for _, r := range val.Content {
				required = append(required, r.Value)
			}
		}
	}
	if f.Description == "" {
		f.Description = title
	}

	switch {
	case kind != "":
		f.Kind = FieldKind(kind)
	case properties != nil:
		f.Kind = KindObject
	case items != nil:
		f.Kind = KindArray
	default:
		f.Kind = KindString
	}
	if f.Kind == "integer" {
		f.Kind = KindNumber
	}

	switch f.Kind {
	case KindObject:
		if properties != nil {
			if properties.Kind != yaml.MappingNode {
				return Field{}, fmt.Errorf("field %q: properties must be a mapping", name)
			}
			for i := 0; i+1 < len(properties.Content); i += 2 {
				child, err := parseField(properties.Content[i].Value, properties.Content[i+1])
				if err != nil {
					return Field{}, err
				}
				child.Required = slices.Contains(required, child.Name)
				f.Fields = append(f.Fields, child)
			}
		}
	case KindArray:
		if items != nil {
			elem, err := parseField(name+"[]", items)
			if err != nil {
				return Field{}, err
			}
			elem.Name = ""
			f.Items = &elem
		}
	case KindString, KindNumber, KindBoolean:
	default:
		return Field{}, fmt.Errorf("field %q: unsupported type %q", name, kind)
	}
	return f, nil
}
