// Copyright (c) Microsoft. All rights reserved.

package shadai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var (
	rawMessageType = reflect.TypeOf(json.RawMessage(nil))
	timeType       = reflect.TypeOf(time.Time{})
)

// InferSchema builds an object schema for the struct type t from its struct
// tags, filling in descriptions from doc where a field has none. It also
// returns the defaults declared with the `default=` tag option.
//
// Field names come from the json tag, and embedded structs without a json
// name contribute their fields to the parent as encoding/json promotes them.
// The jsonschema tag accepts description=TEXT, required, enum=A|B|C and
// default=VALUE. A field is optional when it declares a default, is tagged
// omitempty, or is a pointer, unless it is explicitly tagged required; every
// other field is required. Recursive types are emitted once under $defs and
// referenced with $ref.
func InferSchema(t reflect.Type, doc Doc) (map[string]any, map[string]any, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, nil, fmt.Errorf("%w: argument type %s is not a struct", ErrInvalidToolDefinition, t)
	}
	defaults := make(map[string]any)
	b := newSchemaBuilder(t)
	schema, err := b.structSchema(t, "", doc, defaults)
	if err != nil {
		return nil, nil, err
	}
	if len(b.defs) > 0 {
		schema["$defs"] = b.defs
	}
	return schema, defaults, nil
}

// GenerateSchema builds the JSON Schema of T. It is a convenience wrapper
// around [InferSchema] without documentation.
func GenerateSchema[T any]() (json.RawMessage, error) {
	schema, _, err := InferSchema(reflect.TypeOf((*T)(nil)).Elem(), Doc{})
	if err != nil {
		return nil, err
	}
	return json.Marshal(schema)
}

// schemaBuilder tracks the struct types on the current walk so that a type
// reached again through itself becomes a reference instead of recursing.
type schemaBuilder struct {
	root      reflect.Type
	visiting  map[reflect.Type]bool
	recursive map[reflect.Type]bool
	names     map[reflect.Type]string
	taken     map[string]bool
	defs      map[string]any
}

func newSchemaBuilder(root reflect.Type) *schemaBuilder {
	return &schemaBuilder{
		root:      root,
		visiting:  make(map[reflect.Type]bool),
		recursive: make(map[reflect.Type]bool),
		names:     make(map[reflect.Type]string),
		taken:     make(map[string]bool),
		defs:      make(map[string]any),
	}
}

func (b *schemaBuilder) ref(t reflect.Type) map[string]any {
	if t == b.root {
		return map[string]any{"$ref": "#"}
	}
	name, ok := b.names[t]
	if !ok {
		base := t.Name()
		if base == "" {
			base = "anon"
		}
		name = base
		for i := 2; b.taken[name]; i++ {
			name = base + strconv.Itoa(i)
		}
		b.taken[name] = true
		b.names[t] = name
	}
	return map[string]any{"$ref": "#/$defs/" + name}
}

func (b *schemaBuilder) typeSchema(t reflect.Type, path string) (map[string]any, error) {
	if t == rawMessageType {
		return map[string]any{}, nil
	}
	if t == timeType {
		return map[string]any{"type": "string", "format": "date-time"}, nil
	}
	switch t.Kind() {
	case reflect.String:
		return map[string]any{"type": "string"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}, nil
	case reflect.Bool:
		return map[string]any{"type": "boolean"}, nil
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			// encoding/json writes byte slices as base64 strings
			return map[string]any{"type": "string", "contentEncoding": "base64"}, nil
		}
		items, err := b.typeSchema(t.Elem(), path+"[]")
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "array", "items": items}, nil
	case reflect.Ptr:
		return b.typeSchema(t.Elem(), path)
	case reflect.Struct:
		if b.visiting[t] {
			b.recursive[t] = true
			return b.ref(t), nil
		}
		s, err := b.structSchema(t, path, Doc{}, nil)
		if err != nil {
			return nil, err
		}
		if b.recursive[t] {
			r := b.ref(t)
			b.defs[b.names[t]] = s
			return r, nil
		}
		return s, nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: parameter %q: map key type %s", ErrUnresolvableParameterType, path, t.Key())
		}
		values, err := b.typeSchema(t.Elem(), path+"{}")
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "object", "additionalProperties": values}, nil
	}
	return nil, fmt.Errorf("%w: parameter %q: type %s", ErrUnresolvableParameterType, path, t)
}

// structField is one field as encoding/json sees it after promotion.
type structField struct {
	field     reflect.StructField
	name      string
	omitempty bool
	tagged    bool
	depth     int
}

// jsonFields lists the fields encoding/json decodes into t. Fields of
// embedded structs without a json name are promoted; on a name clash the
// shallowest field wins, then a json-tagged one, and otherwise the name is
// dropped.
func jsonFields(t reflect.Type) []structField {
	var all []structField
	var walk func(t reflect.Type, depth int, seen map[reflect.Type]bool)
	walk = func(t reflect.Type, depth int, seen map[reflect.Type]bool) {
		if seen[t] {
			return
		}
		seen[t] = true
		defer delete(seen, t)

		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			ft := field.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if field.Anonymous {
				if !field.IsExported() && ft.Kind() != reflect.Struct {
					continue
				}
			} else if !field.IsExported() {
				continue
			}

			jsonTag := field.Tag.Get("json")
			if jsonTag == "-" {
				continue
			}
			parts := strings.Split(jsonTag, ",")
			tagName := parts[0]
			if field.Anonymous && tagName == "" && ft.Kind() == reflect.Struct {
				walk(ft, depth+1, seen)
				continue
			}

			sf := structField{field: field, name: field.Name, tagged: tagName != "", depth: depth}
			if tagName != "" {
				sf.name = tagName
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" || opt == "omitzero" {
					sf.omitempty = true
				}
			}
			all = append(all, sf)
		}
	}
	walk(t, 0, map[reflect.Type]bool{})

	byName := make(map[string][]int)
	for i, f := range all {
		byName[f.name] = append(byName[f.name], i)
	}
	keep := make([]bool, len(all))
	for _, idxs := range byName {
		if winner, ok := dominantField(all, idxs); ok {
			keep[winner] = true
		}
	}
	out := make([]structField, 0, len(all))
	for i, f := range all {
		if keep[i] {
			out = append(out, f)
		}
	}
	return out
}

func dominantField(all []structField, idxs []int) (int, bool) {
	if len(idxs) == 1 {
		return idxs[0], true
	}
	minDepth := all[idxs[0]].depth
	for _, i := range idxs[1:] {
		minDepth = min(minDepth, all[i].depth)
	}
	var shallow []int
	for _, i := range idxs {
		if all[i].depth == minDepth {
			shallow = append(shallow, i)
		}
	}
	if len(shallow) == 1 {
		return shallow[0], true
	}
	var tagged []int
	for _, i := range shallow {
		if all[i].tagged {
			tagged = append(tagged, i)
		}
	}
	if len(tagged) == 1 {
		return tagged[0], true
	}
	return 0, false
}

// structSchema walks the json fields of t. defaults is nil for nested
// structs, whose defaults are not lifted to the tool level.
func (b *schemaBuilder) structSchema(t reflect.Type, path string, doc Doc, defaults map[string]any) (map[string]any, error) {
	b.visiting[t] = true
	defer delete(b.visiting, t)

	properties := make(map[string]any)
	required := []string{}

	for _, sf := range jsonFields(t) {
		field, name := sf.field, sf.name
		fieldPath := name
		if path != "" {
			fieldPath = path + "." + name
		}

		prop, err := b.typeSchema(field.Type, fieldPath)
		if err != nil {
			return nil, err
		}

		tag := parseSchemaTag(field.Tag.Get("jsonschema"))
		if tag.description != "" {
			prop["description"] = tag.description
		} else {
			prop["description"] = doc.Param(name, field.Name)
		}
		if len(tag.enum) > 0 {
			vals := make([]any, len(tag.enum))
			for j, ev := range tag.enum {
				vals[j] = ev
			}
			prop["enum"] = vals
		}
		if tag.hasDefault {
			val, err := parseDefault(field.Type, tag.defaultValue)
			if err != nil {
				return nil, fmt.Errorf("%w: parameter %q: default %q: %v", ErrInvalidToolDefinition, fieldPath, tag.defaultValue, err)
			}
			prop["default"] = val
			if defaults != nil {
				defaults[name] = val
			}
		}

		optional := tag.hasDefault || sf.omitempty || field.Type.Kind() == reflect.Ptr
		if tag.required || !optional {
			required = append(required, name)
		}
		properties[name] = prop
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}, nil
}

type schemaTag struct {
	description  string
	required     bool
	enum         []string
	defaultValue string
	hasDefault   bool
}

func parseSchemaTag(tag string) schemaTag {
	var st schemaTag
	if tag == "" {
		return st
	}
	for _, part := range strings.Split(tag, ",") {
		kv := strings.SplitN(part, "=", 2)
		key := strings.TrimSpace(kv[0])
		val := ""
		if len(kv) == 2 {
			val = strings.TrimSpace(kv[1])
		}
		switch key {
		case "description":
			st.description = val
		case "required":
			st.required = true
		case "enum":
			for _, ev := range strings.Split(val, "|") {
				st.enum = append(st.enum, strings.TrimSpace(ev))
			}
		case "default":
			st.defaultValue = val
			st.hasDefault = true
		}
	}
	return st
}

func parseDefault(t reflect.Type, s string) (any, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return s, nil
	case reflect.Bool:
		return strconv.ParseBool(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.ParseInt(s, 10, 64)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.ParseUint(s, 10, 64)
	case reflect.Float32, reflect.Float64:
		return strconv.ParseFloat(s, 64)
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// ValidateSchema checks that schema is an object schema with a properties
// mapping and a required list naming only declared properties, and that it
// compiles as JSON Schema. It returns the compiled schema.
func ValidateSchema(schema json.RawMessage) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		return nil, fmt.Errorf("%w: schema is not valid JSON: %v", ErrInvalidToolDefinition, err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: schema must be an object", ErrInvalidToolDefinition)
	}
	if obj["type"] != "object" {
		return nil, fmt.Errorf("%w: schema type must be \"object\", got %v", ErrInvalidToolDefinition, obj["type"])
	}
	props, ok := obj["properties"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: schema has no properties mapping", ErrInvalidToolDefinition)
	}
	if req, present := obj["required"]; present {
		list, ok := req.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: schema required must be a list", ErrInvalidToolDefinition)
		}
		for _, r := range list {
			name, ok := r.(string)
			if !ok {
				return nil, fmt.Errorf("%w: schema required entry %v is not a string", ErrInvalidToolDefinition, r)
			}
			if _, ok := props[name]; !ok {
				return nil, fmt.Errorf("%w: required parameter %q is not a declared property", ErrInvalidToolDefinition, name)
			}
		}
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("tool.json", doc); err != nil {
		return nil, fmt.Errorf("%w: add schema resource: %v", ErrInvalidToolDefinition, err)
	}
	compiled, err := c.Compile("tool.json")
	if err != nil {
		return nil, fmt.Errorf("%w: compile schema: %v", ErrInvalidToolDefinition, err)
	}
	return compiled, nil
}

// emptySchema is used for explicit tools declared without parameters.
var emptySchema = json.RawMessage(`{"type":"object","properties":{},"required":[]}`)
