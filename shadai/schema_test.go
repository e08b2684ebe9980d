// Copyright (c) Microsoft. All rights reserved.

package shadai_test

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadai-group/shadai/shadai"
)

func TestGenerateSchema_TypeMapping(t *testing.T) {
	type nested struct {
		Street string `json:"street"`
	}
	type all struct {
		S     string            `json:"s"`
		I     int64             `json:"i"`
		U     uint8             `json:"u"`
		F     float32           `json:"f"`
		B     bool              `json:"b"`
		Bytes []byte            `json:"bytes"`
		List  []int             `json:"list"`
		Map   map[string]string `json:"map"`
		When  time.Time         `json:"when"`
		Raw   json.RawMessage   `json:"raw"`
		Addr  nested            `json:"addr"`
		Opt   *string           `json:"opt"`
		Skip  string            `json:"-"`
		lower string
	}

	raw, err := shadai.GenerateSchema[all]()
	require.NoError(t, err)

	var schema struct {
		Properties map[string]map[string]any `json:"properties"`
		Required   []string                  `json:"required"`
	}
	require.NoError(t, json.Unmarshal(raw, &schema))

	typeOf := func(name string) any { return schema.Properties[name]["type"] }
	assert.Equal(t, "string", typeOf("s"))
	assert.Equal(t, "integer", typeOf("i"))
	assert.Equal(t, "integer", typeOf("u"))
	assert.Equal(t, "number", typeOf("f"))
	assert.Equal(t, "boolean", typeOf("b"))
	assert.Equal(t, "string", typeOf("bytes"))
	assert.Equal(t, "base64", schema.Properties["bytes"]["contentEncoding"])
	assert.Equal(t, "array", typeOf("list"))
	assert.Equal(t, map[string]any{"type": "integer"}, schema.Properties["list"]["items"])
	assert.Equal(t, "object", typeOf("map"))
	assert.Equal(t, "date-time", schema.Properties["when"]["format"])
	assert.Nil(t, typeOf("raw"))
	assert.Equal(t, "object", typeOf("addr"))
	assert.Equal(t, "string", typeOf("opt"))
	assert.NotContains(t, schema.Properties, "Skip")
	assert.NotContains(t, schema.Properties, "lower")

	assert.NotContains(t, schema.Required, "opt", "pointers are optional")
	assert.Contains(t, schema.Required, "s")
}

func TestInferSchema_RequiredRules(t *testing.T) {
	type args struct {
		Plain     string  `json:"plain"`
		Omit      string  `json:"omit,omitempty"`
		Defaulted int     `json:"defaulted" jsonschema:"default=3"`
		Forced    *string `json:"forced" jsonschema:"required"`
	}
	schema, defaults, err := shadai.InferSchema(reflect.TypeOf(args{}), shadai.Doc{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"plain", "forced"}, schema["required"])
	assert.Equal(t, map[string]any{"defaulted": int64(3)}, defaults)
}

func TestInferSchema_TagDescriptionBeatsDoc(t *testing.T) {
	type args struct {
		City string `json:"city" jsonschema:"description=City name"`
		Days int    `json:"days"`
	}
	doc := shadai.ParseDoc("Forecast.\n\nArgs:\n    city: from doc\n    days: Number of days")
	schema, _, err := shadai.InferSchema(reflect.TypeOf(args{}), doc)
	require.NoError(t, err)

	props := schema["properties"].(map[string]any)
	assert.Equal(t, "City name", props["city"].(map[string]any)["description"])
	assert.Equal(t, "Number of days", props["days"].(map[string]any)["description"])
}

func TestInferSchema_Errors(t *testing.T) {
	t.Run("not a struct", func(t *testing.T) {
		_, _, err := shadai.InferSchema(reflect.TypeOf(0), shadai.Doc{})
		assert.ErrorIs(t, err, shadai.ErrInvalidToolDefinition)
	})

	t.Run("bad default", func(t *testing.T) {
		type args struct {
			N int `json:"n" jsonschema:"default=many"`
		}
		_, _, err := shadai.InferSchema(reflect.TypeOf(args{}), shadai.Doc{})
		assert.ErrorIs(t, err, shadai.ErrInvalidToolDefinition)
	})

	t.Run("non-string map key", func(t *testing.T) {
		type args struct {
			M map[int]string `json:"m"`
		}
		_, _, err := shadai.InferSchema(reflect.TypeOf(args{}), shadai.Doc{})
		assert.ErrorIs(t, err, shadai.ErrUnresolvableParameterType)
	})

	t.Run("func field", func(t *testing.T) {
		type args struct {
			Fn func() `json:"fn"`
		}
		_, _, err := shadai.InferSchema(reflect.TypeOf(args{}), shadai.Doc{})
		assert.ErrorIs(t, err, shadai.ErrUnresolvableParameterType)
	})
}

func TestValidateSchema(t *testing.T) {
	compiled, err := shadai.ValidateSchema(json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`))
	require.NoError(t, err)
	assert.NotNil(t, compiled)

	_, err = shadai.ValidateSchema(json.RawMessage(`{"type":"object","properties":{},"required":"q"}`))
	assert.ErrorIs(t, err, shadai.ErrInvalidToolDefinition)
}

type treeNode struct {
	Name     string     `json:"name"`
	Children []treeNode `json:"children,omitempty"`
}

type treeArgs struct {
	Root treeNode `json:"root"`
}

type linkedArgs struct {
	Value int         `json:"value"`
	Next  *linkedArgs `json:"next"`
}

func TestInferSchema_RecursiveTypes(t *testing.T) {
	t.Run("nested type", func(t *testing.T) {
		schema, _, err := shadai.InferSchema(reflect.TypeOf(treeArgs{}), shadai.Doc{})
		require.NoError(t, err)

		props := schema["properties"].(map[string]any)
		assert.Equal(t, "#/$defs/treeNode", props["root"].(map[string]any)["$ref"])

		defs := schema["$defs"].(map[string]any)
		node := defs["treeNode"].(map[string]any)
		children := node["properties"].(map[string]any)["children"].(map[string]any)
		assert.Equal(t, "array", children["type"])
		assert.Equal(t, map[string]any{"$ref": "#/$defs/treeNode"}, children["items"])
		assert.Equal(t, []string{"name"}, node["required"])
	})

	t.Run("root type", func(t *testing.T) {
		schema, _, err := shadai.InferSchema(reflect.TypeOf(linkedArgs{}), shadai.Doc{})
		require.NoError(t, err)

		props := schema["properties"].(map[string]any)
		assert.Equal(t, "#", props["next"].(map[string]any)["$ref"])
		assert.NotContains(t, schema, "$defs")
	})

	t.Run("typed tool", func(t *testing.T) {
		var got treeArgs
		tool, err := shadai.NewTypedTool("tree", "Walks a tree.", func(ctx context.Context, args treeArgs) (any, error) {
			got = args
			return len(args.Root.Children), nil
		})
		require.NoError(t, err)

		_, err = shadai.ValidateSchema(tool.Parameters())
		require.NoError(t, err)

		valid := map[string]any{"root": map[string]any{
			"name":     "a",
			"children": []any{map[string]any{"name": "b"}},
		}}
		require.NoError(t, tool.ValidateArguments(valid))

		invalid := map[string]any{"root": map[string]any{
			"name":     "a",
			"children": []any{map[string]any{"name": 5}},
		}}
		assert.ErrorIs(t, tool.ValidateArguments(invalid), shadai.ErrToolExecution)

		out, err := tool.Invoke(context.Background(), json.RawMessage(`{"root":{"name":"a","children":[{"name":"b"}]}}`)).Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, out)
		assert.Equal(t, "b", got.Root.Children[0].Name)
	})
}

type searchBase struct {
	Query string `json:"query"`
}

type Paging struct {
	Page     int `json:"page,omitempty"`
	PageSize int `json:"page_size" jsonschema:"default=20"`
}

type shadowed struct {
	Limit int `json:"limit"`
}

func TestInferSchema_EmbeddedFields(t *testing.T) {
	type args struct {
		searchBase
		*Paging
		shadowed
		Limit int    `json:"limit,omitempty"`
		Named Paging `json:"named"`
		Tag   string
	}

	schema, defaults, err := shadai.InferSchema(reflect.TypeOf(args{}), shadai.Doc{})
	require.NoError(t, err)

	props := schema["properties"].(map[string]any)
	assert.ElementsMatch(t, []string{"query", "page", "page_size", "limit", "named", "Tag"}, keys(props))
	assert.NotContains(t, props, "searchBase")
	assert.NotContains(t, props, "Paging")
	assert.Equal(t, "object", props["named"].(map[string]any)["type"])

	assert.ElementsMatch(t, []string{"query", "named", "Tag"}, schema["required"],
		"the outer limit is optional and hides the embedded one")
	assert.Equal(t, map[string]any{"page_size": int64(20)}, defaults)

	t.Run("matches the decoder", func(t *testing.T) {
		var got args
		tool, err := shadai.NewTypedTool("search", "Searches.", func(ctx context.Context, a args) (any, error) {
			got = a
			return nil, nil
		})
		require.NoError(t, err)

		require.NoError(t, tool.ValidateArguments(map[string]any{"query": "x", "named": map[string]any{}, "Tag": "t"}))
		_, err = tool.Invoke(context.Background(), json.RawMessage(`{"query":"x","named":{},"Tag":"t"}`)).Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "x", got.Query)
	})
}

func TestInferSchema_EmbeddedNameClash(t *testing.T) {
	type left struct {
		ID string `json:"id"`
	}
	type right struct {
		ID string `json:"id"`
	}
	type args struct {
		left
		right
		Name string `json:"name"`
	}
	schema, _, err := shadai.InferSchema(reflect.TypeOf(args{}), shadai.Doc{})
	require.NoError(t, err)

	props := schema["properties"].(map[string]any)
	assert.Equal(t, []string{"name"}, keys(props), "ambiguous promoted fields are dropped")
}
