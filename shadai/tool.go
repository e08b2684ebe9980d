// Copyright (c) Microsoft. All rights reserved.

package shadai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"regexp"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ToolDefinition is the declarative description of a tool sent to the
// remote planner and synthesizer.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`

	// DefaultArguments are merged under the planner-inferred arguments
	// before invocation. They stay on the client.
	DefaultArguments map[string]any `json:"-"`
}

// Tool is a locally executed capability the remote planner may select.
type Tool interface {
	// Name returns the identifier the planner refers to the tool by.
	Name() string

	// Description tells the planner what the tool is for.
	Description() string

	// Parameters returns the JSON Schema describing the tool's input.
	Parameters() json.RawMessage

	// DefaultArguments returns the arguments used when the planner does not
	// supply a value. The returned map must not be modified.
	DefaultArguments() map[string]any

	// Invoke starts the tool with the given JSON arguments.
	Invoke(ctx context.Context, args json.RawMessage) *Task
}

// DefinitionOf returns the wire definition of t.
func DefinitionOf(t Tool) ToolDefinition {
	return ToolDefinition{
		Name:             t.Name(),
		Description:      t.Description(),
		Parameters:       t.Parameters(),
		DefaultArguments: t.DefaultArguments(),
	}
}

// FunctionTool is a concrete [Tool] backed by a Go function.
type FunctionTool struct {
	name        string
	description string
	parameters  json.RawMessage
	defaults    map[string]any
	doc         string
	schema      *jsonschema.Schema
	fn          func(ctx context.Context, args json.RawMessage) *Task
}

// ToolOption configures a [FunctionTool].
type ToolOption func(*FunctionTool)

// WithDefaults sets default arguments. For typed tools they take precedence
// over defaults declared in struct tags.
func WithDefaults(args map[string]any) ToolOption {
	return func(t *FunctionTool) {
		if t.defaults == nil {
			t.defaults = make(map[string]any, len(args))
		}
		maps.Copy(t.defaults, args)
	}
}

// WithDoc attaches a documentation block (see [ParseDoc]). Typed tools take
// their parameter descriptions from it, and any tool with an empty
// description uses its summary.
func WithDoc(doc string) ToolOption {
	return func(t *FunctionTool) { t.doc = doc }
}

var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// NewTool creates a [FunctionTool] from an explicit JSON Schema and a handler
// that returns immediately. A nil schema declares a tool without parameters.
// Malformed names or schemas are rejected with [ErrInvalidToolDefinition].
func NewTool(name, description string, parameters json.RawMessage, fn func(ctx context.Context, args json.RawMessage) (any, error), opts ...ToolOption) (*FunctionTool, error) {
	return NewAsyncTool(name, description, parameters, syncHandler(fn), opts...)
}

// NewAsyncTool is like [NewTool] for handlers that complete in the background
// and hand back a [Task].
func NewAsyncTool(name, description string, parameters json.RawMessage, fn func(ctx context.Context, args json.RawMessage) *Task, opts ...ToolOption) (*FunctionTool, error) {
	t := &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
	for _, opt := range opts {
		opt(t)
	}
	if len(t.parameters) == 0 {
		t.parameters = emptySchema
	}
	if err := t.finish(); err != nil {
		return nil, err
	}
	return t, nil
}

// NewTypedTool creates a [FunctionTool] whose JSON Schema is inferred from the
// Args struct (see [InferSchema]) and whose handler receives decoded
// arguments:
//
//	type SearchArgs struct {
//	    Query string `json:"query"`
//	    Limit int    `json:"limit" jsonschema:"default=10"`
//	}
//
//	tool, err := shadai.NewTypedTool("search_db", "Search the database.",
//	    func(ctx context.Context, args SearchArgs) (any, error) { ... },
//	    shadai.WithDoc("Args:\n    query: Search text\n    limit: Max rows"),
//	)
//
// Fields whose type has no schema mapping are rejected with
// [ErrUnresolvableParameterType].
func NewTypedTool[Args any](name, description string, fn func(ctx context.Context, args Args) (any, error), opts ...ToolOption) (*FunctionTool, error) {
	return NewTypedAsyncTool(name, description, func(ctx context.Context, args Args) *Task {
		return RunTask(ctx, func(ctx context.Context) (any, error) { return fn(ctx, args) })
	}, opts...)
}

// NewTypedAsyncTool is like [NewTypedTool] for handlers that return a [Task].
func NewTypedAsyncTool[Args any](name, description string, fn func(ctx context.Context, args Args) *Task, opts ...ToolOption) (*FunctionTool, error) {
	wrapped := func(ctx context.Context, raw json.RawMessage) *Task {
		var args Args
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return CompletedTask(nil, &ToolError{
					ToolName: name,
					Message:  "invalid arguments: " + err.Error(),
					Err:      ErrToolExecution,
				})
			}
		}
		return fn(ctx, args)
	}

	t := &FunctionTool{name: name, description: description, fn: wrapped}
	for _, opt := range opts {
		opt(t)
	}

	doc := ParseDoc(t.doc)
	schema, tagDefaults, err := InferSchema(reflect.TypeOf((*Args)(nil)).Elem(), doc)
	if err != nil {
		return nil, &ToolError{ToolName: name, Message: err.Error(), Err: err}
	}
	params, err := json.Marshal(schema)
	if err != nil {
		return nil, &ToolError{ToolName: name, Message: "encode schema: " + err.Error(), Err: ErrInvalidToolDefinition}
	}
	t.parameters = params

	if len(tagDefaults) > 0 {
		merged := tagDefaults
		maps.Copy(merged, t.defaults)
		t.defaults = merged
	}

	if err := t.finish(); err != nil {
		return nil, err
	}
	return t, nil
}

// MustTool panics if err is non-nil. It is meant for package-level tool
// declarations.
func MustTool(t *FunctionTool, err error) *FunctionTool {
	if err != nil {
		panic(err)
	}
	return t
}

// finish validates the definition and fills the description from the doc summary.
func (t *FunctionTool) finish() error {
	if !toolNamePattern.MatchString(t.name) {
		return &ToolError{
			ToolName: t.name,
			Message:  "name must be 1-64 letters, digits, '_' or '-'",
			Err:      ErrInvalidToolDefinition,
		}
	}
	if t.fn == nil {
		return &ToolError{ToolName: t.name, Message: "no implementation", Err: ErrInvalidToolDefinition}
	}
	if t.description == "" && t.doc != "" {
		t.description = ParseDoc(t.doc).Summary
	}
	compiled, err := ValidateSchema(t.parameters)
	if err != nil {
		return &ToolError{ToolName: t.name, Message: err.Error(), Err: err}
	}
	t.schema = compiled
	return nil
}

func (t *FunctionTool) Name() string                     { return t.name }
func (t *FunctionTool) Description() string              { return t.description }
func (t *FunctionTool) Parameters() json.RawMessage      { return t.parameters }
func (t *FunctionTool) DefaultArguments() map[string]any { return t.defaults }

// Definition returns the tool's wire definition.
func (t *FunctionTool) Definition() ToolDefinition { return DefinitionOf(t) }

// Invoke starts the tool's backing function.
func (t *FunctionTool) Invoke(ctx context.Context, args json.RawMessage) *Task {
	task := t.fn(ctx, args)
	if task == nil {
		return CompletedTask(nil, &ToolError{ToolName: t.name, Message: "handler returned no task", Err: ErrToolExecution})
	}
	return task
}

// ValidateArguments checks args against the tool's parameter schema.
func (t *FunctionTool) ValidateArguments(args map[string]any) error {
	if t.schema == nil {
		return nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return &ToolError{ToolName: t.name, Message: "encode arguments: " + err.Error(), Err: ErrToolExecution}
	}
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return &ToolError{ToolName: t.name, Message: "decode arguments: " + err.Error(), Err: ErrToolExecution}
	}
	if err := t.schema.Validate(v); err != nil {
		return &ToolError{ToolName: t.name, Message: fmt.Sprintf("arguments do not match schema: %v", err), Err: ErrToolExecution}
	}
	return nil
}

func syncHandler(fn func(ctx context.Context, args json.RawMessage) (any, error)) func(ctx context.Context, args json.RawMessage) *Task {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context, args json.RawMessage) *Task {
		return RunTask(ctx, func(ctx context.Context) (any, error) { return fn(ctx, args) })
	}
}
