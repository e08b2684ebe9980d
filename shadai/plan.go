// Copyright (c) Microsoft. All rights reserved.

package shadai

import (
	"encoding/json"
	"fmt"
	"time"
)

// PlannedCall is one tool selection made by the remote planner.
type PlannedCall struct {
	Name      string
	Arguments map[string]any
}

// Plan is the planner's ordered tool selection.
type Plan struct {
	Calls []PlannedCall
	// Raw is the planner's unwrapped response as received.
	Raw any
}

// parsePlan accepts {"tool_plan": [...]} or a bare list of selections. Items
// name their tool under "name", "tool_name" or "toolName"; arguments may be an
// object or a JSON-encoded object.
func parsePlan(data any) (*Plan, error) {
	plan := &Plan{Raw: data}

	var items []any
	switch v := data.(type) {
	case []any:
		items = v
	case map[string]any:
		raw, ok := v["tool_plan"]
		if !ok {
			return nil, ProtocolError("planner response has no tool_plan", rawText(nil, data))
		}
		if raw == nil {
			return plan, nil
		}
		list, ok := raw.([]any)
		if !ok {
			return nil, ProtocolError("planner tool_plan is not a list", rawText(nil, data))
		}
		items = list
	case string:
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil, ProtocolError("planner response is not valid JSON: "+err.Error(), v)
		}
		if _, isString := decoded.(string); isString {
			return nil, ProtocolError("planner response is not a plan", v)
		}
		p, err := parsePlan(decoded)
		if err != nil {
			return nil, err
		}
		p.Raw = data
		return p, nil
	default:
		return nil, ProtocolError(fmt.Sprintf("planner response has unexpected type %T", data), rawText(nil, data))
	}

	plan.Calls = make([]PlannedCall, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, ProtocolError(fmt.Sprintf("planner item %d is not an object", i), rawText(nil, data))
		}
		name := firstString(obj, "name", "tool_name", "toolName")
		if name == "" {
			return nil, ProtocolError(fmt.Sprintf("planner item %d has no tool name", i), rawText(nil, data))
		}
		args, err := planArguments(obj["arguments"])
		if err != nil {
			return nil, ProtocolError(fmt.Sprintf("planner item %d: %v", i, err), rawText(nil, data))
		}
		plan.Calls = append(plan.Calls, PlannedCall{Name: name, Arguments: args})
	}
	return plan, nil
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func planArguments(v any) (map[string]any, error) {
	switch a := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return a, nil
	case string:
		if a == "" {
			return map[string]any{}, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(a), &m); err != nil {
			return nil, fmt.Errorf("arguments are not an object: %v", err)
		}
		if m == nil {
			m = map[string]any{}
		}
		return m, nil
	}
	return nil, fmt.Errorf("arguments have unexpected type %T", v)
}

// ToolExecution records one local tool invocation. Exactly one of Output and
// ErrorMessage is meaningful, as reported by Failed.
type ToolExecution struct {
	Name           string
	Arguments      map[string]any
	Output         any
	ErrorMessage   string
	DurationMillis int64

	failed bool
}

// Failed reports whether the invocation failed.
func (e ToolExecution) Failed() bool { return e.failed }

// Duration returns the invocation's wall-clock duration.
func (e ToolExecution) Duration() time.Duration {
	return time.Duration(e.DurationMillis) * time.Millisecond
}

type toolExecutionJSON struct {
	ToolName   string         `json:"tool_name"`
	Arguments  map[string]any `json:"arguments"`
	Output     any            `json:"output,omitempty"`
	Error      *string        `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// MarshalJSON encodes the record in the synthesizer's wire shape.
func (e ToolExecution) MarshalJSON() ([]byte, error) {
	out := toolExecutionJSON{
		ToolName:   e.Name,
		Arguments:  e.Arguments,
		DurationMS: e.DurationMillis,
	}
	if out.Arguments == nil {
		out.Arguments = map[string]any{}
	}
	if e.failed {
		msg := e.ErrorMessage
		out.Error = &msg
	} else {
		out.Output = e.Output
		if out.Output == nil {
			out.Output = ""
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the synthesizer's wire shape.
func (e *ToolExecution) UnmarshalJSON(b []byte) error {
	var in toolExecutionJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*e = ToolExecution{
		Name:           in.ToolName,
		Arguments:      in.Arguments,
		Output:         in.Output,
		DurationMillis: in.DurationMS,
	}
	if in.Error != nil {
		e.ErrorMessage = *in.Error
		e.Output = nil
		e.failed = true
	}
	return nil
}

func executionSucceeded(name string, args map[string]any, output any, d time.Duration) ToolExecution {
	return ToolExecution{Name: name, Arguments: args, Output: serializable(output), DurationMillis: d.Milliseconds()}
}

func executionFailed(name string, args map[string]any, err error, d time.Duration) ToolExecution {
	return ToolExecution{Name: name, Arguments: args, ErrorMessage: err.Error(), DurationMillis: d.Milliseconds(), failed: true}
}

// serializable returns v when it encodes as JSON, and its printed form otherwise.
func serializable(v any) any {
	switch v.(type) {
	case nil, string, bool, float64, int, int64:
		return v
	}
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprint(v)
	}
	return v
}
