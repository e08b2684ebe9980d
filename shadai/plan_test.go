// Copyright (c) Microsoft. All rights reserved.

package shadai_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadai-group/shadai/shadai"
)

func planFor(t *testing.T, response any) (*shadai.Plan, error) {
	t.Helper()
	rpc := &fakeRPC{callTool: func(string, map[string]any) (any, error) { return response, nil }}
	return shadai.NewAgent(rpc).Plan(context.Background(), "p")
}

func TestAgent_Plan_Shapes(t *testing.T) {
	want := []shadai.PlannedCall{
		{Name: "search", Arguments: map[string]any{"query": "go"}},
		{Name: "clock", Arguments: map[string]any{}},
	}

	tests := []struct {
		name     string
		response any
	}{
		{"tool_plan object", map[string]any{"tool_plan": []any{
			map[string]any{"name": "search", "arguments": map[string]any{"query": "go"}},
			map[string]any{"name": "clock"},
		}}},
		{"bare list", []any{
			map[string]any{"tool_name": "search", "arguments": map[string]any{"query": "go"}},
			map[string]any{"toolName": "clock", "arguments": nil},
		}},
		{"encoded arguments", []any{
			map[string]any{"name": "search", "arguments": `{"query":"go"}`},
			map[string]any{"name": "clock", "arguments": ""},
		}},
		{"json string", `{"tool_plan":[{"name":"search","arguments":{"query":"go"}},{"name":"clock"}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := planFor(t, tc.response)
			require.NoError(t, err)
			assert.Equal(t, want, plan.Calls)
			assert.Equal(t, tc.response, plan.Raw)
		})
	}
}

func TestAgent_Plan_NullPlanIsEmpty(t *testing.T) {
	plan, err := planFor(t, map[string]any{"tool_plan": nil})
	require.NoError(t, err)
	assert.Empty(t, plan.Calls)
}

func TestAgent_Plan_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name     string
		response any
	}{
		{"missing tool_plan", map[string]any{"plan": []any{}}},
		{"tool_plan not a list", map[string]any{"tool_plan": "search"}},
		{"item not an object", []any{"search"}},
		{"item without name", []any{map[string]any{"arguments": map[string]any{}}}},
		{"arguments not an object", []any{map[string]any{"name": "s", "arguments": 3}}},
		{"arguments not json", []any{map[string]any{"name": "s", "arguments": "{oops"}}},
		{"invalid json string", "not a plan"},
		{"number", 42.0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := planFor(t, tc.response)
			assert.ErrorIs(t, err, shadai.ErrProtocol)
		})
	}
}

func TestToolExecution_JSON(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		in := `{"tool_name":"search","arguments":{"q":"go"},"output":{"hits":2},"duration_ms":12}`
		var exec shadai.ToolExecution
		require.NoError(t, json.Unmarshal([]byte(in), &exec))

		assert.False(t, exec.Failed())
		assert.Equal(t, "search", exec.Name)
		assert.Equal(t, int64(12), exec.DurationMillis)
		assert.Equal(t, float64(12e6), float64(exec.Duration()))

		out, err := json.Marshal(exec)
		require.NoError(t, err)
		assert.JSONEq(t, in, string(out))
	})

	t.Run("failure", func(t *testing.T) {
		in := `{"tool_name":"fetch","arguments":{},"error":"network down","duration_ms":3}`
		var exec shadai.ToolExecution
		require.NoError(t, json.Unmarshal([]byte(in), &exec))

		assert.True(t, exec.Failed())
		assert.Equal(t, "network down", exec.ErrorMessage)
		assert.Nil(t, exec.Output)

		out, err := json.Marshal(exec)
		require.NoError(t, err)
		assert.JSONEq(t, in, string(out))
	})

	t.Run("nil output and arguments", func(t *testing.T) {
		out, err := json.Marshal(shadai.ToolExecution{Name: "noop"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"tool_name":"noop","arguments":{},"output":"","duration_ms":0}`, string(out))
	})
}
