// Copyright (c) Microsoft. All rights reserved.

package shadai

import (
	"context"
	"encoding/json"
)

// RPCClient is the transport boundary the orchestrator and facade are built
// on. The rpc package provides the JSON-RPC/SSE implementation.
type RPCClient interface {
	// CallTool invokes a remote tool and returns its unwrapped envelope data.
	CallTool(ctx context.Context, name string, args any) (any, error)

	// StreamTool invokes a remote tool over the event stream and yields its
	// text fragments. A failed terminal envelope surfaces as the stream error.
	StreamTool(ctx context.Context, name string, args any) *ResponseStream[string]

	// HealthCheck reports the backend status.
	HealthCheck(ctx context.Context) (map[string]any, error)

	// ListTools returns the remote tools the backend exposes.
	ListTools(ctx context.Context) ([]RemoteTool, error)
}

// RemoteTool describes a tool hosted by the backend.
type RemoteTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}
