// Copyright (c) Microsoft. All rights reserved.

package shadai

import (
	"context"

	"go.uber.org/zap"
)

// Remote tool names behind the facade methods.
const (
	ToolQuery     = "shadai_query"
	ToolSummarize = "shadai_summarize"
	ToolWebSearch = "shadai_web_search"
	ToolEngine    = "shadai_engine"
)

// Client is the entry point for the hosted tools. It is safe for concurrent use.
type Client struct {
	rpc    RPCClient
	agent  *Agent
	logger *zap.Logger
}

// New creates a Client over rpc. Options also configure the client's [Agent].
func New(rpc RPCClient, opts ...Option) *Client {
	a := NewAgent(rpc, opts...)
	return &Client{rpc: rpc, agent: a, logger: a.cfg.logger}
}

// CallOption toggles backend features for one facade call.
type CallOption func(*callOptions)

type callOptions struct {
	memory        bool
	webSearch     bool
	knowledgeBase bool
	summary       bool
}

// WithMemory enables conversation memory.
func WithMemory(enabled bool) CallOption {
	return func(o *callOptions) { o.memory = enabled }
}

// WithWebSearch enables web search. It is on by default for [Client.WebSearch].
func WithWebSearch(enabled bool) CallOption {
	return func(o *callOptions) { o.webSearch = enabled }
}

// WithKnowledgeBase enables retrieval from the session's documents.
func WithKnowledgeBase(enabled bool) CallOption {
	return func(o *callOptions) { o.knowledgeBase = enabled }
}

// WithSummary enables document summarization.
func WithSummary(enabled bool) CallOption {
	return func(o *callOptions) { o.summary = enabled }
}

func applyCallOptions(base callOptions, opts []CallOption) callOptions {
	for _, opt := range opts {
		opt(&base)
	}
	return base
}

// Health reports the backend status.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	return c.rpc.HealthCheck(ctx)
}

// ListTools returns the tools the backend exposes.
func (c *Client) ListTools(ctx context.Context) ([]RemoteTool, error) {
	return c.rpc.ListTools(ctx)
}

// Query streams an answer to query from the session's knowledge base.
func (c *Client) Query(ctx context.Context, sessionUUID, query string, opts ...CallOption) *ResponseStream[string] {
	o := applyCallOptions(callOptions{}, opts)
	return c.rpc.StreamTool(ctx, ToolQuery, map[string]any{
		"session_uuid": sessionUUID,
		"query":        query,
		"use_memory":   o.memory,
	})
}

// Summarize streams a summary of the session's documents.
func (c *Client) Summarize(ctx context.Context, sessionUUID string, opts ...CallOption) *ResponseStream[string] {
	o := applyCallOptions(callOptions{}, opts)
	return c.rpc.StreamTool(ctx, ToolSummarize, map[string]any{
		"session_uuid": sessionUUID,
		"use_memory":   o.memory,
	})
}

// WebSearch streams an answer to prompt backed by web search.
func (c *Client) WebSearch(ctx context.Context, sessionUUID, prompt string, opts ...CallOption) *ResponseStream[string] {
	o := applyCallOptions(callOptions{webSearch: true}, opts)
	return c.rpc.StreamTool(ctx, ToolWebSearch, map[string]any{
		"session_uuid":   sessionUUID,
		"prompt":         prompt,
		"use_web_search": o.webSearch,
		"use_memory":     o.memory,
	})
}

// Engine streams an answer to prompt combining the enabled capabilities.
func (c *Client) Engine(ctx context.Context, sessionUUID, prompt string, opts ...CallOption) *ResponseStream[string] {
	o := applyCallOptions(callOptions{}, opts)
	return c.rpc.StreamTool(ctx, ToolEngine, map[string]any{
		"session_uuid":       sessionUUID,
		"prompt":             prompt,
		"use_knowledge_base": o.knowledgeBase,
		"use_summary":        o.summary,
		"use_web_search":     o.webSearch,
		"use_memory":         o.memory,
	})
}

// Agent runs the plan, execute and synthesize workflow over tools.
// See [Agent.Run].
func (c *Client) Agent(ctx context.Context, prompt string, tools ...Tool) (*AgentStream, error) {
	return c.agent.Run(ctx, prompt, tools...)
}

// Sessions returns the session administration calls.
func (c *Client) Sessions() *Sessions {
	return &Sessions{rpc: c.rpc, logger: c.logger}
}
