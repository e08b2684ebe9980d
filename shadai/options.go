// Copyright (c) Microsoft. All rights reserved.

package shadai

import "go.uber.org/zap"

// Remote tool names used by the orchestrator.
const (
	DefaultPlannerTool     = "shadai_planner"
	DefaultSynthesizerTool = "shadai_synthesizer"
)

type config struct {
	logger          *zap.Logger
	concurrency     int
	middleware      []FunctionMiddleware
	validateArgs    bool
	plannerTool     string
	synthesizerTool string
}

func newConfig(opts []Option) config {
	cfg := config{
		logger:          zap.NewNop(),
		plannerTool:     DefaultPlannerTool,
		synthesizerTool: DefaultSynthesizerTool,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Option configures an [Agent] or a [Client].
type Option func(*config)

// WithLogger sets the logger. The default discards all output.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithConcurrency bounds how many selected tools run at once during the
// execute phase. Zero or less runs all selected tools concurrently; 1 runs
// them sequentially in plan order.
func WithConcurrency(n int) Option {
	return func(c *config) { c.concurrency = n }
}

// WithFunctionMiddleware appends middleware around every local tool invocation.
func WithFunctionMiddleware(mws ...FunctionMiddleware) Option {
	return func(c *config) { c.middleware = append(c.middleware, mws...) }
}

// WithArgumentValidation checks resolved arguments against each tool's
// schema before invocation. A mismatch is recorded as that tool's failure.
func WithArgumentValidation(enabled bool) Option {
	return func(c *config) { c.validateArgs = enabled }
}

// WithPlannerTool overrides the remote planner tool name.
func WithPlannerTool(name string) Option {
	return func(c *config) { c.plannerTool = name }
}

// WithSynthesizerTool overrides the remote synthesizer tool name.
func WithSynthesizerTool(name string) Option {
	return func(c *config) { c.synthesizerTool = name }
}
