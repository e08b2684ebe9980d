// Copyright (c) Microsoft. All rights reserved.

package shadai

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"maps"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunState is the phase an agent run is in.
type RunState int32

const (
	StatePlanning RunState = iota
	StateExecuting
	StateSynthesizing
	StateDone
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StatePlanning:
		return "planning"
	case StateExecuting:
		return "executing"
	case StateSynthesizing:
		return "synthesizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("RunState(%d)", int32(s))
}

// Agent runs the plan, execute and synthesize workflow: the remote planner
// selects tools, the selected tools run locally, and the remote synthesizer
// streams an answer over their results.
type Agent struct {
	client RPCClient
	cfg    config
}

// NewAgent creates an Agent that reaches the planner and synthesizer through client.
func NewAgent(client RPCClient, opts ...Option) *Agent {
	return &Agent{client: client, cfg: newConfig(opts)}
}

// AgentStream is the synthesized answer of one run. It yields text fragments
// and records the plan and executions that fed the synthesizer.
type AgentStream struct {
	stream     *ResponseStream[string]
	plan       *Plan
	executions []ToolExecution
	state      atomic.Int32
	span       trace.Span
	ended      atomic.Bool
}

// Next returns the next answer fragment.
func (s *AgentStream) Next(ctx context.Context) (string, bool, error) {
	frag, ok, err := s.stream.Next(ctx)
	switch {
	case err != nil:
		s.finish(StateFailed, err)
	case !ok:
		s.finish(StateDone, nil)
	}
	return frag, ok, err
}

// Text drains the stream and returns the concatenated answer.
func (s *AgentStream) Text(ctx context.Context) (string, error) {
	defer s.Close()
	var out []byte
	for {
		frag, ok, err := s.Next(ctx)
		if err != nil {
			return string(out), err
		}
		if !ok {
			return string(out), nil
		}
		out = append(out, frag...)
	}
}

// All returns a range-over-func iterator over the answer fragments. Breaking
// out of the loop closes the stream.
func (s *AgentStream) All(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		defer s.Close()
		for {
			frag, ok, err := s.Next(ctx)
			if err != nil {
				yield("", err)
				return
			}
			if !ok || !yield(frag, nil) {
				return
			}
		}
	}
}

// Close stops the synthesizer stream. Safe to call multiple times.
func (s *AgentStream) Close() error {
	err := s.stream.Close()
	if s.State() == StateSynthesizing {
		s.finish(StateDone, nil)
	}
	return err
}

// Plan returns the planner's selection for this run.
func (s *AgentStream) Plan() *Plan { return s.plan }

// Executions returns the local tool executions in plan order.
func (s *AgentStream) Executions() []ToolExecution { return s.executions }

// State returns the run's current phase.
func (s *AgentStream) State() RunState { return RunState(s.state.Load()) }

func (s *AgentStream) finish(state RunState, err error) {
	if !s.ended.CompareAndSwap(false, true) {
		return
	}
	s.state.Store(int32(state))
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}

// Run plans, executes and starts synthesis for prompt. Planner failures and
// protocol errors are returned directly; individual tool failures are recorded
// in the executions and reported to the synthesizer. The returned stream must
// be closed when the caller stops reading early.
func (a *Agent) Run(ctx context.Context, prompt string, tools ...Tool) (*AgentStream, error) {
	index, err := indexTools(tools)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer().Start(ctx, "shadai.agent",
		trace.WithAttributes(attribute.Int("shadai.agent.tools", len(tools))),
	)
	fail := func(err error) (*AgentStream, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}

	a.cfg.logger.Debug("agent phase", zap.Stringer("state", StatePlanning), zap.Int("tools", len(tools)))
	plan, err := a.Plan(ctx, prompt, tools...)
	if err != nil {
		a.cfg.logger.Debug("agent phase", zap.Stringer("state", StateFailed), zap.Error(err))
		return fail(err)
	}

	a.cfg.logger.Debug("agent phase", zap.Stringer("state", StateExecuting), zap.Int("selected", len(plan.Calls)))
	executions, err := a.execute(ctx, plan, index)
	if err != nil {
		a.cfg.logger.Debug("agent phase", zap.Stringer("state", StateFailed), zap.Error(err))
		return fail(err)
	}

	a.cfg.logger.Debug("agent phase", zap.Stringer("state", StateSynthesizing), zap.Int("executions", len(executions)))
	defs := make([]ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = DefinitionOf(t)
	}
	stream := a.client.StreamTool(ctx, a.cfg.synthesizerTool, map[string]any{
		"prompt":           prompt,
		"tool_definitions": defs,
		"tool_executions":  executions,
	})

	out := &AgentStream{stream: stream, plan: plan, executions: executions, span: span}
	out.state.Store(int32(StateSynthesizing))
	return out, nil
}

// Plan asks the remote planner which of tools to run for prompt and with
// which arguments.
func (a *Agent) Plan(ctx context.Context, prompt string, tools ...Tool) (*Plan, error) {
	defs := make([]ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = DefinitionOf(t)
	}
	data, err := a.client.CallTool(ctx, a.cfg.plannerTool, map[string]any{
		"prompt":          prompt,
		"available_tools": defs,
	})
	if err != nil {
		return nil, err
	}
	return parsePlan(data)
}

// Execute runs the planned calls against tools locally. The returned records
// follow plan order regardless of completion order. A failing or unknown tool
// is recorded, not returned; the only error is ctx ending before all calls
// settle, in which case every result is discarded.
func (a *Agent) Execute(ctx context.Context, plan *Plan, tools ...Tool) ([]ToolExecution, error) {
	index, err := indexTools(tools)
	if err != nil {
		return nil, err
	}
	return a.execute(ctx, plan, index)
}

func (a *Agent) execute(ctx context.Context, plan *Plan, index map[string]Tool) ([]ToolExecution, error) {
	if plan == nil || len(plan.Calls) == 0 {
		return []ToolExecution{}, nil
	}

	handler := chainFunctionMiddleware(invokeTool, a.cfg.middleware...)
	results := make([]ToolExecution, len(plan.Calls))

	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.concurrency > 0 {
		g.SetLimit(a.cfg.concurrency)
	}
	for i, call := range plan.Calls {
		g.Go(func() error {
			results[i] = a.executeOne(gctx, handler, call, index)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (a *Agent) executeOne(ctx context.Context, handler FunctionHandler, call PlannedCall, index map[string]Tool) ToolExecution {
	start := time.Now()

	tool, ok := index[call.Name]
	if !ok {
		err := &ToolError{ToolName: call.Name, Message: "selected by the planner but not provided", Err: ErrPlannerToolMismatch}
		a.cfg.logger.Warn("planner selected unknown tool", zap.String("tool", call.Name))
		return executionFailed(call.Name, call.Arguments, err, time.Since(start))
	}

	args := make(map[string]any, len(call.Arguments)+len(tool.DefaultArguments()))
	maps.Copy(args, tool.DefaultArguments())
	maps.Copy(args, call.Arguments)

	if a.cfg.validateArgs {
		if v, ok := tool.(interface{ ValidateArguments(map[string]any) error }); ok {
			if err := v.ValidateArguments(args); err != nil {
				a.cfg.logger.Warn("tool arguments rejected", zap.String("tool", call.Name), zap.Error(err))
				return executionFailed(call.Name, args, err, time.Since(start))
			}
		}
	}

	raw, err := json.Marshal(args)
	if err != nil {
		err = &ToolError{ToolName: call.Name, Message: "encode arguments: " + err.Error(), Err: ErrToolExecution}
		return executionFailed(call.Name, args, err, time.Since(start))
	}

	output, err := safeInvoke(ctx, handler, tool, raw)
	if err != nil {
		a.cfg.logger.Warn("tool execution failed", zap.String("tool", call.Name), zap.Error(err))
		return executionFailed(call.Name, args, err, time.Since(start))
	}
	return executionSucceeded(call.Name, args, output, time.Since(start))
}

// safeInvoke runs handler, converting a panic in middleware into an error.
func safeInvoke(ctx context.Context, handler FunctionHandler, tool Tool, args json.RawMessage) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrToolExecution, r)
		}
	}()
	return handler(ctx, tool, args)
}

func indexTools(tools []Tool) (map[string]Tool, error) {
	index := make(map[string]Tool, len(tools))
	for _, t := range tools {
		if t == nil {
			return nil, &ToolError{Message: "nil tool", Err: ErrInvalidToolDefinition}
		}
		if !toolNamePattern.MatchString(t.Name()) {
			return nil, &ToolError{ToolName: t.Name(), Message: "name must be 1-64 letters, digits, '_' or '-'", Err: ErrInvalidToolDefinition}
		}
		if _, err := ValidateSchema(t.Parameters()); err != nil {
			return nil, &ToolError{ToolName: t.Name(), Message: err.Error(), Err: err}
		}
		if _, dup := index[t.Name()]; dup {
			return nil, &ToolError{ToolName: t.Name(), Message: "declared more than once", Err: ErrInvalidToolDefinition}
		}
		index[t.Name()] = t
	}
	return index, nil
}
