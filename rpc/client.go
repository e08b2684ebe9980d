// Copyright (c) Microsoft. All rights reserved.

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shadai-group/shadai/shadai"
)

const (
	methodToolsCall  = "tools/call"
	methodToolsList  = "tools/list"
	methodInitialize = "initialize"

	defaultTimeout       = 30 * time.Second
	defaultClientName    = "shadai-go-client"
	defaultClientVersion = "1.0.0"
)

// Client implements [shadai.RPCClient] over JSON-RPC with server-sent event
// streaming. Configuration is fixed at construction; a Client is safe for
// concurrent use. Use [New] to create one.
type Client struct {
	tp            transport
	timeout       time.Duration
	logger        *zap.Logger
	metrics       *metrics
	tracer        trace.Tracer
	clientName    string
	clientVersion string
}

// Verify interface compliance at compile time.
var _ shadai.RPCClient = (*Client)(nil)

// New creates a [Client] with the given API key and options.
//
//	client := rpc.New(os.Getenv("SHADAI_API_KEY"),
//	    rpc.WithBaseURL("https://api.shadai.ai"),
//	)
func New(apiKey string, opts ...Option) *Client {
	cfg := &clientConfig{timeout: defaultTimeout}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	c := &Client{
		tp:            newHTTPTransport(apiKey, cfg),
		timeout:       cfg.timeout,
		logger:        cfg.logger,
		metrics:       newMetrics(cfg.registerer),
		tracer:        otel.Tracer("github.com/shadai-group/shadai/rpc"),
		clientName:    cfg.clientName,
		clientVersion: cfg.clientVersion,
	}
	if c.clientName == "" {
		c.clientName = defaultClientName
	}
	if c.clientVersion == "" {
		c.clientVersion = defaultClientVersion
	}
	return c
}

// Call performs a unary JSON-RPC call and returns the raw result. A JSON-RPC
// error is translated into a *shadai.Error.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.unary(ctx, method, "", params)
}

// CallTool calls a remote tool and returns its unwrapped envelope data.
func (c *Client) CallTool(ctx context.Context, name string, args any) (any, error) {
	result, err := c.unary(ctx, methodToolsCall, name, toolCall(name, args))
	if err != nil {
		return nil, err
	}
	return toolResult(result)
}

// Stream opens an event stream for method and yields progress fragments. The
// stream ends at the terminal envelope, whose failure becomes the stream
// error, or when the server closes the connection.
func (c *Client) Stream(ctx context.Context, method string, params any) *shadai.ResponseStream[string] {
	return c.stream(ctx, method, "", params)
}

// StreamTool calls a remote tool over the event stream. See [Client.Stream].
func (c *Client) StreamTool(ctx context.Context, name string, args any) *shadai.ResponseStream[string] {
	return c.stream(ctx, methodToolsCall, name, toolCall(name, args))
}

// HealthCheck reports server status. It is a cheap way to validate the
// credential and reachability before expensive calls.
func (c *Client) HealthCheck(ctx context.Context) (map[string]any, error) {
	ctx, span := c.startSpan(ctx, "health", "")
	start := time.Now()
	status, err := c.health(ctx)
	c.finish(span, "health", "", start, err)
	return status, err
}

func (c *Client) health(ctx context.Context) (map[string]any, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.tp.do(ctx, http.MethodGet, pathHealth, nil, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	v, err := shadai.Unwrap(body)
	if err != nil {
		return nil, err
	}
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{"status": v}, nil
}

// Initialize performs the protocol handshake and returns the server's
// capabilities and information.
func (c *Client) Initialize(ctx context.Context) (map[string]any, error) {
	result, err := c.Call(ctx, methodInitialize, map[string]any{
		"protocolVersion": MCPProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    c.clientName,
			"version": c.clientVersion,
		},
	})
	if err != nil {
		return nil, err
	}
	info := map[string]any{}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &info); err != nil {
			return nil, shadai.ProtocolError("initialize result is not an object: "+err.Error(), string(result))
		}
	}
	return info, nil
}

// ListTools returns the tools the server exposes.
func (c *Client) ListTools(ctx context.Context) ([]shadai.RemoteTool, error) {
	result, err := c.Call(ctx, methodToolsList, nil)
	if err != nil {
		return nil, err
	}
	var list struct {
		Tools []shadai.RemoteTool `json:"tools"`
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &list); err != nil {
			return nil, shadai.ProtocolError("tools/list result is malformed: "+err.Error(), string(result))
		}
	}
	if list.Tools == nil {
		list.Tools = []shadai.RemoteTool{}
	}
	return list.Tools, nil
}

func (c *Client) unary(ctx context.Context, method, tool string, params any) (json.RawMessage, error) {
	ctx, span := c.startSpan(ctx, method, tool)
	start := time.Now()
	result, err := c.doUnary(ctx, method, params)
	c.finish(span, method, tool, start, err)
	return result, err
}

func (c *Client) doUnary(ctx context.Context, method string, params any) (json.RawMessage, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req := newRequest(method, params)
	c.logger.Debug("rpc request", zap.String("method", method), zap.String("id", req.ID))

	resp, err := c.tp.do(ctx, http.MethodPost, pathRPC, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	r, err := decodeResponse(body, req)
	if err != nil {
		return nil, err
	}
	return r.Result, nil
}

func (c *Client) stream(ctx context.Context, method, tool string, params any) *shadai.ResponseStream[string] {
	return shadai.NewResponseStream(ctx, func(ctx context.Context, ch chan<- string) (err error) {
		ctx, span := c.startSpan(ctx, method, tool, attribute.Bool("shadai.stream", true))
		start := time.Now()
		defer func() { c.finish(span, method, tool, start, err) }()

		// The timeout only bounds the wait for the first fragment.
		sctx, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)
		var timer *time.Timer
		if c.timeout > 0 {
			timer = time.AfterFunc(c.timeout, func() { cancel(errTimedOut) })
		}
		stopTimer := func() {
			if timer != nil {
				timer.Stop()
			}
		}
		defer stopTimer()

		req := newRequest(method, params)
		c.logger.Debug("stream opened", zap.String("method", method), zap.String("tool", tool), zap.String("id", req.ID))

		resp, err := c.tp.do(sctx, http.MethodPost, pathStream, req, true)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		events := newSSEReader(resp.Body)
		fragments := 0
		for {
			payload, err := events.next()
			if errors.Is(err, io.EOF) {
				c.logger.Warn("stream closed without terminal envelope; treating as success",
					zap.String("tool", tool), zap.Int("fragments", fragments))
				return nil
			}
			if err != nil {
				return transportError(sctx, err)
			}

			ev, ok := classifyEvent(payload)
			if !ok {
				c.logger.Debug("skipping stream event", zap.String("tool", tool))
				continue
			}
			stopTimer()
			if errors.Is(context.Cause(sctx), errTimedOut) {
				return shadai.TimeoutError("no stream event within the configured timeout")
			}

			if ev.terminal {
				c.logger.Debug("stream closed", zap.String("tool", tool), zap.Int("fragments", fragments), zap.Bool("success", ev.err == nil))
				return ev.err
			}

			fragments++
			c.metrics.fragment(tool)
			select {
			case ch <- ev.fragment:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeoutCause(ctx, c.timeout, errTimedOut)
}

func (c *Client) startSpan(ctx context.Context, method, tool string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("rpc.method", method),
	)
	if tool != "" {
		attrs = append(attrs, attribute.String("shadai.tool.name", tool))
	}
	return c.tracer.Start(ctx, "shadai.rpc "+method, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func (c *Client) finish(span trace.Span, method, tool string, start time.Time, err error) {
	c.metrics.observe(method, tool, start, err)
	if err != nil && !errors.Is(err, context.Canceled) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("rpc failed", zap.String("method", method), zap.String("tool", tool),
			zap.Duration("duration", time.Since(start)), zap.Error(err))
	} else {
		c.logger.Debug("rpc finished", zap.String("method", method), zap.String("tool", tool),
			zap.Duration("duration", time.Since(start)))
	}
	span.End()
}
