// Copyright (c) Microsoft. All rights reserved.

package shadai

import (
	"context"
	"encoding/json"
)

// FunctionHandler is the function signature for invoking a tool.
type FunctionHandler func(ctx context.Context, tool Tool, args json.RawMessage) (any, error)

// FunctionMiddleware wraps a [FunctionHandler] to add cross-cutting behavior.
// Middleware should call next to continue the chain, or return early to short-circuit.
type FunctionMiddleware func(next FunctionHandler) FunctionHandler

// invokeTool is the innermost handler: it starts the tool and waits for its task.
func invokeTool(ctx context.Context, tool Tool, args json.RawMessage) (any, error) {
	return tool.Invoke(ctx, args).Wait(ctx)
}

// chainFunctionMiddleware applies middleware in order (first in list = outermost wrapper).
func chainFunctionMiddleware(handler FunctionHandler, mws ...FunctionMiddleware) FunctionHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	return handler
}
