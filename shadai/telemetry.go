// Copyright (c) Microsoft. All rights reserved.

package shadai

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/shadai-group/shadai"

func tracer() trace.Tracer { return otel.Tracer(instrumentationName) }

// LoggingMiddleware returns a [FunctionMiddleware] that logs local tool
// invocations using zap.
func LoggingMiddleware(logger *zap.Logger) FunctionMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next FunctionHandler) FunctionHandler {
		return func(ctx context.Context, tool Tool, args json.RawMessage) (any, error) {
			start := time.Now()
			logger.Debug("tool invocation started", zap.String("tool", tool.Name()))

			result, err := next(ctx, tool, args)

			duration := time.Since(start)
			if err != nil {
				logger.Warn("tool invocation failed",
					zap.String("tool", tool.Name()),
					zap.Duration("duration", duration),
					zap.Error(err),
				)
				return nil, err
			}

			logger.Info("tool invocation completed",
				zap.String("tool", tool.Name()),
				zap.Duration("duration", duration),
			)
			return result, nil
		}
	}
}

// TracingMiddleware returns a [FunctionMiddleware] that records a span per
// local tool invocation on the global tracer provider.
func TracingMiddleware() FunctionMiddleware {
	return func(next FunctionHandler) FunctionHandler {
		return func(ctx context.Context, tool Tool, args json.RawMessage) (any, error) {
			ctx, span := tracer().Start(ctx, "shadai.tool "+tool.Name(),
				trace.WithAttributes(attribute.String("shadai.tool.name", tool.Name())),
			)
			defer span.End()

			result, err := next(ctx, tool, args)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return result, err
		}
	}
}
