// Copyright (c) Microsoft. All rights reserved.

// Package shadai is a client for the Shadai hosted tools. It unwraps the
// backend's response envelope into typed errors, turns Go functions into tool
// definitions, and runs the agent workflow that mixes remote planning and
// synthesis with locally executed tools.
//
// # Quick Start
//
// Create a transport (from the rpc package) and wrap it in a [Client]:
//
//	transport := rpc.New(os.Getenv("SHADAI_API_KEY"), rpc.WithBaseURL("https://api.shadai.ai"))
//	client := shadai.New(transport, shadai.WithLogger(logger))
//
//	answer, err := shadai.CollectText(ctx, client.Query(ctx, sessionUUID, "What is AI?"))
//
// # Architecture
//
//   - [RPCClient]: the transport boundary (implemented by the rpc package).
//   - [Unwrap] and [TranslateError]: the envelope contract and error taxonomy.
//   - [Tool]: locally executed functions the remote planner may select.
//   - [Task]: the uniform handle returned by every tool invocation.
//   - [Agent]: the plan, execute and synthesize workflow.
//   - [ResponseStream]: generic pull-based iterator for streamed answers.
//
// # Tools
//
// Use [NewTypedTool] to infer the parameter schema from an argument struct:
//
//	type SearchArgs struct {
//	    Query string `json:"query"`
//	    Limit int    `json:"limit" jsonschema:"default=10"`
//	}
//
//	search := shadai.MustTool(shadai.NewTypedTool("search_db", "",
//	    func(ctx context.Context, args SearchArgs) (any, error) {
//	        return db.Search(ctx, args.Query, args.Limit)
//	    },
//	    shadai.WithDoc(`Search the product database.
//
//	    Args:
//	        query: Search text
//	        limit: Maximum number of rows`),
//	))
//
//	stream, err := client.Agent(ctx, "Find blue shoes", search)
//
// # Errors
//
// Backend failures are returned as [*Error] and match the category sentinels:
//
//	if errors.Is(err, shadai.ErrPlanLimitExceeded) { ... }
//	var e *shadai.Error
//	if errors.As(err, &e) && e.Retriable { ... }
package shadai
