// Copyright (c) Microsoft. All rights reserved.

// Package rpc provides the [shadai.RPCClient] implementation: JSON-RPC 2.0
// requests to the server's /mcp/rpc endpoint and server-sent event streams
// from /mcp/stream.
//
// Create a client and pass it to [shadai.New]:
//
//	transport := rpc.New(os.Getenv("SHADAI_API_KEY"),
//	    rpc.WithBaseURL("https://api.shadai.ai"),
//	)
//
//	client := shadai.New(transport)
//
// Or load it from SHADAI_* environment variables and an optional .env file:
//
//	cfg, err := rpc.LoadConfig()
//	transport, err := rpc.NewFromConfig(cfg)
//
// # Configuration
//
//   - [WithBaseURL]: override the server address
//   - [WithTimeout]: bound unary calls and the wait for a stream's first event
//   - [WithHTTPClient]: provide a custom http.Client
//   - [WithHeaders]: add custom headers to every request
//   - [WithTokenCredential]: authenticate with access tokens instead of an API key
//   - [WithRateLimit]: limit outgoing requests
//   - [WithLogger], [WithMetrics]: zap logging and Prometheus collectors
//
// # Testing
//
// The client uses an unexported transport interface internally.
// For testing, point [WithBaseURL] at an httptest server or provide a mock
// http.Client via [WithHTTPClient] with a custom RoundTripper.
package rpc
