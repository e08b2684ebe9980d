// Copyright (c) Microsoft. All rights reserved.

// Command agent demonstrates the plan, execute and synthesize workflow with
// tools that run on your machine.
//
// Usage with an API key:
//
//	export SHADAI_API_KEY=...
//	export SHADAI_BASE_URL=https://api.shadai.ai   # optional
//	go run .
//
// Usage with access tokens (environment, managed identity, az login, ...):
//
//	export SHADAI_TOKEN_SCOPE=api://shadai/.default
//	go run .
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"go.uber.org/zap"

	"github.com/shadai-group/shadai/rpc"
	"github.com/shadai-group/shadai/shadai"
)

func main() {
	// Load .env file if present (ignored if missing).
	cfg, err := rpc.LoadConfig()
	if err != nil {
		log.Fatal(shadai.FormatError(err))
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatal(shadai.FormatError(err))
	}
	defer logger.Sync()

	transport := newTransport(cfg, logger)
	client := shadai.New(transport,
		shadai.WithLogger(logger),
		shadai.WithArgumentValidation(true),
		shadai.WithFunctionMiddleware(
			shadai.LoggingMiddleware(logger),
			shadai.TracingMiddleware(),
		),
	)

	ctx := context.Background()
	if _, err := client.Health(ctx); err != nil {
		log.Fatal(shadai.FormatError(err))
	}

	tools := GetTools()

	fmt.Println("Ask the agent (type 'quit' to exit)")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "quit" || input == "exit" {
			break
		}

		stream, err := client.Agent(ctx, input, tools...)
		if err != nil {
			log.Printf("Error: %s", shadai.FormatError(err))
			if errors.Is(err, shadai.ErrAuthentication) {
				return
			}
			continue
		}

		for _, exec := range stream.Executions() {
			if exec.Failed() {
				fmt.Printf("  [%s failed: %s]\n", exec.Name, exec.ErrorMessage)
			} else {
				fmt.Printf("  [%s ran in %dms]\n", exec.Name, exec.DurationMillis)
			}
		}

		fmt.Print("Agent: ")
		for fragment, err := range stream.All(ctx) {
			if err != nil {
				log.Printf("\nStream error: %s", shadai.FormatError(err))
				break
			}
			fmt.Print(fragment)
		}
		fmt.Println()
		fmt.Println()
	}
}

// newTransport creates the RPC client, using access tokens when a token scope
// is configured and the API key otherwise.
func newTransport(cfg *rpc.Config, logger *zap.Logger) *rpc.Client {
	opts := []rpc.Option{rpc.WithLogger(logger)}
	if cfg.TokenScope != "" {
		fmt.Println("Using token authentication (DefaultAzureCredential)")
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			log.Fatalf("Failed to create credential: %v", err)
		}
		opts = append(opts, rpc.WithTokenCredential(cred, cfg.TokenScope))
	}
	transport, err := rpc.NewFromConfig(cfg, opts...)
	if err != nil {
		log.Fatal(shadai.FormatError(err))
	}
	return transport
}
