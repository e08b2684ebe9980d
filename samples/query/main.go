// Copyright (c) Microsoft. All rights reserved.

// Command query streams answers from a session's knowledge base.
//
// Usage:
//
//	export SHADAI_API_KEY=...
//	go run .                               # interactive, new temporary session
//	go run . --session docs                # reuse (or create) the "docs" session
//	go run . --session docs --serve        # HTTP server mode on :8080
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/shadai-group/shadai/rpc"
	"github.com/shadai-group/shadai/shadai"
)

func main() {
	sessionName := flag.String("session", "", "session name to reuse; a temporary session is created when empty")
	memory := flag.Bool("memory", false, "enable conversation memory")
	serve := flag.Bool("serve", false, "run as HTTP server instead of interactive CLI")
	port := flag.String("port", "8080", "HTTP listen port (serve mode)")
	flag.Parse()

	cfg, err := rpc.LoadConfig()
	if err != nil {
		log.Fatal(shadai.FormatError(err))
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatal(shadai.FormatError(err))
	}
	defer logger.Sync()

	registry := prometheus.NewRegistry()
	transport, err := rpc.NewFromConfig(cfg,
		rpc.WithLogger(logger),
		rpc.WithMetrics(registry),
	)
	if err != nil {
		log.Fatal(shadai.FormatError(err))
	}
	client := shadai.New(transport, shadai.WithLogger(logger))

	ctx := context.Background()
	health, err := client.Health(ctx)
	if err != nil {
		log.Fatal(shadai.FormatError(err))
	}
	logger.Info("server reachable", zap.Any("health", health))

	opts := shadai.SessionOptions{Name: *sessionName, Temporary: *sessionName == ""}
	err = client.Sessions().WithSession(ctx, opts, func(ctx context.Context, session *shadai.Session) error {
		fmt.Printf("Session: %s (%s)\n\n", session.Name, session.UUID)

		// ── HTTP server mode ─────────────────────────────────────────
		if *serve {
			srv := newQueryServer(client, session.UUID, registry, logger)
			addr := fmt.Sprintf(":%s", *port)
			logger.Info("listening", zap.String("addr", addr))
			return http.ListenAndServe(addr, srv)
		}

		// ── Query loop ───────────────────────────────────────────────
		fmt.Println("Ask a question (type 'quit' to exit)")
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("You: ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			input := strings.TrimSpace(scanner.Text())
			if input == "" {
				continue
			}
			if input == "quit" || input == "exit" {
				return nil
			}

			fmt.Print("Answer: ")
			stream := client.Query(ctx, session.UUID, input, shadai.WithMemory(*memory))
			for fragment, err := range stream.All(ctx) {
				if err != nil {
					fmt.Println()
					log.Printf("Error: %s", shadai.FormatError(err))
					break
				}
				fmt.Print(fragment)
			}
			fmt.Println()
			fmt.Println()
		}
	})
	if err != nil {
		log.Fatal(shadai.FormatError(err))
	}
}
