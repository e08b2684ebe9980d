// Copyright (c) Microsoft. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shadai-group/shadai/shadai"
)

// QueryRequest is the JSON body for POST /query.
type QueryRequest struct {
	Query     string `json:"query"`
	UseMemory bool   `json:"useMemory,omitempty"`
}

// queryServer relays questions to the session and streams answers back as
// server-sent events.
type queryServer struct {
	client      *shadai.Client
	sessionUUID string
	apiKey      string
	logger      *zap.Logger
	mux         *http.ServeMux
}

// newQueryServer creates a server. If QUERY_API_KEY is unset, /query is unauthenticated.
func newQueryServer(client *shadai.Client, sessionUUID string, registry *prometheus.Registry, logger *zap.Logger) *queryServer {
	s := &queryServer{
		client:      client,
		sessionUUID: sessionUUID,
		apiKey:      os.Getenv("QUERY_API_KEY"),
		logger:      logger,
		mux:         http.NewServeMux(),
	}
	if s.apiKey == "" {
		logger.Warn("QUERY_API_KEY not set, /query is unauthenticated")
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /query", s.handleQuery)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return s
}

func (s *queryServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("http request", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))
	s.mux.ServeHTTP(w, r)
}

func (s *queryServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, err := s.client.Health(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": shadai.FormatError(err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "upstream": status})
}

func (s *queryServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	if s.apiKey != "" && extractBearer(r) != s.apiKey {
		s.logger.Warn("unauthorized query", zap.String("remote", r.RemoteAddr))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	stream := s.client.Query(r.Context(), s.sessionUUID, req.Query, shadai.WithMemory(req.UseMemory))
	for fragment, err := range stream.All(r.Context()) {
		if err != nil {
			s.logger.Warn("query failed", zap.Error(err))
			writeEvent(w, "error", shadai.FormatError(err))
			flusher.Flush()
			return
		}
		writeEvent(w, "fragment", fragment)
		flusher.Flush()
	}
	writeEvent(w, "done", "")
	flusher.Flush()
}

func writeEvent(w http.ResponseWriter, event, data string) {
	b, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
