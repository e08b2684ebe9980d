// Copyright (c) Microsoft. All rights reserved.

package shadai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Remote session tool names.
const (
	ToolSessionCreate       = "session_create"
	ToolSessionGetOrCreate  = "session_get_or_create"
	ToolSessionUpdateModels = "session_update_models"
	ToolSessionDelete       = "session_delete"
	ToolSessionList         = "session_list"
	ToolChatHistoryGet      = "chat_history_get"
	ToolChatHistoryClear    = "chat_history_clear"
)

// Session is a backend conversation session.
type Session struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
	// Data holds every field the backend returned.
	Data map[string]any `json:"-"`
}

// SessionOptions configures [Sessions.WithSession].
type SessionOptions struct {
	// Name selects an existing session, creating it if needed. When empty a
	// new session with a generated name is created.
	Name         string
	SystemPrompt string
	// LLMModel and EmbeddingModel use the "provider:model" form,
	// e.g. "openai:gpt-4o-mini".
	LLMModel       string
	EmbeddingModel string
	// Temporary deletes the session when the scope ends.
	Temporary bool
}

// Sessions groups the session administration calls.
type Sessions struct {
	rpc    RPCClient
	logger *zap.Logger
}

// Create creates a session. An empty name is replaced by a generated one.
func (s *Sessions) Create(ctx context.Context, name, systemPrompt string) (*Session, error) {
	if name == "" {
		name = GenerateSessionName()
	}
	return s.call(ctx, ToolSessionCreate, sessionArgs(name, systemPrompt))
}

// GetOrCreate returns the session called name, creating it when missing.
func (s *Sessions) GetOrCreate(ctx context.Context, name, systemPrompt string) (*Session, error) {
	return s.call(ctx, ToolSessionGetOrCreate, sessionArgs(name, systemPrompt))
}

// UpdateModels sets the session's language and embedding models. Either may
// be empty to leave it unchanged.
func (s *Sessions) UpdateModels(ctx context.Context, sessionUUID, llmModel, embeddingModel string) (*Session, error) {
	args := map[string]any{"session_uuid": sessionUUID}
	if llmModel != "" {
		provider, model, err := splitModel("llm_model", llmModel)
		if err != nil {
			return nil, err
		}
		args["llm_provider"] = provider
		args["llm_model"] = model
	}
	if embeddingModel != "" {
		provider, model, err := splitModel("embedding_model", embeddingModel)
		if err != nil {
			return nil, err
		}
		args["embedding_provider"] = provider
		args["embedding_model"] = model
	}
	return s.call(ctx, ToolSessionUpdateModels, args)
}

// Delete removes a session.
func (s *Sessions) Delete(ctx context.Context, sessionUUID string) error {
	_, err := s.rpc.CallTool(ctx, ToolSessionDelete, map[string]any{"session_uuid": sessionUUID})
	return err
}

// List returns a page of sessions as sent by the backend. Zero page values
// use the backend defaults.
func (s *Sessions) List(ctx context.Context, page, pageSize int) (any, error) {
	return s.rpc.CallTool(ctx, ToolSessionList, pageArgs(map[string]any{}, page, pageSize))
}

// ChatHistory returns a page of the session's messages as sent by the backend.
func (s *Sessions) ChatHistory(ctx context.Context, sessionUUID string, page, pageSize int) (any, error) {
	return s.rpc.CallTool(ctx, ToolChatHistoryGet, pageArgs(map[string]any{"session_uuid": sessionUUID}, page, pageSize))
}

// ClearChatHistory deletes the session's messages.
func (s *Sessions) ClearChatHistory(ctx context.Context, sessionUUID string) error {
	_, err := s.rpc.CallTool(ctx, ToolChatHistoryClear, map[string]any{"session_uuid": sessionUUID})
	return err
}

// WithSession opens a session per opts, runs fn with it and, for temporary
// sessions, deletes it afterwards. If configuring the models fails the new
// session is deleted before the error is returned.
func (s *Sessions) WithSession(ctx context.Context, opts SessionOptions, fn func(ctx context.Context, session *Session) error) (err error) {
	var session *Session
	if opts.Name != "" {
		session, err = s.GetOrCreate(ctx, opts.Name, opts.SystemPrompt)
	} else {
		session, err = s.Create(ctx, "", opts.SystemPrompt)
	}
	if err != nil {
		return err
	}

	if opts.LLMModel != "" || opts.EmbeddingModel != "" {
		updated, uerr := s.UpdateModels(ctx, session.UUID, opts.LLMModel, opts.EmbeddingModel)
		if uerr != nil {
			if session.UUID != "" {
				if derr := s.Delete(ctx, session.UUID); derr != nil {
					s.logger.Warn("session cleanup failed", zap.String("session", session.UUID), zap.Error(derr))
				}
			}
			return fmt.Errorf("configure session models: %w", uerr)
		}
		if updated.UUID == "" {
			updated.UUID = session.UUID
		}
		session = updated
	}

	if opts.Temporary && session.UUID != "" {
		defer func() {
			if derr := s.Delete(context.WithoutCancel(ctx), session.UUID); derr != nil {
				err = errors.Join(err, fmt.Errorf("delete temporary session: %w", derr))
			}
		}()
	}
	return fn(ctx, session)
}

func (s *Sessions) call(ctx context.Context, tool string, args map[string]any) (*Session, error) {
	data, err := s.rpc.CallTool(ctx, tool, args)
	if err != nil {
		return nil, err
	}
	return decodeSession(data)
}

func decodeSession(data any) (*Session, error) {
	if str, ok := data.(string); ok {
		var v any
		if err := json.Unmarshal([]byte(str), &v); err != nil {
			return nil, ProtocolError("session response is not valid JSON: "+err.Error(), str)
		}
		data = v
	}
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, ProtocolError(fmt.Sprintf("session response has unexpected type %T", data), rawText(nil, data))
	}
	session := &Session{Data: obj}
	if v, ok := obj["uuid"]; ok && v != nil {
		session.UUID = fmt.Sprint(v)
	}
	if v, ok := obj["name"].(string); ok {
		session.Name = v
	}
	return session, nil
}

// GenerateSessionName returns a fresh "session-xxxxxxxx" name.
func GenerateSessionName() string {
	return "session-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func sessionArgs(name, systemPrompt string) map[string]any {
	args := map[string]any{"name": name}
	if systemPrompt != "" {
		args["system_prompt"] = systemPrompt
	}
	return args
}

func pageArgs(args map[string]any, page, pageSize int) map[string]any {
	if page > 0 {
		args["page"] = page
	}
	if pageSize > 0 {
		args["page_size"] = pageSize
	}
	return args
}

func splitModel(param, value string) (provider, model string, err error) {
	provider, model, ok := strings.Cut(value, ":")
	if !ok || provider == "" || model == "" {
		e := NewError("INVALID_PARAMETER", fmt.Sprintf("%s must have the form provider:model, got %q", param, value))
		e.Context["parameter"] = param
		return "", "", e
	}
	return provider, model, nil
}
