// Copyright (c) Microsoft. All rights reserved.

package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/shadai-group/shadai/shadai"
)

const jsonrpcVersion = "2.0"

// MCPProtocolVersion is the protocol revision announced by [Client.Initialize].
const MCPProtocolVersion = "2024-11-05"

// request is a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      string `json:"id"`
}

func newRequest(method string, params any) request {
	if params == nil {
		params = map[string]any{}
	}
	return request{JSONRPC: jsonrpcVersion, Method: method, Params: params, ID: uuid.NewString()}
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   map[string]any  `json:"error,omitempty"`
}

type toolCallParams struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}

func toolCall(name string, args any) toolCallParams {
	if args == nil {
		args = map[string]any{}
	}
	return toolCallParams{Name: name, Arguments: args}
}

// decodeResponse parses a JSON-RPC response and checks it answers req.
func decodeResponse(body []byte, req request) (*response, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, shadai.ProtocolError("response is not valid JSON-RPC: "+err.Error(), string(body))
	}
	if err := checkID(resp.ID, req.ID); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, translateRPCError(resp.Error)
	}
	return &resp, nil
}

func checkID(raw json.RawMessage, want string) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var got string
	if err := json.Unmarshal(raw, &got); err != nil || got != want {
		return shadai.ProtocolError(fmt.Sprintf("response id %s does not match request id %q", raw, want), "")
	}
	return nil
}

// translateRPCError converts a JSON-RPC error object. When its data carries a
// standardized error object that is translated instead.
func translateRPCError(obj map[string]any) error {
	if data, ok := obj["data"].(map[string]any); ok {
		if _, isEnvelope := data["success"]; isEnvelope {
			if _, err := shadai.UnwrapValue(data, nil); err != nil {
				return err
			}
		}
		if code, ok := data["code"].(string); ok && code != "" {
			return shadai.TranslateError(data)
		}
	}

	msg, _ := obj["message"].(string)
	if msg == "" {
		msg = "Unknown error"
	}
	e := shadai.NewError(shadai.CodeServer, fmt.Sprintf("%s (code: %v)", msg, obj["code"]))
	if code, ok := obj["code"]; ok {
		e.Context["rpc_code"] = code
	}
	if data, ok := obj["data"]; ok && data != nil {
		e.Context["rpc_data"] = data
	}
	return e
}

// toolResult extracts the envelope from a tools/call result and unwraps it.
func toolResult(raw json.RawMessage) (any, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, shadai.ProtocolError("tool result is not valid JSON: "+err.Error(), string(raw))
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return shadai.UnwrapValue(v, raw)
	}
	content, ok := obj["content"].([]any)
	if !ok {
		return shadai.UnwrapValue(v, raw)
	}

	isError, _ := obj["isError"].(bool)
	if len(content) == 0 {
		if isError {
			return nil, shadai.NewError(shadai.CodeServer, "tool reported an error without content")
		}
		return map[string]any{}, nil
	}
	first, _ := content[0].(map[string]any)
	text, _ := first["text"].(string)
	if text == "" {
		if isError {
			return nil, shadai.NewError(shadai.CodeServer, "tool reported an error without content")
		}
		return map[string]any{}, nil
	}

	data, err := shadai.Unwrap([]byte(text))
	if err != nil {
		if isError && isProtocolError(err) {
			return nil, shadai.NewError(shadai.CodeServer, text)
		}
		return nil, err
	}
	if isError {
		return nil, shadai.NewError(shadai.CodeServer, text)
	}
	return data, nil
}

func isProtocolError(err error) bool {
	e, ok := err.(*shadai.Error)
	return ok && e.Code == shadai.CodeProtocol
}
