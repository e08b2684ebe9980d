// Copyright (c) Microsoft. All rights reserved.

package rpc

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/shadai-group/shadai/shadai"
)

// sseReader yields the data payloads of server-sent events. Consecutive data
// lines are joined with newlines; an event ends at a blank line, or at the
// next data line once the pending payload is already a complete JSON value.
type sseReader struct {
	scanner *bufio.Scanner
	pending []string
}

func newSSEReader(r io.Reader) *sseReader {
	scanner := bufio.NewScanner(r)
	// Allow large SSE lines (tool results can be substantial).
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseReader{scanner: scanner}
}

// next returns the next event payload, or io.EOF once the stream is exhausted.
func (r *sseReader) next() (string, error) {
	for r.scanner.Scan() {
		line := strings.TrimRight(r.scanner.Text(), "\r")
		if line == "" {
			if len(r.pending) > 0 {
				return r.flush(), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			continue
		}
		value = strings.TrimPrefix(value, " ")

		if len(r.pending) > 0 && json.Valid([]byte(r.joined())) {
			event := r.flush()
			r.pending = append(r.pending, value)
			return event, nil
		}
		r.pending = append(r.pending, value)
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	if len(r.pending) > 0 {
		return r.flush(), nil
	}
	return "", io.EOF
}

func (r *sseReader) joined() string { return strings.Join(r.pending, "\n") }

func (r *sseReader) flush() string {
	s := strings.TrimSpace(r.joined())
	r.pending = r.pending[:0]
	return s
}

// streamEvent is a decoded stream event.
type streamEvent struct {
	fragment string
	terminal bool
	data     any
	err      error
}

// classifyEvent decodes one payload. Progress notifications carry text
// fragments; a JSON-RPC response or a bare envelope is the terminal event.
// ok is false for payloads that are skipped.
func classifyEvent(payload string) (ev streamEvent, ok bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(payload), &obj); err != nil || obj == nil {
		return ev, false
	}

	if method, _ := obj["method"].(string); method != "" {
		if method != "notifications/progress" {
			return ev, false
		}
		params, _ := obj["params"].(map[string]any)
		frag, _ := params["progress"].(string)
		if frag == "" {
			return ev, false
		}
		return streamEvent{fragment: frag}, true
	}

	if rpcErr, isErr := obj["error"].(map[string]any); isErr && obj["success"] == nil {
		return streamEvent{terminal: true, err: translateRPCError(rpcErr)}, true
	}
	if result, isResult := obj["result"]; isResult {
		raw, _ := json.Marshal(result)
		data, err := toolResult(raw)
		return streamEvent{terminal: true, data: data, err: err}, true
	}
	if _, isEnvelope := obj["success"]; isEnvelope {
		data, err := shadai.UnwrapValue(obj, []byte(payload))
		return streamEvent{terminal: true, data: data, err: err}, true
	}
	return ev, false
}
