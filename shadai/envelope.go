// Copyright (c) Microsoft. All rights reserved.

package shadai

import (
	"bytes"
	"encoding/json"
)

// Envelope is the standardized wrapper around every backend result.
// Exactly one of Data and Error is set, consistent with Success.
type Envelope struct {
	Version string          `json:"version,omitempty"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *EnvelopeError  `json:"error,omitempty"`
}

// EnvelopeError is the error object of a failed [Envelope].
type EnvelopeError struct {
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Type        string         `json:"type,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	IsRetriable *bool          `json:"is_retriable,omitempty"`
	Suggestion  *string        `json:"suggestion,omitempty"`

	// camelCase spelling accepted from older servers
	IsRetriableCamel *bool `json:"isRetriable,omitempty"`
}

// Unwrap parses raw and applies the envelope contract:
//
//   - unparseable input yields a protocol *Error carrying the raw text;
//   - {"success":true} yields its data (an empty object when absent);
//   - {"success":false} yields the translated *Error, and is a protocol
//     error when it also carries data;
//   - anything without a "success" field is returned unchanged.
//
// Unwrap never retries and has no side effects.
func Unwrap(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, ProtocolError("response is not valid JSON: "+err.Error(), string(raw))
	}
	if dec.More() {
		return nil, ProtocolError("response has trailing data", string(raw))
	}
	return UnwrapValue(v, raw)
}

// UnwrapValue applies the envelope contract to an already decoded value. raw
// is only used to annotate protocol errors and may be nil.
func UnwrapValue(v any, raw []byte) (any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return v, nil
	}
	successField, ok := obj["success"]
	if !ok {
		return v, nil
	}
	success, ok := successField.(bool)
	if !ok {
		return nil, ProtocolError("envelope field \"success\" is not a boolean", rawText(raw, v))
	}

	errField := obj["error"]
	if success {
		if errField != nil {
			return nil, ProtocolError("successful envelope carries an error", rawText(raw, v))
		}
		data, ok := obj["data"]
		if !ok || data == nil {
			return map[string]any{}, nil
		}
		return data, nil
	}

	if obj["data"] != nil {
		return nil, ProtocolError("failed envelope carries data", rawText(raw, v))
	}
	errObj, ok := errField.(map[string]any)
	if !ok {
		return nil, ProtocolError("failed envelope has no error object", rawText(raw, v))
	}
	return nil, TranslateError(errObj)
}

// TranslateError converts the error object of a failed envelope into an
// *Error. Known codes take their category from the code table; unknown codes
// fall back to the system category with code, message and context kept as sent.
// The backend's retriable flag and suggestion are preserved when present.
func TranslateError(obj map[string]any) *Error {
	b, _ := json.Marshal(obj)
	var ee EnvelopeError
	_ = json.Unmarshal(b, &ee)
	// keep the caller's context values as decoded, without a JSON round trip
	if c, ok := obj["context"].(map[string]any); ok {
		ee.Context = c
	}
	return ee.toError()
}

func (ee *EnvelopeError) toError() *Error {
	code := ee.Code
	if code == "" {
		code = CodeUnknown
	}
	message := ee.Message
	if message == "" {
		message = "An unknown error occurred"
	}

	e := NewError(code, message)
	e.Type = ee.Type
	if ee.Context != nil {
		e.Context = ee.Context
	}
	switch {
	case ee.IsRetriable != nil:
		e.Retriable = *ee.IsRetriable
	case ee.IsRetriableCamel != nil:
		e.Retriable = *ee.IsRetriableCamel
	}
	if ee.Suggestion != nil {
		e.Suggestion = *ee.Suggestion
	}
	return e
}

func rawText(raw []byte, v any) string {
	if raw != nil {
		return string(raw)
	}
	b, _ := json.Marshal(v)
	return string(b)
}
