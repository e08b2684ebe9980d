// Copyright (c) Microsoft. All rights reserved.

package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shadai-group/shadai/shadai"
)

const (
	defaultBaseURL = "http://localhost"

	pathRPC    = "/mcp/rpc"
	pathStream = "/mcp/stream"
	pathHealth = "/mcp/health"
)

// errTimedOut is the context cause set when the configured timeout elapses.
var errTimedOut = errors.New("rpc: timeout elapsed")

// transport is an unexported interface for HTTP communication.
// The default implementation uses net/http; tests inject a mock.
type transport interface {
	do(ctx context.Context, method, path string, body any, stream bool) (*http.Response, error)
}

// httpTransport is the default transport using net/http.
type httpTransport struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	headers     map[string]string
	credential  azcore.TokenCredential
	tokenScopes []string
	limiter     *rate.Limiter
	logger      *zap.Logger
}

func newHTTPTransport(apiKey string, cfg *clientConfig) *httpTransport {
	t := &httpTransport{
		client:      cfg.httpClient,
		baseURL:     strings.TrimRight(cfg.baseURL, "/"),
		apiKey:      apiKey,
		headers:     cfg.headers,
		credential:  cfg.tokenCredential,
		tokenScopes: cfg.tokenScopes,
		limiter:     cfg.limiter,
		logger:      cfg.logger,
	}
	if t.client == nil {
		t.client = http.DefaultClient
	}
	if t.baseURL == "" {
		t.baseURL = defaultBaseURL
	}
	return t
}

// do sends one request. Status 401 is reported as an authentication error
// without looking at the body; other error statuses are translated from the
// body. The caller owns the returned response body.
func (t *httpTransport) do(ctx context.Context, method, path string, body any, stream bool) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal request: %v", shadai.ErrShadai, err)
		}
		bodyReader = bytes.NewReader(b)
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, transportError(ctx, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, bodyReader)
	if err != nil {
		return nil, shadai.ConfigurationError("base_url", err.Error())
	}

	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}

	if t.credential != nil {
		t.logger.Debug("acquiring access token", zap.Strings("scopes", t.tokenScopes))
		token, err := t.credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: t.tokenScopes})
		if err != nil {
			e := shadai.AuthenticationError("acquire access token: " + err.Error())
			e.StatusCode = 0
			e.Err = fmt.Errorf("%w: %w", shadai.ErrAuthentication, err)
			return nil, e
		}
		req.Header.Set("Authorization", "Bearer "+token.Token)
	} else if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, shadai.AuthenticationError("Invalid API key")
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, parseErrorResponse(resp)
	}
	return resp, nil
}

// parseErrorResponse translates an error status. A body holding a failed
// envelope or a JSON-RPC error is translated as such; anything else becomes a
// server error carrying the status code.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var v any
	if json.Unmarshal(body, &v) == nil {
		if obj, ok := v.(map[string]any); ok {
			if _, ok := obj["success"]; ok {
				if _, err := shadai.UnwrapValue(obj, body); err != nil {
					return withStatus(err, resp.StatusCode)
				}
			}
			if rpcErr, ok := obj["error"].(map[string]any); ok {
				return withStatus(translateRPCError(rpcErr), resp.StatusCode)
			}
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	e := shadai.NewError(shadai.CodeServer, fmt.Sprintf("server returned %d: %s", resp.StatusCode, msg))
	e.StatusCode = resp.StatusCode
	e.Context["status_code"] = resp.StatusCode
	return e
}

func withStatus(err error, status int) error {
	var e *shadai.Error
	if errors.As(err, &e) && e.StatusCode == 0 {
		e.StatusCode = status
	}
	return err
}

// transportError maps a failed round trip: an elapsed client timeout becomes a
// retriable timeout error, caller cancellation is returned as the context
// error, and everything else is a connection error.
func transportError(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), errTimedOut) {
		return shadai.TimeoutError("no response within the configured timeout")
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return shadai.TimeoutError("request timed out: " + err.Error())
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return shadai.ConnectionError(fmt.Sprintf("failed to connect to server: %v", urlErr.Err), err)
	}
	return shadai.ConnectionError("request failed: "+err.Error(), err)
}
