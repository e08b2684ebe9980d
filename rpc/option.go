// Copyright (c) Microsoft. All rights reserved.

package rpc

import (
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// clientConfig holds resolved configuration for the RPC client.
type clientConfig struct {
	baseURL         string
	httpClient      *http.Client
	timeout         time.Duration
	headers         map[string]string
	tokenCredential azcore.TokenCredential
	tokenScopes     []string
	logger          *zap.Logger
	registerer      prometheus.Registerer
	limiter         *rate.Limiter
	clientName      string
	clientVersion   string
}

// Option configures an RPC [Client].
type Option func(*clientConfig)

// WithBaseURL overrides the server base URL. A trailing slash is ignored.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) { c.baseURL = url }
}

// WithHTTPClient provides a custom http.Client for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) { c.httpClient = client }
}

// WithTimeout bounds each unary call and the wait for a stream's first event.
// Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.timeout = d }
}

// WithHeaders adds custom headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *clientConfig) { c.headers = headers }
}

// WithTokenCredential authenticates with bearer tokens obtained from cred
// for scopes instead of the static API key. Tokens are requested per call;
// credentials cache and refresh them.
func WithTokenCredential(cred azcore.TokenCredential, scopes ...string) Option {
	return func(c *clientConfig) {
		c.tokenCredential = cred
		c.tokenScopes = scopes
	}
}

// WithLogger sets the logger. The default discards all output.
func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// WithMetrics registers the client's request and stream collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *clientConfig) { c.registerer = reg }
}

// WithRateLimit limits outgoing requests to rps per second with the given
// burst. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *clientConfig) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithClientInfo sets the name and version sent by [Client.Initialize].
func WithClientInfo(name, version string) Option {
	return func(c *clientConfig) {
		c.clientName = name
		c.clientVersion = version
	}
}
