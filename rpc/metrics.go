// Copyright (c) Microsoft. All rights reserved.

package rpc

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shadai-group/shadai/shadai"
)

// metrics holds the client's collectors. A nil *metrics records nothing.
type metrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	fragments *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shadai",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "RPC calls by method, tool and outcome.",
		}, []string{"method", "tool", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shadai",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "RPC call latency; for streams, until the stream ends.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "tool"}),
		fragments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shadai",
			Subsystem: "stream",
			Name:      "fragments_total",
			Help:      "Text fragments received on streams by tool.",
		}, []string{"tool"}),
	}
	m.requests = register(reg, m.requests)
	m.duration = register(reg, m.duration)
	m.fragments = register(reg, m.fragments)
	return m
}

// register registers c, reusing an identical collector registered earlier by
// another client on the same registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *metrics) observe(method, tool string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, tool, outcome(err)).Inc()
	m.duration.WithLabelValues(method, tool).Observe(time.Since(start).Seconds())
}

func (m *metrics) fragment(tool string) {
	if m == nil {
		return
	}
	m.fragments.WithLabelValues(tool).Inc()
}

// outcome labels a call result: "success", "canceled" or the error category.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var e *shadai.Error
	if errors.As(err, &e) {
		return string(e.Category)
	}
	return "error"
}
