// Copyright 2026 Swarm Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics holds the Prometheus collectors for the swarm backend.
// Collectors live on a private registry so parallel test instances do not
// collide on the global default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the backend records into.
type Metrics struct {
	registry *prometheus.Registry

	SessionsCreated   prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsFailed    prometheus.Counter
	FallbackAttempts  prometheus.Counter
	FallbackSuccesses prometheus.Counter
	StreamChunks      prometheus.Counter
	MessagesHandled   *prometheus.CounterVec

	Connections prometheus.Gauge
	Rooms       prometheus.Gauge

	UpstreamLatency prometheus.Histogram
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "swarm_streaming_sessions_created_total",
			Help: "Streaming sessions created.",
		}),
		SessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "swarm_streaming_sessions_completed_total",
			Help: "Streaming sessions completed with content.",
		}),
		SessionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "swarm_streaming_sessions_failed_total",
			Help: "Streaming sessions that ended in a user-facing error.",
		}),
		FallbackAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "swarm_streaming_fallback_attempts_total",
			Help: "Buffered fallback calls issued after a failed stream.",
		}),
		FallbackSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "swarm_streaming_fallback_successes_total",
			Help: "Buffered fallback calls that produced content.",
		}),
		StreamChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "swarm_stream_chunks_total",
			Help: "Content deltas forwarded to clients.",
		}),
		MessagesHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "swarm_messages_handled_total",
			Help: "Inbound WebSocket events handled, by event name.",
		}, []string{"event"}),
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "swarm_connections",
			Help: "Currently attached client connections.",
		}),
		Rooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "swarm_collaboration_rooms",
			Help: "Currently active collaboration rooms.",
		}),
		UpstreamLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "swarm_upstream_request_seconds",
			Help:    "Latency of upstream completion calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
