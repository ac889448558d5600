// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability holds the engine's Prometheus metrics.
//
// Metrics register on the default registry at init and are served
// through Handler. Recording functions are safe for concurrent use.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aura_engine_turns_total",
		Help: "Total chat turns handled, by outcome status",
	}, []string{"status"})

	activeTurns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aura_engine_active_turns",
		Help: "Chat turns currently in flight",
	})

	moodSourceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aura_engine_mood_source_total",
		Help: "Mood classifications by deciding stage",
	}, []string{"source"})

	toolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aura_engine_tool_duration_seconds",
		Help:    "Tool execution time by tool and status",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"tool", "status"})

	composePathTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aura_engine_compose_path_total",
		Help: "Reply composition route taken per turn",
	}, []string{"path"})

	gatewayTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aura_engine_gateway_timeouts_total",
		Help: "Language model gateway calls that hit the generate timeout",
	})
)

// Statuses for turns and tool calls.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// RecordTurn counts one finished turn.
func RecordTurn(status string) {
	turnsTotal.WithLabelValues(status).Inc()
}

// TurnStarted marks a turn in flight. Pair with TurnFinished.
func TurnStarted() {
	activeTurns.Inc()
}

// TurnFinished marks a turn done.
func TurnFinished() {
	activeTurns.Dec()
}

// RecordMoodSource counts which classifier stage decided.
func RecordMoodSource(source string) {
	moodSourceTotal.WithLabelValues(source).Inc()
}

// ObserveToolCall records one tool execution.
func ObserveToolCall(tool, status string, duration time.Duration) {
	toolDuration.WithLabelValues(tool, status).Observe(duration.Seconds())
}

// RecordComposePath counts the composition route taken.
func RecordComposePath(path string) {
	composePathTotal.WithLabelValues(path).Inc()
}

// RecordGatewayTimeout counts a generate call lost to its timeout.
func RecordGatewayTimeout() {
	gatewayTimeoutsTotal.Inc()
}

// Handler serves the default registry for the /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}
