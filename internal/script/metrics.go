// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package script

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status constants for lifecycle operation metrics.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation labels.
const (
	OperationLoad   = "load"
	OperationUnload = "unload"
	OperationReload = "reload"
)

// Handler kinds.
const (
	KindListener   = "listener"
	KindCommand    = "command"
	KindCompletion = "completion"
)

// ScriptOperations counts lifecycle operations.
// Use RegisterMetrics to register this with a Prometheus registry.
var ScriptOperations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "holoscript_script_operations_total",
		Help: "Total number of script lifecycle operations",
	},
	[]string{"operation", "status"},
)

// ScriptsLoaded tracks the number of published scripts.
var ScriptsLoaded = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "holoscript_scripts_loaded",
		Help: "Number of currently loaded scripts",
	},
)

// LoadDuration observes how long a successful or failed load took.
var LoadDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "holoscript_script_load_duration_seconds",
		Help:    "Script load duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"status"},
)

// HandlerDuration observes time spent inside script callbacks.
var HandlerDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "holoscript_script_handler_duration_seconds",
		Help:    "Time spent in script event, command and completion handlers",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"script", "kind", "name"},
)

// RegisterMetrics registers script metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(ScriptOperations)
	reg.MustRegister(ScriptsLoaded)
	reg.MustRegister(LoadDuration)
	reg.MustRegister(HandlerDuration)
}

func recordOperation(operation string, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	ScriptOperations.WithLabelValues(operation, status).Inc()
}

func recordLoadDuration(err error, d time.Duration) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	LoadDuration.WithLabelValues(status).Observe(d.Seconds())
}

// observeHandler returns a func that records the elapsed time when called.
func observeHandler(namespace, kind, name string) func() {
	start := time.Now()
	return func() {
		HandlerDuration.WithLabelValues(namespace, kind, name).Observe(time.Since(start).Seconds())
	}
}
