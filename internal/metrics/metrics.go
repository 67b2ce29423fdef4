package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the application metrics
type Metrics struct {
	// HTTP request metrics
	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Storage operation metrics
	StorageOperationTotal    *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec

	// Event publishing metrics
	EventPublishTotal    *prometheus.CounterVec
	EventPublishDuration *prometheus.HistogramVec

	// Schema validation metrics
	SchemaValidationTotal    *prometheus.CounterVec
	SchemaValidationDuration *prometheus.HistogramVec

	// Engine metrics
	NavigationTransitions *prometheus.CounterVec // by action: enter, back, exit, dropped
	DispatchRoutes        *prometheus.CounterVec // by route: external, player
	PlaybackPhases        *prometheus.CounterVec // phase changes by phase
	ActiveSessions        *prometheus.GaugeVec   // open sessions by kind: navigation, playback

	// Live schedule metrics
	LivePhaseTransitions *prometheus.CounterVec // live class phase changes by new phase
	LiveClocks           prometheus.Gauge       // running live class clocks
}

// Global metrics instance with mutex for thread safety
var (
	globalMetrics *Metrics
	metricsMutex  sync.Mutex
)

// NewMetrics creates a new Metrics instance with all required metrics
func NewMetrics() *Metrics {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	// Return existing instance if already created
	if globalMetrics != nil {
		return globalMetrics
	}

	m := &Metrics{
		// HTTP request metrics
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		// Storage operation metrics
		StorageOperationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storage_operations_total",
			Help: "Total number of storage operations",
		}, []string{"operation", "status"}),

		StorageOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"}),

		// Event publishing metrics
		EventPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "event_publish_total",
			Help: "Total number of event publish operations",
		}, []string{"event_type", "status"}),

		EventPublishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "event_publish_duration_seconds",
			Help:    "Event publish duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"event_type", "status"}),

		// Schema validation metrics
		SchemaValidationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schema_validation_total",
			Help: "Total number of schema validation operations",
		}, []string{"schema", "status"}),

		SchemaValidationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "schema_validation_duration_seconds",
			Help:    "Schema validation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"schema", "status"}),

		// Engine metrics
		NavigationTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "navigation_transitions_total",
			Help: "Navigation requests by action and outcome",
		}, []string{"action", "outcome"}),

		DispatchRoutes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_routes_total",
			Help: "Content selections by resulting route",
		}, []string{"route", "status"}),

		PlaybackPhases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playback_phase_changes_total",
			Help: "Playback phase changes by new phase and playback type",
		}, []string{"phase", "type"}),

		ActiveSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catalog_active_sessions",
			Help: "Open engine sessions by kind",
		}, []string{"kind"}),

		// Live schedule metrics
		LivePhaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "live_phase_transitions_total",
			Help: "Live class phase changes by new phase",
		}, []string{"phase"}),

		LiveClocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_live_clocks",
			Help: "Live class phase clocks currently ticking",
		}),
	}

	// Register metrics with the default registry
	registerMetrics(m)

	// Store as global instance
	globalMetrics = m

	return m
}

// registerMetrics registers all metrics with the default registry
func registerMetrics(m *Metrics) {
	// Try to register each metric, ignore if already registered
	registerOrGet(m.HTTPRequestTotal)
	registerOrGet(m.HTTPRequestDuration)
	registerOrGet(m.StorageOperationTotal)
	registerOrGet(m.StorageOperationDuration)
	registerOrGet(m.EventPublishTotal)
	registerOrGet(m.EventPublishDuration)
	registerOrGet(m.SchemaValidationTotal)
	registerOrGet(m.SchemaValidationDuration)
	registerOrGet(m.NavigationTransitions)
	registerOrGet(m.DispatchRoutes)
	registerOrGet(m.PlaybackPhases)
	registerOrGet(m.ActiveSessions)
	registerOrGet(m.LivePhaseTransitions)
	registerOrGet(m.LiveClocks)
}

// registerOrGet tries to register a metric, returns the existing one if already registered
func registerOrGet(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		// If already registered, return the existing collector
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}
	return c
}
