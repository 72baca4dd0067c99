package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/config"
)

// Namespace prefixes every exported metric
const Namespace = "awcf"

// Checkout validation outcomes
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

// Manager defines the interface for metrics management
type Manager interface {
	// HTTP Metrics
	RecordHTTPRequest(method, route, status string, duration time.Duration)

	// Checkout Metrics
	RecordCheckoutValidation(outcome string, fieldErrors int)
	RecordCompanyOrder(isCompany bool)

	// Admin Metrics
	RecordSettingsSave(action string)
	RecordAuthAttempt(method string, success bool)

	// System Metrics
	UpdateSystemMetrics(stats *SystemStats)

	GetMetricsHandler() http.Handler
	IsHealthy() bool
	Middleware() func(http.Handler) http.Handler

	// Lifecycle
	Start(ctx context.Context) error
	Stop() error
}

// metricsManager implements the Manager interface using Prometheus
type metricsManager struct {
	registry *prometheus.Registry
	system   *SystemMetricsTracker
	interval time.Duration
	logger   *logrus.Logger

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	checkoutValidationsTotal *prometheus.CounterVec
	checkoutFieldErrorsTotal prometheus.Counter
	companyOrdersTotal       *prometheus.CounterVec

	settingsSavesTotal *prometheus.CounterVec
	authAttemptsTotal  *prometheus.CounterVec

	systemMemoryUsage prometheus.Gauge
	systemDiskUsage   prometheus.Gauge
	processRSSBytes   prometheus.Gauge

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// NewManager creates a metrics manager. A disabled config yields a manager
// that records nothing.
func NewManager(cfg config.MetricsConfig, system *SystemMetricsTracker, logger *logrus.Logger) Manager {
	if !cfg.Enable {
		return &noopManager{}
	}
	if logger == nil {
		logger = logrus.New()
	}

	m := &metricsManager{
		registry: prometheus.NewRegistry(),
		system:   system,
		interval: 15 * time.Second,
		logger:   logger,
	}
	m.initializeMetrics()
	return m
}

func (m *metricsManager) initializeMetrics() {
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.checkoutValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "checkout",
			Name:      "validations_total",
			Help:      "Checkout submissions validated, by outcome",
		},
		[]string{"outcome"},
	)

	m.checkoutFieldErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "checkout",
			Name:      "field_errors_total",
			Help:      "Required-field errors reported to shoppers",
		},
	)

	m.companyOrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "checkout",
			Name:      "orders_total",
			Help:      "Orders stored with VAT mode on, by buyer type",
		},
		[]string{"buyer"},
	)

	m.settingsSavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "settings",
			Name:      "saves_total",
			Help:      "Settings record writes, by action",
		},
		[]string{"action"},
	)

	m.authAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Admin authentication attempts",
		},
		[]string{"method", "result"},
	)

	m.systemMemoryUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "system",
		Name:      "memory_used_percent",
		Help:      "Host memory usage percentage",
	})

	m.systemDiskUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "system",
		Name:      "data_disk_used_percent",
		Help:      "Usage percentage of the filesystem holding the data directory",
	})

	m.processRSSBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "system",
		Name:      "process_rss_bytes",
		Help:      "Resident set size of the service process",
	})

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.checkoutValidationsTotal,
		m.checkoutFieldErrorsTotal,
		m.companyOrdersTotal,
		m.settingsSavesTotal,
		m.authAttemptsTotal,
		m.systemMemoryUsage,
		m.systemDiskUsage,
		m.processRSSBytes,
		collectors.NewGoCollector(),
	)
}

func (m *metricsManager) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *metricsManager) RecordCheckoutValidation(outcome string, fieldErrors int) {
	m.checkoutValidationsTotal.WithLabelValues(outcome).Inc()
	if fieldErrors > 0 {
		m.checkoutFieldErrorsTotal.Add(float64(fieldErrors))
	}
}

func (m *metricsManager) RecordCompanyOrder(isCompany bool) {
	buyer := "person"
	if isCompany {
		buyer = "company"
	}
	m.companyOrdersTotal.WithLabelValues(buyer).Inc()
}

func (m *metricsManager) RecordSettingsSave(action string) {
	m.settingsSavesTotal.WithLabelValues(action).Inc()
}

func (m *metricsManager) RecordAuthAttempt(method string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.authAttemptsTotal.WithLabelValues(method, result).Inc()
}

func (m *metricsManager) UpdateSystemMetrics(stats *SystemStats) {
	if stats == nil {
		return
	}
	if stats.Memory != nil {
		m.systemMemoryUsage.Set(stats.Memory.UsedPercent)
		m.processRSSBytes.Set(float64(stats.Memory.ProcessBytes))
	}
	if stats.Disk != nil {
		m.systemDiskUsage.Set(stats.Disk.UsedPercent)
	}
}

func (m *metricsManager) GetMetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsManager) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Middleware records one request per matched route. Unmatched requests are
// labelled by a fixed placeholder to keep label cardinality bounded.
func (m *metricsManager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriterWrapper{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			m.RecordHTTPRequest(r.Method, routeLabel(r), strconv.Itoa(wrapped.statusCode), time.Since(start))
		})
	}
}

func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// Start begins sampling system metrics until ctx is done or Stop is called
func (m *metricsManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("metrics manager already started")
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.started = true

	go m.sampleLoop(ctx)
	return nil
}

func (m *metricsManager) sampleLoop(ctx context.Context) {
	defer close(m.done)
	if m.system == nil {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.UpdateSystemMetrics(m.system.Snapshot(ctx))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *metricsManager) Stop() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return fmt.Errorf("metrics manager not started")
	}
	m.started = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done
	m.logger.Debug("Metrics sampling stopped")
	return nil
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// noopManager is a no-op implementation when metrics are disabled
type noopManager struct{}

func (n *noopManager) RecordHTTPRequest(method, route, status string, duration time.Duration) {}
func (n *noopManager) RecordCheckoutValidation(outcome string, fieldErrors int)               {}
func (n *noopManager) RecordCompanyOrder(isCompany bool)                                      {}
func (n *noopManager) RecordSettingsSave(action string)                                       {}
func (n *noopManager) RecordAuthAttempt(method string, success bool)                          {}
func (n *noopManager) UpdateSystemMetrics(stats *SystemStats)                                 {}
func (n *noopManager) GetMetricsHandler() http.Handler                                        { return http.NotFoundHandler() }
func (n *noopManager) IsHealthy() bool                                                        { return true }
func (n *noopManager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}
func (n *noopManager) Start(ctx context.Context) error { return nil }
func (n *noopManager) Stop() error                     { return nil }
