// Package metrics provides Prometheus metrics for the slipsync state layer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the slipsync service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Key/value store adapter
	storageOps      *prometheus.CounterVec
	storageLatency  *prometheus.HistogramVec
	storageDecode   *prometheus.CounterVec
	storageSkipped  *prometheus.CounterVec
	storageAreaSize *prometheus.GaugeVec

	// Cross-context notifications
	notifyPublished *prometheus.CounterVec
	notifyReceived  *prometheus.CounterVec
	notifyDropped   *prometheus.CounterVec
	notifyFiltered  *prometheus.CounterVec
	dispatchLatency prometheus.Histogram

	// Notification queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Reactive containers
	containerUpdates      *prometheus.CounterVec
	containerNoops        *prometheus.CounterVec
	containerEmissions    *prometheus.CounterVec
	containerObservations *prometheus.GaugeVec

	// Betslip
	betslipOps  *prometheus.CounterVec
	betslipSize prometheus.Gauge
	betslipType *prometheus.GaugeVec

	// Catalog
	catalogFetches      *prometheus.CounterVec
	catalogFetchLatency prometheus.Histogram
	catalogEvents       prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorRateByComponent *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegisterer(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "slipsync",
		subsystem:        "state",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	fast := []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250}

	m.storageOps = m.counterVec("storage_operations_total",
		"Key/value store operations by area, operation and result", "area", "op", "result")
	m.storageLatency = m.histogramVec("storage_operation_duration_milliseconds",
		"Key/value store operation latency in milliseconds", fast, "area", "op")
	m.storageDecode = m.counterVec("storage_decode_failures_total",
		"Stored records rejected on read (malformed JSON or schema mismatch)", "area", "reason")
	m.storageSkipped = m.counterVec("storage_writes_skipped_total",
		"Writes skipped because the value could not be serialized", "area")
	m.storageAreaSize = m.gaugeVec("storage_area_keys",
		"Number of keys held by an in-memory area", "area")

	m.notifyPublished = m.counterVec("notifications_published_total",
		"Storage change notifications published by this context", "area", "transport")
	m.notifyReceived = m.counterVec("notifications_received_total",
		"Storage change notifications received from a transport", "transport")
	m.notifyDropped = m.counterVec("notifications_dropped_total",
		"Storage change notifications dropped before delivery", "reason")
	m.notifyFiltered = m.counterVec("notifications_filtered_total",
		"Storage change notifications filtered out by a listener", "reason")
	m.dispatchLatency = m.histogram("notification_dispatch_latency_milliseconds",
		"Time from publish to in-process delivery in milliseconds", m.histogramBuckets)

	m.queueSize = m.gauge("queue_size", "Current size of the notification queue (backlog indicator)")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the notification queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Notification queue utilization ratio (0.0 to 1.0)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of notifications enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of notifications dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")

	m.containerUpdates = m.counterVec("container_updates_total",
		"State changes applied by a container", "container")
	m.containerNoops = m.counterVec("container_noop_updates_total",
		"Updates short-circuited because the value did not change", "container")
	m.containerEmissions = m.counterVec("container_emissions_total",
		"Values pushed to observers", "container")
	m.containerObservations = m.gaugeVec("container_active_observations",
		"Live observations per container", "container")

	m.betslipOps = m.counterVec("betslip_operations_total",
		"Betslip operations by kind and result", "op", "result")
	m.betslipSize = m.gauge("betslip_bets", "Number of bets on the betslip")
	m.betslipType = m.gaugeVec("betslip_type", "Current betslip type (1 for the active type)", "type")

	m.catalogFetches = m.counterVec("catalog_fetches_total",
		"Catalog fetches by source and result", "source", "result")
	m.catalogFetchLatency = m.histogram("catalog_fetch_duration_milliseconds",
		"Catalog fetch latency in milliseconds", []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000})
	m.catalogEvents = m.gauge("catalog_events", "Number of labeled events in the catalog")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.histogramBuckets, "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Total errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of active goroutines")
}

// Storage Metrics Functions.

// RecordStorageOp records one key/value operation and its latency.
func RecordStorageOp(area, op, result string, latency time.Duration) {
	globalManager.storageOps.WithLabelValues(area, op, result).Inc()
	globalManager.storageLatency.WithLabelValues(area, op).Observe(float64(latency.Microseconds()) / 1000)
}

// RecordStorageDecodeFailure records a stored record rejected on read.
func RecordStorageDecodeFailure(area, reason string) {
	globalManager.storageDecode.WithLabelValues(area, reason).Inc()
}

// RecordStorageWriteSkipped records a write skipped on serialization failure.
func RecordStorageWriteSkipped(area string) {
	globalManager.storageSkipped.WithLabelValues(area).Inc()
}

// UpdateStorageAreaSize sets the key count of an in-memory area.
func UpdateStorageAreaSize(area string, n int) {
	globalManager.storageAreaSize.WithLabelValues(area).Set(float64(n))
}

// Notification Metrics Functions.

// RecordNotificationPublished counts a published storage notification.
func RecordNotificationPublished(area, transport string) {
	globalManager.notifyPublished.WithLabelValues(area, transport).Inc()
}

// RecordNotificationReceived counts a notification received from a transport.
func RecordNotificationReceived(transport string) {
	globalManager.notifyReceived.WithLabelValues(transport).Inc()
}

// RecordNotificationDropped counts a notification dropped before delivery.
func RecordNotificationDropped(reason string) {
	globalManager.notifyDropped.WithLabelValues(reason).Inc()
}

// RecordNotificationFiltered counts a notification a listener filtered out.
func RecordNotificationFiltered(reason string) {
	globalManager.notifyFiltered.WithLabelValues(reason).Inc()
}

// RecordDispatchLatency records publish-to-delivery latency.
func RecordDispatchLatency(latency time.Duration) {
	globalManager.dispatchLatency.Observe(float64(latency.Microseconds()) / 1000)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Container Metrics Functions.

// RecordContainerUpdate counts an applied state change.
func RecordContainerUpdate(container string) {
	globalManager.containerUpdates.WithLabelValues(container).Inc()
}

// RecordContainerNoop counts an update that did not change the value.
func RecordContainerNoop(container string) {
	globalManager.containerNoops.WithLabelValues(container).Inc()
}

// RecordContainerEmission counts a value pushed to an observer.
func RecordContainerEmission(container string) {
	globalManager.containerEmissions.WithLabelValues(container).Inc()
}

// AddContainerObservations adjusts the live observation gauge by delta.
func AddContainerObservations(container string, delta int) {
	globalManager.containerObservations.WithLabelValues(container).Add(float64(delta))
}

// Betslip Metrics Functions.

// RecordBetslipOp counts a betslip operation.
func RecordBetslipOp(op, result string) {
	globalManager.betslipOps.WithLabelValues(op, result).Inc()
}

// UpdateBetslip publishes the bet count and marks the active ticket type.
func UpdateBetslip(size int, ticketType string, allTypes []string) {
	globalManager.betslipSize.Set(float64(size))
	for _, t := range allTypes {
		v := 0.0
		if t == ticketType {
			v = 1
		}
		globalManager.betslipType.WithLabelValues(t).Set(v)
	}
}

// Catalog Metrics Functions.

// RecordCatalogFetch records one catalog fetch.
func RecordCatalogFetch(source, result string, latency time.Duration) {
	globalManager.catalogFetches.WithLabelValues(source, result).Inc()
	globalManager.catalogFetchLatency.Observe(float64(latency.Milliseconds()))
}

// UpdateCatalogEvents sets the number of labeled catalog events.
func UpdateCatalogEvents(n int) {
	globalManager.catalogEvents.Set(float64(n))
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
