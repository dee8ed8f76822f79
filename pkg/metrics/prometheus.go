package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	constLabels    prometheus.Labels
	registry       prometheus.Registerer

	// Acquisition
	samplesPushed    prometheus.Counter
	bufferFill       prometheus.Gauge
	sourceRunning    prometheus.Gauge
	sourceReadErrors *prometheus.CounterVec

	// Signal processing
	epochsCaptured     *prometheus.CounterVec
	detections         *prometheus.CounterVec
	detectorRejections *prometheus.CounterVec
	p300Peak           prometheus.Histogram
	motorImageryRatio  prometheus.Histogram

	// Paradigm
	selectionRounds   prometheus.Counter
	selectionDuration prometheus.Histogram
	confirmations     *prometheus.CounterVec
	decisionsRecorded prometheus.Counter

	// Event delivery
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueEnqueued     prometheus.Counter
	queueDequeued     prometheus.Counter
	queueDropped      prometheus.Counter
	workerActiveCount prometheus.Gauge
	workerErrors      prometheus.Counter
	workerLatency     prometheus.Histogram
	websocketClients  prometheus.Gauge

	// Connectors
	chatRequests   *prometheus.CounterVec
	chatLatency    prometheus.Histogram
	spellerPackets *prometheus.CounterVec
	spellerPhrases prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	errorsByComponent   *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // process-wide metrics manager

// Custom registry so the exposition only carries our own series.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process-wide registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager builds a Manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "bci",
		subsystem:      "core",
		latencyBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		registry:       prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.samplesPushed = m.counter("samples_pushed_total", "Samples written into the acquisition ring buffer")
	m.bufferFill = m.gauge("buffer_fill_ratio", "Fraction of the ring buffer holding real samples")
	m.sourceRunning = m.gauge("source_running", "1 while the signal producer goroutine is running")
	m.sourceReadErrors = m.counterVec("source_read_errors_total", "Sample read failures by source kind", "source")

	m.epochsCaptured = m.counterVec("epochs_captured_total", "Epochs extracted from the buffer by tag", "tag")
	m.detections = m.counterVec("detections_total", "Detector decisions by detector and result", "detector", "result")
	m.detectorRejections = m.counterVec("detector_rejections_total",
		"Epochs a detector could not evaluate", "detector", "reason")
	m.p300Peak = m.histogram("p300_peak_microvolts", "Peak filtered amplitude inside the P300 window",
		[]float64{-10, -5, 0, 1, 2, 3, 4, 5, 6, 8, 10, 15, 20, 40})
	m.motorImageryRatio = m.histogram("motor_imagery_ratio", "Left/right mu band power ratio",
		[]float64{0.25, 0.5, 0.7, 0.85, 1, 1.15, 1.3, 2, 4})

	m.selectionRounds = m.counter("selection_rounds_total", "Completed oddball selection rounds")
	m.selectionDuration = m.histogram("selection_duration_seconds", "Wall time of a selection round",
		[]float64{1, 2, 5, 10, 15, 20, 30, 60})
	m.confirmations = m.counterVec("confirmations_total", "Confirmation outcomes", "outcome")
	m.decisionsRecorded = m.counter("decisions_recorded_total", "Decisions stored in the history")

	m.queueSize = m.gauge("queue_size", "Events waiting for delivery")
	m.queueCapacity = m.gauge("queue_capacity", "Event queue capacity")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Events enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Events dequeued")
	m.queueDropped = m.counter("queue_dropped_total", "Events dropped because the queue was full or closed")
	m.workerActiveCount = m.gauge("worker_active_count", "Running event workers")
	m.workerErrors = m.counter("worker_errors_total", "Event publish failures")
	m.workerLatency = m.histogram("worker_processing_latency_milliseconds",
		"Time spent publishing one event", m.latencyBuckets)
	m.websocketClients = m.gauge("websocket_clients", "Connected event stream clients")

	m.chatRequests = m.counterVec("chat_requests_total", "Chat completion requests by result", "result")
	m.chatLatency = m.histogram("chat_latency_seconds", "Chat completion latency",
		[]float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30})
	m.spellerPackets = m.counterVec("speller_packets_total", "Speller packets by decode result", "result")
	m.spellerPhrases = m.counter("speller_phrases_total", "Phrases completed on the speller")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.latencyBuckets,
	}, []string{"endpoint", "method", "status_code"})
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors", "endpoint", "method", "error_type")
	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Last GC pause in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100})
}

// RecordSamplePushed counts one sample written to the ring buffer.
func RecordSamplePushed() { globalManager.samplesPushed.Inc() }

// UpdateBufferFill sets the ring buffer fill ratio.
func UpdateBufferFill(ratio float64) { globalManager.bufferFill.Set(ratio) }

// UpdateSourceRunning flags whether a producer is active.
func UpdateSourceRunning(running bool) {
	if running {
		globalManager.sourceRunning.Set(1)
		return
	}
	globalManager.sourceRunning.Set(0)
}

// RecordSourceReadError counts a failed read for the given source kind.
func RecordSourceReadError(source string) { globalManager.sourceReadErrors.WithLabelValues(source).Inc() }

// RecordEpochCaptured counts an extracted epoch by tag.
func RecordEpochCaptured(tag string) { globalManager.epochsCaptured.WithLabelValues(tag).Inc() }

// RecordDetection counts one detector decision.
func RecordDetection(detector, result string) {
	globalManager.detections.WithLabelValues(detector, result).Inc()
}

// RecordDetectorRejection counts an epoch a detector could not evaluate.
func RecordDetectorRejection(detector, reason string) {
	globalManager.detectorRejections.WithLabelValues(detector, reason).Inc()
}

// ObserveP300Peak records the window peak of an evaluated epoch.
func ObserveP300Peak(peak float64) { globalManager.p300Peak.Observe(peak) }

// ObserveMotorImageryRatio records a band power ratio.
func ObserveMotorImageryRatio(ratio float64) { globalManager.motorImageryRatio.Observe(ratio) }

// RecordSelectionRound counts a completed round and its duration.
func RecordSelectionRound(seconds float64) {
	globalManager.selectionRounds.Inc()
	globalManager.selectionDuration.Observe(seconds)
}

// RecordConfirmation counts a confirmation outcome.
func RecordConfirmation(outcome string) { globalManager.confirmations.WithLabelValues(outcome).Inc() }

// RecordDecision counts a stored decision.
func RecordDecision() { globalManager.decisionsRecorded.Inc() }

// UpdateQueueSize sets the number of pending events.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the event queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueue counts an enqueued event.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue counts a dequeued event.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueDrop counts a dropped event.
func RecordQueueDrop() { globalManager.queueDropped.Inc() }

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// RecordWorkerError counts a publish failure.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordWorkerProcessingLatency records publish latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) { globalManager.workerLatency.Observe(latencyMs) }

// UpdateWebsocketClients sets the number of connected stream clients.
func UpdateWebsocketClients(count int) { globalManager.websocketClients.Set(float64(count)) }

// RecordChatRequest counts a chat completion and its latency.
func RecordChatRequest(result string, seconds float64) {
	globalManager.chatRequests.WithLabelValues(result).Inc()
	globalManager.chatLatency.Observe(seconds)
}

// RecordSpellerPacket counts a decoded or rejected speller packet.
func RecordSpellerPacket(result string) { globalManager.spellerPackets.WithLabelValues(result).Inc() }

// RecordSpellerPhrase counts a completed phrase.
func RecordSpellerPhrase() { globalManager.spellerPhrases.Inc() }

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP latency in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint counts an HTTP error.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByComponent counts an error raised inside a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap bytes in use.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records a GC pause in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the registry holding the service metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
