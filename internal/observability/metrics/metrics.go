package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "coatline_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	engineTotal   *prometheus.CounterVec
	engineLatency *prometheus.HistogramVec
	lockTimeouts  *prometheus.CounterVec
	cacheErrors   *prometheus.CounterVec

	plansAutoRegistered *prometheus.CounterVec

	messagesTotal  *prometheus.CounterVec
	decodeErrors   *prometheus.CounterVec
	publishTotal   *prometheus.CounterVec
	reconnectTotal prometheus.Counter

	alarmEventsTotal *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		engineTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "engine_samples_total",
				Help: "Total telemetry samples processed by the line state engine by result",
			},
			[]string{"result"},
		)
		engineLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "engine_latency_seconds",
				Help:    "Line state engine latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		lockTimeouts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "line_lock_timeouts_total",
				Help: "Samples skipped because the line lock was busy",
			},
			[]string{"line"},
		)
		cacheErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cache_errors_total",
				Help: "Shared cache failures by operation",
			},
			[]string{"op"},
		)

		plansAutoRegistered = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "plans_auto_registered_total",
				Help: "Production plans created on first observation by line",
			},
			[]string{"line"},
		)

		messagesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "gateway_messages_total",
				Help: "Total gateway messages by kind and result",
			},
			[]string{"kind", "result"},
		)
		decodeErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "gateway_decode_errors_total",
				Help: "Malformed payloads dropped by kind",
			},
			[]string{"kind"},
		)
		publishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "gateway_publish_total",
				Help: "Snapshot publishes by result",
			},
			[]string{"result"},
		)
		reconnectTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "gateway_reconnects_total",
				Help: "Broker reconnects",
			},
		)

		alarmEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_events_total",
				Help: "Total alarm signals by outcome",
			},
			[]string{"event"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Total report exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			engineTotal,
			engineLatency,
			lockTimeouts,
			cacheErrors,
			plansAutoRegistered,
			messagesTotal,
			decodeErrors,
			publishTotal,
			reconnectTotal,
			alarmEventsTotal,
			exportTotal,
			exportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveEngine records engine duration and result.
func ObserveEngine(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if engineTotal != nil {
		engineTotal.WithLabelValues(result).Inc()
	}
	if engineLatency != nil {
		engineLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncLockTimeout counts a sample skipped on a busy line.
func IncLockTimeout(line string) {
	if line == "" {
		line = "unknown"
	}
	if lockTimeouts != nil {
		lockTimeouts.WithLabelValues(line).Inc()
	}
}

// IncCacheError counts a shared cache failure.
func IncCacheError(op string) {
	if op == "" {
		op = "unknown"
	}
	if cacheErrors != nil {
		cacheErrors.WithLabelValues(op).Inc()
	}
}

// IncPlanAutoRegistered counts an auto-created production plan.
func IncPlanAutoRegistered(line string) {
	if line == "" {
		line = "unknown"
	}
	if plansAutoRegistered != nil {
		plansAutoRegistered.WithLabelValues(line).Inc()
	}
}

// IncMessage counts a gateway message outcome.
func IncMessage(kind, result string) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if messagesTotal != nil {
		messagesTotal.WithLabelValues(kind, result).Inc()
	}
}

// IncDecodeError counts a dropped malformed payload.
func IncDecodeError(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if decodeErrors != nil {
		decodeErrors.WithLabelValues(kind).Inc()
	}
}

// IncPublish counts a snapshot publish.
func IncPublish(result string) {
	if result == "" {
		result = resultSuccess
	}
	if publishTotal != nil {
		publishTotal.WithLabelValues(result).Inc()
	}
}

// IncReconnect counts a broker reconnect.
func IncReconnect() {
	if reconnectTotal != nil {
		reconnectTotal.Inc()
	}
}

// IncAlarmEvent increments alarm outcome counters.
func IncAlarmEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if alarmEventsTotal != nil {
		alarmEventsTotal.WithLabelValues(event).Inc()
	}
}

// ObserveExport records report export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
