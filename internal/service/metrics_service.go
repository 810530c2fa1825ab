package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/school-ops-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides
// lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	leavesSubmitted *prometheus.CounterVec
	remindersSent   prometheus.Counter
	coversAssigned  prometheus.Counter
	coverGaps       prometheus.Counter
	webhooksIn      *prometheus.CounterVec
	driveUploads    *prometheus.CounterVec
	cacheOps        *prometheus.CounterVec

	requestCount         uint64
	requestDurationTotal uint64
	leaveCount           uint64
	reminderCount        uint64
	coverCount           uint64
	webhookCount         uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	leavesSubmitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leave_requests_total",
		Help: "Leave requests by type",
	}, []string{"leave_type"})

	remindersSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attachment_reminders_sent_total",
		Help: "Sick leave document reminders sent",
	})

	coversAssigned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cover_assignments_total",
		Help: "Cover assignments created",
	})

	coverGaps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cover_gaps_total",
		Help: "Slots left without a cover teacher",
	})

	webhooksIn := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leave_webhooks_received_total",
		Help: "Inbound leave approvals by status",
	}, []string{"status"})

	driveUploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drive_uploads_total",
		Help: "Attachment archive attempts by outcome",
	}, []string{"outcome"})

	cacheOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_operations_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, leavesSubmitted, remindersSent, coversAssigned, coverGaps, webhooksIn, driveUploads, cacheOps, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		leavesSubmitted: leavesSubmitted,
		remindersSent:   remindersSent,
		coversAssigned:  coversAssigned,
		coverGaps:       coverGaps,
		webhooksIn:      webhooksIn,
		driveUploads:    driveUploads,
		cacheOps:        cacheOps,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordLeaveSubmitted counts a submission by leave type.
func (m *MetricsService) RecordLeaveSubmitted(leaveType string) {
	if m == nil {
		return
	}
	m.leavesSubmitted.WithLabelValues(leaveType).Inc()
	atomic.AddUint64(&m.leaveCount, 1)
}

// RecordReminderSent counts one reminder email.
func (m *MetricsService) RecordReminderSent() {
	if m == nil {
		return
	}
	m.remindersSent.Inc()
	atomic.AddUint64(&m.reminderCount, 1)
}

// RecordCoverAssigned counts created cover assignments.
func (m *MetricsService) RecordCoverAssigned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.coversAssigned.Add(float64(n))
	atomic.AddUint64(&m.coverCount, uint64(n))
}

// RecordCoverGap counts a slot left without a substitute.
func (m *MetricsService) RecordCoverGap() {
	if m == nil {
		return
	}
	m.coverGaps.Inc()
}

// RecordWebhookReceived counts an inbound leave approval by status.
func (m *MetricsService) RecordWebhookReceived(status string) {
	if m == nil {
		return
	}
	m.webhooksIn.WithLabelValues(status).Inc()
	atomic.AddUint64(&m.webhookCount, 1)
}

// RecordDriveUpload counts an archive attempt.
func (m *MetricsService) RecordDriveUpload(ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.driveUploads.WithLabelValues(outcome).Inc()
}

// RecordCacheOperation counts a cache lookup result.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	result := "hit"
	if !hit {
		result = "miss"
	}
	m.cacheOps.WithLabelValues(result).Inc()
}

// Snapshot returns aggregated metrics for the admin dashboard.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		LeavesSubmitted:          atomic.LoadUint64(&m.leaveCount),
		RemindersSent:            atomic.LoadUint64(&m.reminderCount),
		CoversAssigned:           atomic.LoadUint64(&m.coverCount),
		WebhooksReceived:         atomic.LoadUint64(&m.webhookCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
