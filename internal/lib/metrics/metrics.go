// Package metrics объявляет Prometheus метрики сервиса.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clinic"

var (
	// AppointmentsCreated считает созданные записи по источнику оплаты.
	AppointmentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "appointments_created_total",
		Help:      "Number of created appointments by origin.",
	}, []string{"origin"})

	// AppointmentsCanceled считает отмены по источнику и инициатору.
	AppointmentsCanceled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "appointments_canceled_total",
		Help:      "Number of canceled appointments by origin and canceler.",
	}, []string{"origin", "canceled_by"})

	// Refunds считает исходы возвратов: refunded или voucher.
	Refunds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refund_outcomes_total",
		Help:      "Outcomes of paid single-visit cancellations.",
	}, []string{"outcome"})

	// WebhookEvents считает обработанные события платёжного шлюза.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Payment gateway webhook events by type and result.",
	}, []string{"type", "result"})

	// JobRuns считает запуски периодических задач.
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_runs_total",
		Help:      "Periodic job runs by job and result.",
	}, []string{"job", "result"})

	// JobAffected суммирует количество обработанных задачами записей.
	JobAffected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_affected_rows_total",
		Help:      "Rows changed by periodic jobs.",
	}, []string{"job"})

	// HTTPDuration время обработки HTTP запросов.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "status"})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware записывает длительность запросов в HTTPDuration.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		HTTPDuration.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	})
}
