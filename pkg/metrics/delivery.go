package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DeliveryMetrics records push and in-app delivery outcomes.
type DeliveryMetrics struct {
	pushSent      prometheus.Counter
	pushFailed    prometheus.Counter
	invalidTokens prometheus.Counter
	inAppCreated  prometheus.Counter
	inAppFailed   prometheus.Counter
	jobAttempts   *prometheus.CounterVec
	dlqMoves      prometheus.Counter
	duration      *prometheus.HistogramVec
}

// NewDeliveryMetrics registers the delivery metrics on the provided registerer.
func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	if reg == nil {
		return &DeliveryMetrics{}
	}
	pushSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "push_notifications_sent",
		Help: "Push notifications delivered successfully.",
	})
	pushFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "push_notifications_failed",
		Help: "Push notifications that failed delivery.",
	})
	invalidTokens := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "push_tokens_evicted",
		Help: "Device tokens evicted after permanent provider failures.",
	})
	inAppCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inapp_notifications_created",
		Help: "In-app notification records created.",
	})
	inAppFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inapp_notifications_failed",
		Help: "In-app notification records that failed to persist.",
	})
	jobAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_job_attempts",
		Help: "Delivery job attempts by outcome.",
	}, []string{"outcome"})
	dlqMoves := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "delivery_jobs_dead_lettered",
		Help: "Delivery jobs moved to the dead letter table.",
	})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "alert_processing_duration_seconds",
		Help:    "Duration of alert delivery processing in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})
	reg.MustRegister(pushSent, pushFailed, invalidTokens, inAppCreated, inAppFailed, jobAttempts, dlqMoves, duration)
	return &DeliveryMetrics{
		pushSent:      pushSent,
		pushFailed:    pushFailed,
		invalidTokens: invalidTokens,
		inAppCreated:  inAppCreated,
		inAppFailed:   inAppFailed,
		jobAttempts:   jobAttempts,
		dlqMoves:      dlqMoves,
		duration:      duration,
	}
}

// AddPushSent records n successful push deliveries.
func (m *DeliveryMetrics) AddPushSent(n int) {
	if m == nil || m.pushSent == nil {
		return
	}
	m.pushSent.Add(float64(n))
}

// AddPushFailed records n failed push deliveries.
func (m *DeliveryMetrics) AddPushFailed(n int) {
	if m == nil || m.pushFailed == nil {
		return
	}
	m.pushFailed.Add(float64(n))
}

// AddTokensEvicted records n evicted device tokens.
func (m *DeliveryMetrics) AddTokensEvicted(n int) {
	if m == nil || m.invalidTokens == nil {
		return
	}
	m.invalidTokens.Add(float64(n))
}

// AddInAppCreated records n persisted in-app notifications.
func (m *DeliveryMetrics) AddInAppCreated(n int) {
	if m == nil || m.inAppCreated == nil {
		return
	}
	m.inAppCreated.Add(float64(n))
}

// AddInAppFailed records n in-app notifications that failed to persist.
func (m *DeliveryMetrics) AddInAppFailed(n int) {
	if m == nil || m.inAppFailed == nil {
		return
	}
	m.inAppFailed.Add(float64(n))
}

// IncJobAttempt counts one job attempt with the given outcome
// (success, retry, dead_letter).
func (m *DeliveryMetrics) IncJobAttempt(outcome string) {
	if m == nil || m.jobAttempts == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.jobAttempts.WithLabelValues(outcome).Inc()
}

// IncDeadLettered counts one job moved to the dead letter table.
func (m *DeliveryMetrics) IncDeadLettered() {
	if m == nil || m.dlqMoves == nil {
		return
	}
	m.dlqMoves.Inc()
}

// ObserveProcessing records how long one alert took to reach the given
// terminal status.
func (m *DeliveryMetrics) ObserveProcessing(status string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.duration.WithLabelValues(status).Observe(duration.Seconds())
}
