package monitoring

import (
	"context"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var (
	paymentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_created_total",
			Help: "Total payment sessions created",
		},
		[]string{"provider"},
	)

	paymentsSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_settled_total",
			Help: "Total payments settled (pending-to-paid transitions)",
		},
		[]string{"provider"},
	)

	paymentErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_errors_total",
			Help: "Total gateway errors observed",
		},
		[]string{"provider"},
	)

	webhookRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Total webhook deliveries by outcome",
		},
		[]string{"outcome"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "payment_sessions_active",
			Help: "Current number of cached payment sessions",
		},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)

	statusCheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_status_check_seconds",
			Help:    "Duration of gateway status lookups",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"provider"},
	)
)

func RecordPaymentCreated(provider string) {
	paymentsCreated.WithLabelValues(provider).Inc()
}

func RecordPaymentSettled(provider string) {
	paymentsSettled.WithLabelValues(provider).Inc()
}

func RecordPaymentError(provider string) {
	paymentErrors.WithLabelValues(provider).Inc()
}

func RecordWebhook(outcome string) {
	webhookRequests.WithLabelValues(outcome).Inc()
}

func TrackStatusCheck(provider string, duration time.Duration) {
	statusCheckDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()

		m.collectSessionMetrics(ctx)
		goroutineCount.Set(float64(runtime.NumGoroutine()))
	}
}

func (m *Monitor) collectSessionMetrics(ctx context.Context) {
	keys, _ := m.redis.Keys(ctx, "payment:*").Result()
	activeSessions.Set(float64(len(keys)))
}

// ServeMetrics exposes /metrics on its own port, away from the API surface.
func ServeMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Printf("metrics server: %v", err)
	}
}
