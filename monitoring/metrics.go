package monitoring

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var (
	purchaseSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchase_steps_total",
			Help: "Purchase session step outcomes",
		},
		[]string{"step", "status"},
	)

	paymentOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_outcomes_total",
			Help: "Settled payments by method and result",
		},
		[]string{"method", "status"},
	)

	activeReservations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "active_reservations_total",
			Help: "Soft reservations currently held in redis",
		},
		[]string{"kind"},
	)

	processorLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_processor_request_seconds",
			Help:    "Latency of payment processor calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"operation"},
	)
)

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.collectReservationMetrics(context.Background())
	}
}

func (m *Monitor) collectReservationMetrics(ctx context.Context) {
	for _, kind := range []string{"ticket", "listing"} {
		keys, err := m.redis.Keys(ctx, "reserve:"+kind+":*").Result()
		if err != nil {
			continue
		}
		activeReservations.WithLabelValues(kind).Set(float64(len(keys)))
	}
}

// TrackPurchaseStep counts one step outcome.
func (m *Monitor) TrackPurchaseStep(step, status string) {
	purchaseSteps.WithLabelValues(step, status).Inc()
}

// TrackPayment counts one settled or failed payment.
func (m *Monitor) TrackPayment(method, status string) {
	paymentOutcomes.WithLabelValues(method, status).Inc()
}

// TrackProcessorCall records the latency of one processor round trip.
func (m *Monitor) TrackProcessorCall(operation string, duration time.Duration) {
	processorLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// ServeOps runs the standalone ops server exposing the metrics endpoint.
// Kept off the main port so the scrape surface is never public.
func ServeOps(addr string, middlewares ...echo.MiddlewareFunc) {
	e := echo.New()
	e.Use(middlewares...)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	srv := &http.Server{Addr: addr, Handler: e}
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Printf("monitoring: ops server: %v", err)
		}
	}()
}
