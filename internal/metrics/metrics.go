package metrics

import (
	"math/big"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lottery_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lottery_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)

	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_operations_total",
			Help: "Total number of ledger operations by outcome",
		},
		[]string{"operation", "result"},
	)

	TicketsSoldTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lottery_tickets_sold_total",
			Help: "Total number of tickets sold",
		},
	)

	DrawsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_draws_total",
			Help: "Total number of closed draws",
		},
		[]string{"outcome"},
	)

	PrizeClaimsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lottery_prize_claims_total",
			Help: "Total number of tickets paid out",
		},
	)

	PersistFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lottery_persist_failures_total",
			Help: "Total number of operations rolled back because they could not be saved",
		},
	)

	PoolAmount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lottery_pool_amount",
			Help: "Ledger balances in base units",
		},
		[]string{"bucket"},
	)
)

// unmatchedRoute labels requests that hit no registered route.
const unmatchedRoute = "unmatched"

// Middleware returns a gin middleware that records HTTP metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		c.Next()

		// Route pattern only; raw paths of unmatched requests are unbounded.
		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

// RecordOperation counts one ledger operation. kind is "ok" on success.
func RecordOperation(operation, kind string) {
	OperationsTotal.WithLabelValues(operation, kind).Inc()
}

// RecordBalances publishes the ledger's money buckets.
func RecordBalances(pool, reserved, excess uint256.Int) {
	PoolAmount.WithLabelValues("pool").Set(toFloat(&pool))
	PoolAmount.WithLabelValues("reserved").Set(toFloat(&reserved))
	PoolAmount.WithLabelValues("excess").Set(toFloat(&excess))
}

func toFloat(v *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
