package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/gpibgate/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type busMetrics struct {
	transactions        *prometheus.CounterVec
	transactionDuration *prometheus.HistogramVec
	transactionBytes    *prometheus.CounterVec
	tokenWait           prometheus.Histogram
	claims              prometheus.Gauge
}

// NewBusMetrics creates a Prometheus-backed BusMetrics.
func NewBusMetrics() metrics.BusMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopBusMetrics()
	}

	reg := metrics.GetRegistry()

	return &busMetrics{
		transactions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gpibgate_bus_transactions_total",
				Help: "Total number of addressed bus transactions",
			},
			[]string{"operation", "address", "status"},
		),
		transactionDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gpibgate_bus_transaction_duration_milliseconds",
				Help:    "Duration of addressed bus transactions in milliseconds",
				Buckets: []float64{1, 5, 25, 100, 500, 3000},
			},
			[]string{"operation"},
		),
		transactionBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gpibgate_bus_bytes_total",
				Help: "Total bytes moved over the bus",
			},
			[]string{"operation"},
		),
		tokenWait: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gpibgate_bus_token_wait_milliseconds",
				Help:    "Time spent waiting for the bus ownership token",
				Buckets: []float64{0.1, 1, 10, 100, 1000},
			},
		),
		claims: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "gpibgate_bus_claims",
				Help: "Outstanding link claims on the bus",
			},
		),
	}
}

func (m *busMetrics) RecordTransaction(operation string, address int, bytes int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.transactions.WithLabelValues(operation, strconv.Itoa(address), status).Inc()
	m.transactionDuration.WithLabelValues(operation).Observe(duration.Seconds() * 1000)
	m.transactionBytes.WithLabelValues(operation).Add(float64(bytes))
}

func (m *busMetrics) RecordTokenWait(duration time.Duration) {
	m.tokenWait.Observe(duration.Seconds() * 1000)
}

func (m *busMetrics) SetClaims(count int) {
	m.claims.Set(float64(count))
}
