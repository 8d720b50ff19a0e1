// Package metrics holds the Prometheus collectors of the wallet core.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_transfers_total",
		Help: "Transfers by resulting status",
	}, []string{"status"})

	otpVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_otp_verifications_total",
		Help: "OTP verification attempts by result",
	}, []string{"result"})

	moneyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_money_requests_total",
		Help: "Money request transitions by resulting status",
	}, []string{"status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallet_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "route", "status"})
)

func Transfer(status string) {
	transfersTotal.WithLabelValues(status).Inc()
}

func OTPVerification(result string) {
	otpVerifications.WithLabelValues(result).Inc()
}

func MoneyRequest(status string) {
	moneyRequestsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTP records the latency of one handled request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpLatency.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
