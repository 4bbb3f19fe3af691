// Package metrics declares the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	AuthAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "authsvc", Name: "auth_attempts_total", Help: "Number of auth operations by operation and outcome."},
		[]string{"operation", "outcome"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "authsvc", Name: "rate_limit_rejected_total", Help: "Number of requests rejected by the rate limiter."},
		[]string{"path"},
	)
	TokensReaped = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "authsvc", Name: "refresh_tokens_reaped_total", Help: "Number of expired refresh tokens purged by the reaper."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(AuthAttempts)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(TokensReaped)
}
