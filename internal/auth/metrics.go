// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	outcomeSuccess            = "success"
	outcomeInvalidCredentials = "invalid_credentials"
	outcomeInvalidToken       = "invalid_token"
	outcomeExpired            = "expired"
	outcomeRevoked            = "revoked"
	outcomeError              = "error"
)

// Metrics holds the Prometheus collectors for authentication activity.
// A nil *Metrics records nothing.
type Metrics struct {
	authentications *prometheus.CounterVec
	validations     *prometheus.CounterVec
	revocations     *prometheus.CounterVec
	purged          prometheus.Counter
	verifyDuration  prometheus.Histogram
}

// NewMetrics creates and registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		authentications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_auth_authentications_total",
			Help: "Authentication attempts by outcome",
		}, []string{"outcome"}),
		validations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_auth_validations_total",
			Help: "Token validations by outcome",
		}, []string{"outcome"}),
		revocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_auth_sessions_revoked_total",
			Help: "Revoked sessions by reason",
		}, []string{"reason"}),
		purged: factory.NewCounter(prometheus.CounterOpts{
			Name: "warden_auth_sessions_purged_total",
			Help: "Expired sessions deleted by the sweeper",
		}),
		verifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_auth_credential_verify_seconds",
			Help:    "Time spent verifying credentials during authentication",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
}

func (m *Metrics) authentication(outcome string) {
	if m == nil {
		return
	}
	m.authentications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) validation(outcome string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) revoked(reason string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.revocations.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) purgedSessions(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(float64(n))
}

func (m *Metrics) observeVerify(d time.Duration) {
	if m == nil {
		return
	}
	m.verifyDuration.Observe(d.Seconds())
}
