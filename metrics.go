package vaultgate

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricMFASuccess counts successful MFA verifications.
	MetricMFASuccess MetricID = iota
	// MetricMFAFailure counts rejected MFA codes.
	MetricMFAFailure
	// MetricMFAEnabled counts completed MFA enrollments.
	MetricMFAEnabled
	// MetricMFADisabled counts MFA disables.
	MetricMFADisabled
	// MetricBackupCodeUsed counts backup codes consumed in place of TOTP.
	MetricBackupCodeUsed
	// MetricBackupCodesRegenerated counts full batch replacements.
	MetricBackupCodesRegenerated
	// MetricRateLimitHit counts denied rate-limit decisions.
	MetricRateLimitHit
	// MetricTokenIssued counts single-use server tokens issued.
	MetricTokenIssued
	// MetricTokenConsumed counts single-use server tokens redeemed.
	MetricTokenConsumed
	// MetricTokenRejected counts unknown, replayed, or expired tokens.
	MetricTokenRejected
	// MetricImpersonationStarted counts impersonation sessions opened.
	MetricImpersonationStarted
	// MetricDisabledAccountAccess counts requests from disabled identities.
	MetricDisabledAccountAccess

	metricIDCount
)

// Metrics is a fixed-size atomic counter registry. A disabled registry
// keeps every operation a no-op.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics builds a registry.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc adds one to a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || !m.enabled || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot copies all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricIDCount)}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
