package vaultgate

import (
	"context"
	"sync"
	"testing"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Inc(MetricMFASuccess)
	m.Inc(MetricMFASuccess)
	m.Inc(MetricTokenIssued)

	if got := m.Value(MetricMFASuccess); got != 2 {
		t.Fatalf("MetricMFASuccess = %d", got)
	}
	if got := m.Value(MetricTokenIssued); got != 1 {
		t.Fatalf("MetricTokenIssued = %d", got)
	}
	if got := m.Value(MetricMFAFailure); got != 0 {
		t.Fatalf("MetricMFAFailure = %d", got)
	}

	snap := m.Snapshot()
	if snap.Counters[MetricMFASuccess] != 2 {
		t.Fatalf("snapshot MetricMFASuccess = %d", snap.Counters[MetricMFASuccess])
	}
}

func TestMetricsDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricMFASuccess)

	if got := m.Value(MetricMFASuccess); got != 0 {
		t.Fatalf("disabled registry counted: %d", got)
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("disabled registry produced counters")
	}
}

func TestMetricsConcurrentIncrements(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const workers, perWorker = 16, 100
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricRateLimitHit)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricRateLimitHit); got != workers*perWorker {
		t.Fatalf("MetricRateLimitHit = %d, want %d", got, workers*perWorker)
	}
}

func TestEngineCountsOutcomes(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addAccount(testAccountID, testEmail, RoleStaff)
	ctx := context.Background()

	secret, codes := env.enroll(testAccountID)

	if err := env.engine.VerifyMFA(ctx, testAccountID, env.totpFor(secret), ""); err != nil {
		t.Fatalf("VerifyMFA: %v", err)
	}
	_ = env.engine.VerifyMFA(ctx, testAccountID, "000000", "")
	if err := env.engine.VerifyMFA(ctx, testAccountID, codes[0], ""); err != nil {
		t.Fatalf("backup code: %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	if got := snap.Counters[MetricMFAEnabled]; got != 1 {
		t.Fatalf("MetricMFAEnabled = %d", got)
	}
	if got := snap.Counters[MetricMFASuccess]; got != 2 {
		t.Fatalf("MetricMFASuccess = %d", got)
	}
	if got := snap.Counters[MetricMFAFailure]; got != 1 {
		t.Fatalf("MetricMFAFailure = %d", got)
	}
	if got := snap.Counters[MetricBackupCodeUsed]; got != 1 {
		t.Fatalf("MetricBackupCodeUsed = %d", got)
	}
}
