package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronMetricsObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronMetrics(reg)
	finished := time.Unix(1_750_000_000, 0)

	m.ObserveRun("refund-reconcile", 250*time.Millisecond, finished, nil)
	m.ObserveRun("refund-reconcile", time.Second, finished.Add(time.Hour), errors.New("boom"))
	m.IncLockError("")

	expected := `
# HELP marketplace_cron_runs_total Job runs by outcome.
# TYPE marketplace_cron_runs_total counter
marketplace_cron_runs_total{job="refund-reconcile",outcome="failure"} 1
marketplace_cron_runs_total{job="refund-reconcile",outcome="success"} 1
# HELP marketplace_cron_last_success_timestamp_seconds Unix time of the latest successful run.
# TYPE marketplace_cron_last_success_timestamp_seconds gauge
marketplace_cron_last_success_timestamp_seconds{job="refund-reconcile"} 1.75e+09
# HELP marketplace_cron_lock_errors_total Runs skipped because the distributed lock could not be reached.
# TYPE marketplace_cron_lock_errors_total counter
marketplace_cron_lock_errors_total{job="unknown"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"marketplace_cron_runs_total",
		"marketplace_cron_last_success_timestamp_seconds",
		"marketplace_cron_lock_errors_total",
	))

	sum, err := histogramSum(reg, "marketplace_cron_run_duration_seconds", map[string]string{"job": "refund-reconcile"})
	require.NoError(t, err)
	assert.InDelta(t, 1.25, sum, 0.001)
}

func TestCronMetricsNilSafe(t *testing.T) {
	assert.Nil(t, NewCronMetrics(nil))

	var m *CronMetrics
	m.ObserveRun("job", time.Second, time.Now(), nil)
	m.IncLockError("job")
}
