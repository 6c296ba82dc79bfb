package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	collectors := []prometheus.Collector{
		UpdatesTotal,
		UpdateDuration,
		MessagesSent,
		DispatchesTotal,
		FilesProcessed,
		BatchSize,
		DispatchDuration,
		ActiveSessions,
		SendAttempts,
		MembershipChecks,
		JournalErrors,
	}
	for _, c := range collectors {
		desc := make(chan *prometheus.Desc, 8)
		c.Describe(desc)
		close(desc)
		require.NotNil(t, <-desc, "collector should have a valid descriptor")
	}
}

func TestCounterVecLabels(t *testing.T) {
	before := testutil.ToFloat64(DispatchesTotal.WithLabelValues("count", "ok"))
	DispatchesTotal.WithLabelValues("count", "ok").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(DispatchesTotal.WithLabelValues("count", "ok")))

	before = testutil.ToFloat64(SendAttempts.WithLabelValues("retry"))
	SendAttempts.WithLabelValues("retry").Add(2)
	assert.Equal(t, before+2, testutil.ToFloat64(SendAttempts.WithLabelValues("retry")))
}
