package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestStageDurationObserves(t *testing.T) {
	m := Metrics
	m.StageDuration.WithLabelValues("probe").Observe(1.5)
	require.Equal(t, 1, testutil.CollectAndCount(m.StageDuration))
}

func TestStageOutcomeCounts(t *testing.T) {
	m := Metrics
	m.StageOutcome.WithLabelValues("transcode", "error").Inc()
	m.StageOutcome.WithLabelValues("transcode", "error").Inc()
	require.Equal(t, float64(2), testutil.ToFloat64(m.StageOutcome.WithLabelValues("transcode", "error")))
}

func TestJanitorSweepsLabeledByJobAndOutcome(t *testing.T) {
	m := Metrics
	m.JanitorSweeps.WithLabelValues("stall_recovery", "success").Inc()
	require.Equal(t, float64(1), testutil.ToFloat64(m.JanitorSweeps.WithLabelValues("stall_recovery", "success")))
	require.Equal(t, float64(0), testutil.ToFloat64(m.JanitorSweeps.WithLabelValues("stall_recovery", "error")))
}

func TestVideosErroredByKind(t *testing.T) {
	m := Metrics
	m.VideosErrored.WithLabelValues("ProbeFailedError").Inc()
	require.Equal(t, float64(1), testutil.ToFloat64(m.VideosErrored.WithLabelValues("ProbeFailedError")))
}
