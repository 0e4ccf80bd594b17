package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestCounters(t *testing.T) {
	Register()
	Register()

	before := counterValue(t, bookingAttempts.WithLabelValues("confirmed"))
	IncBookingAttempt("confirmed")
	assert.Equal(t, before+1, counterValue(t, bookingAttempts.WithLabelValues("confirmed")))

	before = counterValue(t, statusChanges.WithLabelValues("cancelled"))
	IncStatusChange("cancelled")
	assert.Equal(t, before+1, counterValue(t, statusChanges.WithLabelValues("cancelled")))

	before = counterValue(t, slotsComputed)
	IncSlotsComputed()
	assert.Equal(t, before+1, counterValue(t, slotsComputed))

	before = counterValue(t, httpRequests.WithLabelValues("slots", "200"))
	IncHTTPRequest("slots", "200")
	assert.Equal(t, before+1, counterValue(t, httpRequests.WithLabelValues("slots", "200")))
}

func TestObserveCommit(t *testing.T) {
	var m dto.Metric
	require.NoError(t, bookingCommitDuration.Write(&m))
	before := m.GetHistogram().GetSampleCount()

	ObserveCommit(5 * time.Millisecond)

	require.NoError(t, bookingCommitDuration.Write(&m))
	assert.Equal(t, before+1, m.GetHistogram().GetSampleCount())
}
