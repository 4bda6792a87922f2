package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayments_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPayments(reg)

	m.Initiation("MPESA", OutcomeSuccess)
	m.Initiation("MPESA", OutcomeSuccess)
	m.Initiation("EVC", OutcomeRejected)
	m.Callback(OutcomeDuplicate)
	m.Expired(3)
	m.Expired(0)
	m.ObserveGateway("MPESA", 150*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.initiations.WithLabelValues("MPESA", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.initiations.WithLabelValues("EVC", OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callbacks.WithLabelValues(OutcomeDuplicate)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.expired))

	n, err := testutil.GatherAndCount(reg, "eastleigh_payments_gateway_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPayments_NilSafe(t *testing.T) {
	var m *Payments
	assert.NotPanics(t, func() {
		m.Initiation("MPESA", OutcomeError)
		m.Callback(OutcomeSuccess)
		m.ObserveGateway("EVC", time.Second)
		m.Expired(1)
	})
}

func TestPayments_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPayments(reg)
	assert.Panics(t, func() { NewPayments(reg) })
}

func TestTimer(t *testing.T) {
	timer := StartTimer()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), 5*time.Millisecond)
}
