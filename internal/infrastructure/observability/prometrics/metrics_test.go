package prometrics

import (
	"testing"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterCountsPerLabelSet(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg, "minishop")

	c, err := r.Counter("usecase_requests_total", "use case calls", "use_case", "outcome")
	require.NoError(t, err)

	c.Add(1, observability.L("use_case", "checkout"), observability.L("outcome", "success"))
	c.Bind(observability.L("use_case", "checkout"), observability.L("outcome", "success")).Add(2)
	c.Add(1, observability.L("use_case", "checkout"), observability.L("outcome", "error"))

	cv := r.(*registry).counters["usecase_requests_total"]
	assert.Equal(t, 3.0, testutil.ToFloat64(cv.WithLabelValues("checkout", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cv.WithLabelValues("checkout", "error")))
}

func TestRegisteringTwiceReusesCollector(t *testing.T) {
	reg := prometheus.NewRegistry()

	first, err := New(reg, "minishop").Histogram("lock_wait_seconds", "lock wait", nil, "store", "kind")
	require.NoError(t, err)
	// A second registry over the same Registerer picks up the existing vector.
	second, err := New(reg, "minishop").Histogram("lock_wait_seconds", "lock wait", nil, "store", "kind")
	require.NoError(t, err)

	first.Observe(0.1, observability.L("store", "memory"), observability.L("kind", "customer"))
	second.Bind(observability.L("store", "memory"), observability.L("kind", "customer")).Observe(0.2)

	n, err := testutil.GatherAndCount(reg, "minishop_lock_wait_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConflictingRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg, "").Counter("orders", "orders", "status")
	require.NoError(t, err)

	_, err = New(reg, "").Histogram("orders", "orders", nil, "status")
	assert.Error(t, err)
}
