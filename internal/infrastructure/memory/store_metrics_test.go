package memory

import (
	"context"
	"testing"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	infraobs "github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability/prometrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockWaitSamples(t *testing.T, reg *prometheus.Registry) map[string]uint64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]uint64)
	for _, mf := range families {
		if mf.GetName() != "minishop_lock_wait_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			assert.Equal(t, storeName, labels["store"])
			out[labels["kind"]] = m.GetHistogram().GetSampleCount()
		}
	}
	return out
}

func TestLockWaitIsRecordedPerKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := infraobs.RegisterMetrics(prometrics.New(reg, "minishop"))
	require.NoError(t, err)

	s := NewStore(WithObservability(infraobs.New(nil, nil, metrics)))
	seedCustomer(t, s, "c1", "10")
	seedProduct(t, s, "p1", 1)
	seedProduct(t, s, "p2", 1)

	require.NoError(t, s.Do(context.Background(), func(ctx context.Context, tx application.Tx) error {
		if _, err := tx.Customers().GetForUpdate(ctx, "c1"); err != nil {
			return err
		}
		// Reentrant: the second lock of c1 is not a new wait.
		if _, err := tx.Customers().GetForUpdate(ctx, "c1"); err != nil {
			return err
		}
		if _, err := tx.Products().GetForUpdate(ctx, "p1"); err != nil {
			return err
		}
		_, err := tx.Products().GetForUpdate(ctx, "p2")
		return err
	}))

	assert.Equal(t, map[string]uint64{lockCustomer: 1, lockProduct: 2}, lockWaitSamples(t, reg))
}
