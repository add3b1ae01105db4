package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "amm")

	m.SwapsTotal.WithLabelValues("pool-a", "ok").Inc()
	m.SwapsTotal.WithLabelValues("pool-a", "ok").Inc()
	m.ErrorsTotal.WithLabelValues("slippage_exceeded").Inc()
	m.PoolsRegistered.Set(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SwapsTotal.WithLabelValues("pool-a", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("slippage_exceeded")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PoolsRegistered))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "amm_swaps_total")
	assert.Contains(t, names, "amm_pools_registered")
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg, "amm")
	assert.Panics(t, func() { New(reg, "amm") })
}
