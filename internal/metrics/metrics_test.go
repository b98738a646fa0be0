package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNew_RegistersAllCollectors(t *testing.T) {
	c := New()

	c.VenueBarsTotal.WithLabelValues("binance", "BTC", "SPOT").Inc()
	c.ConnectedVenues.WithLabelValues("BTC", "SPOT").Set(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.VenueBarsTotal.WithLabelValues("binance", "BTC", "SPOT")))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.ConnectedVenues.WithLabelValues("BTC", "SPOT")))
}

func TestObserveBackfillResult(t *testing.T) {
	c := New()

	c.ObserveBackfillResult(3, 0)
	assert.Equal(t, float64(3), testutil.ToFloat64(c.BackfillBarsRepaired))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.BackfillBarsFailed))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.BackfillRunsTotal.WithLabelValues("ok")))

	c.ObserveBackfillResult(1, 2)
	assert.Equal(t, float64(4), testutil.ToFloat64(c.BackfillBarsRepaired))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.BackfillBarsFailed))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.BackfillRunsTotal.WithLabelValues("partial")))
}
