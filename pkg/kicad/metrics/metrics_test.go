package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveParse(time.Millisecond, "")
		c.ObserveSerialize("preserve", 10)
		c.ObserveRebuild(time.Millisecond)
		c.SheetLoaded()
		c.SheetFailed("cycle")
		c.CacheLookup(true)
	})
	families, err := c.Gather()
	require.NoError(t, err)
	assert.Nil(t, families)
}

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()

	c.ObserveParse(time.Millisecond, "")
	c.ObserveParse(time.Millisecond, "")
	c.ObserveParse(0, "version")
	c.ObserveSerialize("clean", 128)
	c.SheetLoaded()
	c.SheetFailed("load")
	c.CacheLookup(false)
	c.CacheLookup(true)
	c.CacheLookup(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.DocumentsParsed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ParseFailures.WithLabelValues("version")))
	assert.Equal(t, 128.0, testutil.ToFloat64(c.SerializedBytes.WithLabelValues("clean")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SheetsLoaded))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.LoaderCache.WithLabelValues("hit")))

	families, err := c.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector()
	b := NewCollector()
	a.ObserveRebuild(time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.NetRebuilds))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.NetRebuilds))
}
