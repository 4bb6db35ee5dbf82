package ccmetric_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dirkpetersen/claudefs/internal/ccmetric"
)

func TestCounterAddAndLoad(t *testing.T) {
	var c ccmetric.Counter
	c.Add(5)
	c.Inc()
	assert.Equal(t, uint64(6), c.Load())
}

func TestCounterReset(t *testing.T) {
	var c ccmetric.Counter
	c.Add(10)
	c.Reset()
	assert.Equal(t, uint64(0), c.Load())
}

func TestGaugeAddAndSet(t *testing.T) {
	var g ccmetric.Gauge
	g.Add(3)
	g.Add(-1)
	assert.Equal(t, int64(2), g.Load())

	g.Set(100)
	assert.Equal(t, int64(100), g.Load())
}
