package metrics

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectorRunsSamplersImmediatelyAndOnTick(t *testing.T) {
	var calls int32
	c := NewCollector(10*time.Millisecond, func() {
		atomic.AddInt32(&calls, 1)
	})
	c.Start()
	defer c.Stop()

	time.Sleep(35 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestCollectorStopHaltsSampling(t *testing.T) {
	var calls int32
	c := NewCollector(5*time.Millisecond, func() {
		atomic.AddInt32(&calls, 1)
	})
	c.Start()
	time.Sleep(15 * time.Millisecond)
	c.Stop()

	afterStop := atomic.LoadInt32(&calls)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, afterStop, atomic.LoadInt32(&calls))
}

func TestCollectorRunsMultipleSamplers(t *testing.T) {
	var a, b int32
	c := NewCollector(50*time.Millisecond,
		func() { atomic.AddInt32(&a, 1) },
		func() { atomic.AddInt32(&b, 1) },
	)
	c.Start()
	defer c.Stop()
	time.Sleep(5 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&a))
	assert.Equal(t, int32(1), atomic.LoadInt32(&b))
}
