package object

import (
	"sync"
	"testing"
	"time"

	fdctx "github.com/cuemby/fdbus/pkg/context"
	"github.com/cuemby/fdbus/pkg/fdtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchdogKicksTrackedSessionAndBarksAfterMaxRetries(t *testing.T) {
	ctx := fdctx.New()
	ctx.Start()
	defer ctx.Destroy()

	wd := NewWatchdog(ctx, WatchdogConfig{Interval: 5 * time.Millisecond, MaxRetries: 2})

	var mu sync.Mutex
	var kicks int
	var barked fdtypes.SessionID
	barkedCh := make(chan struct{})

	wd.Kick = func(sess fdtypes.SessionID) {
		mu.Lock()
		kicks++
		mu.Unlock()
	}
	wd.OnBark = func(sess fdtypes.SessionID) {
		barked = sess
		close(barkedCh)
	}

	wd.Track(1)
	wd.Start()
	defer wd.Stop()

	select {
	case <-barkedCh:
	case <-time.After(time.Second):
		t.Fatal("watchdog never barked")
	}
	assert.Equal(t, fdtypes.SessionID(1), barked)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, kicks, 2)
}

func TestWatchdogAckResetsMissedCount(t *testing.T) {
	ctx := fdctx.New()
	ctx.Start()
	defer ctx.Destroy()

	wd := NewWatchdog(ctx, WatchdogConfig{Interval: 5 * time.Millisecond, MaxRetries: 2})

	var barked bool
	kickCount := 0
	kickCh := make(chan struct{}, 10)
	wd.Kick = func(sess fdtypes.SessionID) {
		kickCount++
		kickCh <- struct{}{}
	}
	wd.OnBark = func(sess fdtypes.SessionID) { barked = true }

	wd.Track(1)
	wd.Start()
	defer wd.Stop()

	for i := 0; i < 3; i++ {
		select {
		case <-kickCh:
			wd.Ack(1)
		case <-time.After(time.Second):
			t.Fatal("watchdog never kicked")
		}
	}
	assert.False(t, barked)
}

func TestWatchdogUntrackStopsKicking(t *testing.T) {
	ctx := fdctx.New()
	ctx.Start()
	defer ctx.Destroy()

	wd := NewWatchdog(ctx, WatchdogConfig{Interval: 5 * time.Millisecond, MaxRetries: 5})
	wd.Track(1)
	wd.Untrack(1)

	kicked := false
	wd.Kick = func(fdtypes.SessionID) { kicked = true }
	wd.Start()
	defer wd.Stop()

	time.Sleep(30 * time.Millisecond)
	require.False(t, kicked)
}
