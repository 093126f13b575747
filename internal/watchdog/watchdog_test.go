package watchdog

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchdogFiresOnStall(t *testing.T) {
	var stalls int32
	w := New(20*time.Millisecond, func() { atomic.AddInt32(&stalls, 1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&stalls) > 0 }, time.Second, time.Millisecond)
}

func TestWatchdogTouchResetsTimer(t *testing.T) {
	var stalls int32
	w := New(40*time.Millisecond, func() { atomic.AddInt32(&stalls, 1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	stop := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(stop) {
		w.Touch()
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, int32(0), atomic.LoadInt32(&stalls))
}
