// Package watchdog detects stalled progress in long-running pipelines
// (sprite generation, export) and calls back so the owner can surface a
// "stuck" diagnostic, used by the sprite pipeline's 15s generation watchdog.
// Grounded on addons/watchdog/watchdog.go, generalized from polling an HLS
// manifest's mtime (file-based progress) to an explicit Touch() signal
// (in-process progress), since sprite/export progress isn't written to
// disk the way a recording's HLS segments are.
package watchdog

import (
	"context"
	"time"
)

// Watchdog calls OnStall if Touch is not called within Interval. Start
// spawns the poller; cancel its context to stop it.
type Watchdog struct {
	Interval time.Duration
	OnStall  func()

	touch chan struct{}
}

// New builds a Watchdog with the given stall interval and callback.
func New(interval time.Duration, onStall func()) *Watchdog {
	return &Watchdog{Interval: interval, OnStall: onStall, touch: make(chan struct{}, 1)}
}

// Touch reports progress, resetting the stall timer.
func (w *Watchdog) Touch() {
	select {
	case w.touch <- struct{}{}:
	default:
	}
}

// Start runs the poller until ctx is cancelled. Call it in its own
// goroutine, mirroring addons/watchdog's `go d.start(ctx)`.
func (w *Watchdog) Start(ctx context.Context) {
	timer := time.NewTimer(w.Interval)
	defer timer.Stop()
	for {
		select {
		case <-w.touch:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.Interval)
		case <-timer.C:
			if w.OnStall != nil {
				w.OnStall()
			}
			timer.Reset(w.Interval)
		case <-ctx.Done():
			return
		}
	}
}
