package hostproto

import (
	"context"
	"sync"
)

type eventFeed chan Event

// Bus fans one stream of Event out to any number of subscribers, grounded
// on pkg/log.Logger's sub/unsub channel idiom: exactly one goroutine (Run)
// owns the subscriber set; Publish may be called from any goroutine.
type Bus struct {
	publish chan Event
	sub     chan eventFeed
	unsub   chan eventFeed

	wg *sync.WaitGroup
}

// NewBus returns an unstarted Bus. Call Run to begin fanning events out.
func NewBus(wg *sync.WaitGroup) *Bus {
	return &Bus{
		publish: make(chan Event),
		sub:     make(chan eventFeed),
		unsub:   make(chan eventFeed),
		wg:      wg,
	}
}

// Run fans out events until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		subs := map[eventFeed]struct{}{}
		for {
			select {
			case <-ctx.Done():
				for ch := range subs {
					close(ch)
				}
				return
			case ch := <-b.sub:
				subs[ch] = struct{}{}
			case ch := <-b.unsub:
				close(ch)
				delete(subs, ch)
			case e := <-b.publish:
				for ch := range subs {
					ch <- e
				}
			}
		}
	}()
}

// Publish sends e to every current subscriber. Blocks until Run's loop
// accepts it; callers on the hot path (Playback Coordinator's tick) should
// not be blocked behind a slow subscriber for long, matching the same
// tradeoff pkg/log.Logger accepts for its feed channel.
func (b *Bus) Publish(e Event) {
	b.publish <- e
}

// Feed is a read-only subscription to engine events.
type Feed <-chan Event

// CancelFunc unsubscribes a Feed created by Subscribe.
type CancelFunc func()

// Subscribe returns a new feed of events and a CancelFunc.
func (b *Bus) Subscribe() (Feed, CancelFunc) {
	feed := make(eventFeed)
	b.sub <- feed
	return feed, func() { b.unsubscribe(feed) }
}

func (b *Bus) unsubscribe(feed eventFeed) {
	for {
		select {
		case b.unsub <- feed:
			return
		case <-feed:
		}
	}
}
