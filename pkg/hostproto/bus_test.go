package hostproto

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBusFansOutToMultipleSubscribers(t *testing.T) {
	wg := &sync.WaitGroup{}
	bus := NewBus(wg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Run(ctx)

	feedA, cancelA := bus.Subscribe()
	defer cancelA()
	feedB, cancelB := bus.Subscribe()
	defer cancelB()

	go bus.Publish(TimeUpdate{Micros: 7})

	select {
	case e := <-feedA:
		require.Equal(t, TimeUpdate{Micros: 7}, e)
	case <-time.After(time.Second):
		t.Fatal("subscriber A timed out")
	}
	select {
	case e := <-feedB:
		require.Equal(t, TimeUpdate{Micros: 7}, e)
	case <-time.After(time.Second):
		t.Fatal("subscriber B timed out")
	}
}

func TestBusUnsubscribeClosesFeed(t *testing.T) {
	wg := &sync.WaitGroup{}
	bus := NewBus(wg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Run(ctx)

	feed, cancelSub := bus.Subscribe()
	cancelSub()

	select {
	case _, ok := <-feed:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("feed was not closed")
	}
}
