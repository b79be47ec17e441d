package watcher

import "time"

// Clock creates tickers. Injected so the trigger loop is testable without
// real time.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks on a channel.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// RealClock is the wall-clock implementation of Clock.
type RealClock struct{}

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (rt realTicker) Chan() <-chan time.Time {
	return rt.t.C
}

func (rt realTicker) Stop() {
	rt.t.Stop()
}
