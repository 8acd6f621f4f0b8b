package clocks

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Clock abstracts time for components that poll on an interval so that tests
// can drive ticks deterministically.
type Clock interface {
	Now() time.Time
	Every(d time.Duration, fn func(), label string) *Ticker
}

type Ticker struct {
	cancel  context.CancelFunc
	trigger func()
}

func (t *Ticker) Stop() {
	t.cancel()
}

// Trigger runs the configured function immediately, resetting the time before
// the next tick.
func (t *Ticker) Trigger() {
	t.trigger()
}

type SystemClock struct{}

func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (c *SystemClock) Now() time.Time {
	return time.Now()
}

func (c *SystemClock) Every(d time.Duration, fn func(), _label string) *Ticker {
	ticker := time.NewTicker(d)

	// Context used to stop all future fn calls
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()

	return &Ticker{
		cancel: cancel,
		trigger: func() {
			fn()
			ticker.Reset(d)
		},
	}
}

var _ Clock = (*SystemClock)(nil)

// FrozenClock only moves when told. Every registers fn under its label and
// TickEvery invokes it.
type FrozenClock struct {
	mu         sync.Mutex
	now        time.Time
	everyFuncs map[string]func()
}

func NewFrozenClock() *FrozenClock {
	return &FrozenClock{
		now:        time.Unix(0, 0),
		everyFuncs: make(map[string]func()),
	}
}

func (c *FrozenClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FrozenClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *FrozenClock) Every(d time.Duration, fn func(), label string) *Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.everyFuncs[label] = fn
	return &Ticker{cancel: func() {}, trigger: fn}
}

// TickEvery invokes the func registered under label without holding the clock
// lock, so ticked code may use the clock.
func (c *FrozenClock) TickEvery(label string) {
	c.mu.Lock()
	fn := c.everyFuncs[label]
	c.mu.Unlock()

	if fn == nil {
		panic(fmt.Sprintf("FrozenClock has no `every` func registered for label %s", label))
	}
	fn()
}

var _ Clock = (*FrozenClock)(nil)
