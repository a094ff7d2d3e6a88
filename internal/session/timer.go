package session

import (
	"sync"
	"time"
)

// Countdown is the per-question timer state. Ticks only count when they carry
// the current generation, so a replaced or paused countdown never fires.
type Countdown struct {
	remaining int
	gen       uint64
	running   bool
	done      bool
}

// Start replaces any existing countdown and returns the generation to tick with.
func (c *Countdown) Start(limit int) uint64 {
	c.gen++
	c.remaining = limit
	c.running = true
	c.done = false
	return c.gen
}

// Pause stops decrementing while keeping the remaining seconds.
func (c *Countdown) Pause() {
	c.running = false
	c.gen++
}

// Resume continues a paused countdown from where it stopped.
// It returns false if the countdown has fired or was stopped.
func (c *Countdown) Resume() (uint64, bool) {
	if c.done {
		return 0, false
	}
	c.gen++
	c.running = true
	return c.gen, true
}

// Stop ends the countdown for good; only Start revives it.
func (c *Countdown) Stop() {
	c.running = false
	c.done = true
	c.gen++
}

// WouldExpire reports whether a tick with gen would bring the countdown to zero.
func (c *Countdown) WouldExpire(gen uint64) bool {
	return c.running && !c.done && gen == c.gen && c.remaining <= 1
}

// Tick applies one decrement. It reports true exactly once, on the tick that reaches zero.
func (c *Countdown) Tick(gen uint64) bool {
	if !c.running || c.done || gen != c.gen {
		return false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining > 0 {
		return false
	}
	c.done = true
	c.running = false
	return true
}

func (c *Countdown) Remaining() int {
	return c.remaining
}

func (c *Countdown) Running() bool {
	return c.running
}

// Ticker is the source of countdown ticks for one session.
type Ticker interface {
	// Reset stops any running source and starts emitting ticks stamped with gen.
	// No tick of an earlier generation is delivered after Reset returns.
	Reset(gen uint64)
	Stop()
	Ticks() <-chan Tick
}

// ClockTicker emits one tick per interval from a background goroutine.
type ClockTicker struct {
	interval time.Duration
	ticks    chan Tick

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewClockTicker(interval time.Duration) *ClockTicker {
	if interval <= 0 {
		interval = time.Second
	}
	return &ClockTicker{
		interval: interval,
		ticks:    make(chan Tick, 1),
	}
}

func (t *ClockTicker) Ticks() <-chan Tick {
	return t.ticks
}

func (t *ClockTicker) Reset(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()

	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop, t.done = stop, done
	go t.run(gen, stop, done)
}

func (t *ClockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *ClockTicker) stopLocked() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	<-t.done
	t.stop, t.done = nil, nil
	// drop a tick buffered by the old goroutine
	select {
	case <-t.ticks:
	default:
	}
}

func (t *ClockTicker) run(gen uint64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	clock := time.NewTicker(t.interval)
	defer clock.Stop()
	for {
		select {
		case <-stop:
			return
		case <-clock.C:
			select {
			case t.ticks <- Tick{Gen: gen}:
			case <-stop:
				return
			}
		}
	}
}
