package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// tickChannelSize is the buffer size for the gossip tick channel
	tickChannelSize = 1
)

// GossipTick is one periodic gossip event
type GossipTick struct {
	Round uint64
	At    time.Time
}

// GossipTicker delivers a GossipTick every interval. A zero interval never
// fires; Trigger still delivers ticks on demand.
type GossipTicker struct {
	mu       sync.Mutex
	interval time.Duration

	ticker  *time.Ticker
	tockCh  chan GossipTick
	stopCh  chan struct{}
	running bool

	round uint64

	// Metrics
	droppedTicks uint64
}

// NewGossipTicker creates a new GossipTicker
func NewGossipTicker(interval time.Duration) *GossipTicker {
	return &GossipTicker{
		interval: interval,
		tockCh:   make(chan GossipTick, tickChannelSize),
		stopCh:   make(chan struct{}),
	}
}

// Start starts the ticker
func (gt *GossipTicker) Start() {
	gt.mu.Lock()
	defer gt.mu.Unlock()

	if gt.running {
		return
	}
	gt.running = true

	if gt.interval > 0 {
		gt.ticker = time.NewTicker(gt.interval)
		go gt.run(gt.ticker.C)
	}
}

// Stop stops the ticker. A stopped ticker cannot be restarted.
func (gt *GossipTicker) Stop() {
	gt.mu.Lock()
	defer gt.mu.Unlock()

	if !gt.running {
		return
	}
	gt.running = false

	close(gt.stopCh)
	if gt.ticker != nil {
		gt.ticker.Stop()
	}
}

// Chan returns the channel that delivers gossip ticks
func (gt *GossipTicker) Chan() <-chan GossipTick {
	return gt.tockCh
}

// Interval returns the configured interval
func (gt *GossipTicker) Interval() time.Duration {
	return gt.interval
}

// Trigger delivers a tick immediately, outside the timer schedule
func (gt *GossipTicker) Trigger() {
	gt.deliver(time.Now())
}

func (gt *GossipTicker) run(c <-chan time.Time) {
	for {
		select {
		case <-gt.stopCh:
			return
		case now := <-c:
			gt.deliver(now)
		}
	}
}

func (gt *GossipTicker) deliver(now time.Time) {
	tick := GossipTick{Round: atomic.AddUint64(&gt.round, 1), At: now}
	select {
	case gt.tockCh <- tick:
	case <-gt.stopCh:
	default:
		// a round is already pending
		count := atomic.AddUint64(&gt.droppedTicks, 1)
		log.Debugw("dropped gossip tick", "round", tick.Round, "total_dropped", count)
	}
}

// DroppedTicks returns the number of ticks dropped because a round was
// already pending
func (gt *GossipTicker) DroppedTicks() uint64 {
	return atomic.LoadUint64(&gt.droppedTicks)
}
