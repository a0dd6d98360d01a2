package engine

import (
	"testing"
	"time"
)

func TestGossipTickerBasic(t *testing.T) {
	gt := NewGossipTicker(20 * time.Millisecond)
	gt.Start()
	defer gt.Stop()

	select {
	case tick := <-gt.Chan():
		if tick.Round != 1 {
			t.Errorf("expected round 1, got %d", tick.Round)
		}
	case <-time.After(500 * time.Millisecond):
		t.Error("tick not received")
	}
}

func TestGossipTickerZeroIntervalNeverFires(t *testing.T) {
	gt := NewGossipTicker(0)
	gt.Start()
	defer gt.Stop()

	select {
	case tick := <-gt.Chan():
		t.Errorf("unexpected tick %+v", tick)
	case <-time.After(50 * time.Millisecond):
	}

	gt.Trigger()
	select {
	case <-gt.Chan():
	case <-time.After(100 * time.Millisecond):
		t.Error("triggered tick not received")
	}
}

func TestGossipTickerDropsWhenPending(t *testing.T) {
	gt := NewGossipTicker(0)
	gt.Start()
	defer gt.Stop()

	gt.Trigger()
	gt.Trigger()
	gt.Trigger()

	if gt.DroppedTicks() != 2 {
		t.Errorf("expected 2 dropped ticks, got %d", gt.DroppedTicks())
	}
	tick := <-gt.Chan()
	if tick.Round != 1 {
		t.Errorf("expected first round pending, got %d", tick.Round)
	}
}

func TestGossipTickerStopIdempotent(t *testing.T) {
	gt := NewGossipTicker(10 * time.Millisecond)
	gt.Start()
	gt.Start()
	gt.Stop()
	gt.Stop()
}
