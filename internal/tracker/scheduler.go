package tracker

import (
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler owns at most one repeating ticker.
//
// Start always stops the current ticker first, so any number of Start calls
// leaves exactly one ticker alive. Stop releases the ticker immediately and
// never waits for a running callback, so it may be called from inside the
// callback itself. A callback that was already past its quit check when Stop
// ran still executes, so at most one call may begin after Stop returns;
// callbacks must tolerate being late. Callbacks of one ticker never overlap:
// a tick that comes due while the callback is still running is dropped.
type Scheduler struct {
	mu     sync.Mutex
	ticker *time.Ticker
	quit   chan struct{}

	loops atomic.Int32 // running ticker goroutines, for tests
}

// NewScheduler creates an idle scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Start runs fn every interval until Stop or the next Start.
// A non-positive interval uses DefaultInterval.
func (s *Scheduler) Start(fn func(), interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	ticker := time.NewTicker(interval)
	quit := make(chan struct{})
	s.ticker = ticker
	s.quit = quit

	s.loops.Add(1)
	go s.loop(fn, ticker, quit)
}

// Stop cancels future ticks. It is a no-op when no ticker is active.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Active reports whether a ticker is currently live.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticker != nil
}

func (s *Scheduler) stopLocked() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.quit)
	s.ticker = nil
	s.quit = nil
}

func (s *Scheduler) loop(fn func(), ticker *time.Ticker, quit <-chan struct{}) {
	defer s.loops.Add(-1)

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			// Narrows, but does not close, the window for a Stop racing the tick.
			select {
			case <-quit:
				return
			default:
			}
			fn()
		}
	}
}
