package raftpart

import (
	"sync"
	"time"
)

// Clock is a monotonic millisecond clock. All timing decisions in the
// partition read from this, never from wall-clock time directly, so
// tests can substitute a fake clock.
type Clock interface {
	NowMillis() int64
}

type systemClock struct{ start time.Time }

// NewSystemClock returns a Clock backed by the monotonic runtime clock.
func NewSystemClock() Clock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) NowMillis() int64 {
	return time.Since(c.start).Milliseconds()
}

// Timer is a cancelable, one-shot delayed task handle.
type Timer interface {
	Stop() bool
}

type timeTimer struct{ t *time.Timer }

func (t *timeTimer) Stop() bool { return t.t.Stop() }

// Scheduler schedules delayed tasks. The partition builds its timing
// on a Scheduler and a worker pool:
//   - separate one-shot timers for election, heartbeat, sync, TTL and
//     snapshot ticks; with NewScheduler each callback runs on its own
//     goroutine (time.AfterFunc), so ticks are not serialized with
//     each other,
//   - a bounded I/O worker pool for replication fan-out and RPC
//     continuations (see ioPool below).
//
// Scheduler itself only needs to support "run this once, after this
// delay" — the teacher's single-goroutine stateMachine() select loop
// collapses all of this into one; this module splits it so the
// partition lock is never held across timer delivery (§5).
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type timeScheduler struct{}

// NewScheduler returns a Scheduler backed by the standard library's
// timer wheel. No ecosystem clock/scheduler library appears anywhere
// in the reference pack, so stdlib is the grounded choice here (see
// DESIGN.md).
func NewScheduler() Scheduler { return timeScheduler{} }

func (timeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return &timeTimer{t: time.AfterFunc(d, f)}
}

// ioPool is a bounded goroutine pool for replication fan-out and RPC
// continuations. The teacher fires one unsupervised goroutine per RPC
// call (raft_requests.go); that is fine for a toy but leaks under
// sustained load with many peers, so the core generalizes it into a
// small reusable pool with a bounded number of in-flight workers.
type ioPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func newIOPool(maxInFlight int) *ioPool {
	if maxInFlight <= 0 {
		maxInFlight = 64
	}
	return &ioPool{sem: make(chan struct{}, maxInFlight)}
}

// Go runs f on a pooled goroutine, blocking the caller only if the
// pool is already saturated.
func (p *ioPool) Go(f func()) {
	p.sem <- struct{}{}
	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		f()
	}()
}

// Wait blocks until all outstanding work has drained. Used by
// Partition.Stop to join replication continuations before returning.
func (p *ioPool) Wait() { p.wg.Wait() }
