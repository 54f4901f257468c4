package agent

import (
	"context"
	"sync"
	"time"

	"github.com/kestrelworks/switchboard/internal/domain"
)

// laneSet routes messages to one worker goroutine per session key. A lane's
// bounded FIFO queue preserves per-conversation arrival order; workers for
// different keys run concurrently. A full lane queue blocks dispatch, which
// pushes backpressure up to the inbound bus instead of buffering without
// bound.
type laneSet struct {
	capacity    int
	idleTimeout time.Duration
	handle      func(context.Context, domain.InboundMessage)

	mu    sync.Mutex
	lanes map[domain.SessionKey]*lane
	wg    sync.WaitGroup
}

// lane is one session's queue. pending counts messages a dispatcher has
// committed but the worker has not yet received; the worker only exits when
// it is zero, so a committed message can never be orphaned by an idle exit.
type lane struct {
	queue   chan domain.InboundMessage
	pending int // guarded by laneSet.mu
}

func newLaneSet(capacity int, idleTimeout time.Duration, handle func(context.Context, domain.InboundMessage)) *laneSet {
	return &laneSet{
		capacity:    capacity,
		idleTimeout: idleTimeout,
		handle:      handle,
		lanes:       make(map[domain.SessionKey]*lane),
	}
}

// dispatch enqueues msg on its session's lane, starting a worker if none is
// live. Blocks while the lane queue is full; returns only ctx errors.
func (s *laneSet) dispatch(ctx context.Context, msg domain.InboundMessage) error {
	key := msg.SessionKey()

	s.mu.Lock()
	ln, ok := s.lanes[key]
	if !ok {
		ln = &lane{queue: make(chan domain.InboundMessage, s.capacity)}
		s.lanes[key] = ln
		s.wg.Add(1)
		go s.runWorker(ctx, key, ln)
	}
	ln.pending++
	s.mu.Unlock()

	select {
	case ln.queue <- msg:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		ln.pending--
		s.mu.Unlock()
		return ctx.Err()
	}
}

// runWorker drains one lane until it has been idle for idleTimeout with no
// committed messages outstanding.
func (s *laneSet) runWorker(ctx context.Context, key domain.SessionKey, ln *lane) {
	defer s.wg.Done()
	idle := time.NewTimer(s.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case msg := <-ln.queue:
			s.mu.Lock()
			ln.pending--
			s.mu.Unlock()

			s.handle(ctx, msg)

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.idleTimeout)

		case <-idle.C:
			s.mu.Lock()
			if ln.pending == 0 {
				delete(s.lanes, key)
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			idle.Reset(s.idleTimeout)

		case <-ctx.Done():
			s.mu.Lock()
			delete(s.lanes, key)
			s.mu.Unlock()
			return
		}
	}
}

// drain waits for every worker to exit. Call after the consuming context
// has ended.
func (s *laneSet) drain() { s.wg.Wait() }

// count returns the number of live lanes.
func (s *laneSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lanes)
}
