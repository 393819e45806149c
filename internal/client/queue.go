package client

import (
	"sync"
	"time"
)

// transitionQueue delivers connection state transitions to one subscriber:
// every pushed value, in push order, each at most once, with no coalescing.
// Pushes never block the state machine; a dedicated goroutine forwards the
// queue onto the out channel at the subscriber's pace.
type transitionQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []ConnectionState
	closed  bool
	dropped bool

	out  chan ConnectionState
	done chan struct{}

	// How long a closed queue keeps trying to deliver its remaining
	// transitions before giving up on the subscriber.
	drainAfter time.Duration
}

func newTransitionQueue() *transitionQueue {
	q := &transitionQueue{
		out:        make(chan ConnectionState),
		done:       make(chan struct{}),
		drainAfter: 5 * time.Second,
	}
	q.cond = sync.NewCond(&q.mu)
	go q.forward()
	return q
}

func (q *transitionQueue) push(st ConnectionState) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, st)
	q.cond.Signal()
}

// closeQueue stops the queue. With drop, undelivered transitions are
// discarded and any in-flight send is abandoned (subscriber cancelled);
// without, queued transitions are still delivered before the out channel
// closes, bounded by drainAfter so a subscriber that stopped reading
// cannot pin the forwarder.
func (q *transitionQueue) closeQueue(drop bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	if drop {
		q.dropLocked()
	} else if !q.dropped {
		time.AfterFunc(q.drainAfter, func() {
			q.mu.Lock()
			q.dropLocked()
			q.mu.Unlock()
		})
	}
	q.cond.Signal()
}

func (q *transitionQueue) dropLocked() {
	if q.dropped {
		return
	}
	q.dropped = true
	q.items = nil
	close(q.done)
}

func (q *transitionQueue) forward() {
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			close(q.out)
			return
		}
		st := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- st:
		case <-q.done:
		}
	}
}
