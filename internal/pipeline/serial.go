// Package pipeline provides the two execution contexts spec.md section 4.4/section 5
// calls for: a single-threaded, FIFO, high-priority Serial queue for
// offer validation and block lookups (disk I/O, never network), and a
// bounded General worker pool for outbound transfers that may block on
// network congestion. Neither queue knows anything about failure-table
// domain types; the coordinator submits closures.
package pipeline

import (
	"github.com/anacrolix/chansync"
	"github.com/anacrolix/log"

	"github.com/freenet-go/failuretable/internal/ftsync"
)

// Task is a unit of work submitted to a queue.
type Task func()

// Serial runs submitted tasks one at a time, in submission order. It
// models the offer pipeline's single-threaded high-priority queue:
// disk-bound work (datastore lookups) is safe here, but handlers must
// re-dispatch anything that can block on the network to a General pool.
type Serial struct {
	mu     ftsync.Mutex
	cond   ftsync.Event
	queue  []Task
	closed chansync.SetOnce
	logger log.Logger
}

func NewSerial(logger log.Logger) *Serial {
	s := &Serial{logger: logger}
	go s.run()
	return s
}

// Submit enqueues t. It never blocks the caller on t's execution.
func (s *Serial) Submit(t Task) {
	if s.closed.IsSet() {
		s.logger.WithDefaultLevel(log.Debug).Printf("submit to closed serial queue dropped")
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, t)
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Close stops accepting new tasks. Tasks already queued run to
// completion; there is no cancellation of queued work (spec.md section 5).
func (s *Serial) Close() {
	s.closed.Set()
	s.cond.Broadcast()
}

func (s *Serial) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed.IsSet() {
			s.cond.Wait(&s.mu)
		}
		if len(s.queue) == 0 && s.closed.IsSet() {
			s.mu.Unlock()
			return
		}
		t := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.runTask(t)
	}
}

func (s *Serial) runTask(t Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithDefaultLevel(log.Error).Printf("serial task panicked: %v", r)
		}
	}()
	t()
}
