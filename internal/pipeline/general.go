package pipeline

import (
	"context"
	"time"

	"github.com/anacrolix/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// General is the bounded worker pool that outbound block transfers run
// on: sends that may block on network congestion must never run on the
// Serial queue, or one slow peer would head-of-line-block every other
// key's offer validation.
type General struct {
	tasks   chan Task
	group   *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
	logger  log.Logger
	limiter *rate.Limiter
}

// NewGeneral starts workers goroutines draining a shared task channel.
// bytesPerSecond bounds the aggregate throttled-send rate (spec.md section 4.4's
// "throttled send"); pass rate.Inf to disable throttling.
func NewGeneral(workers int, bytesPerSecond rate.Limit, logger log.Logger) *General {
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	g := &General{
		tasks:   make(chan Task, 64),
		group:   group,
		ctx:     gctx,
		cancel:  cancel,
		logger:  logger,
		limiter: rate.NewLimiter(bytesPerSecond, int(bytesPerSecond)+1),
	}
	for i := 0; i < workers; i++ {
		group.Go(g.worker)
	}
	return g
}

func (g *General) worker() error {
	for {
		select {
		case <-g.ctx.Done():
			return nil
		case t, ok := <-g.tasks:
			if !ok {
				return nil
			}
			g.runTask(t)
		}
	}
}

func (g *General) runTask(t Task) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.WithDefaultLevel(log.Error).Printf("general task panicked: %v", r)
		}
	}()
	t()
}

// Submit enqueues t to run on a pool worker. It blocks briefly if the
// internal buffer is full, applying natural backpressure to submitters.
func (g *General) Submit(t Task) {
	select {
	case g.tasks <- t:
	case <-g.ctx.Done():
	}
}

// ThrottledSend splits data into packet-sized chunks (smaller when the
// limiter's burst is smaller than a packet) and hands each to send,
// rate-limited by the pool's shared limiter, failing if ctx's deadline
// elapses first. The sink is a callback rather than an io.Writer, so
// callers whose sink is a message-framed Transport method rather than a
// stream can still share the pool's throttling budget.
func (g *General) ThrottledSend(ctx context.Context, packetSize int, data []byte, send func([]byte) error) error {
	for len(data) > 0 {
		n := packetSize
		if b := g.limiter.Burst(); b > 0 && n > b {
			n = b
		}
		if n > len(data) {
			n = len(data)
		}
		if err := g.limiter.WaitN(ctx, n); err != nil {
			return err
		}
		if err := send(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// Close stops accepting new work and waits for in-flight tasks to
// finish.
func (g *General) Close() error {
	g.cancel()
	return g.group.Wait()
}

// TransferTimeout is the default deadline for a single throttled send,
// per spec.md section 4.4/section 7 (WaitedTooLongException-equivalent).
const TransferTimeout = 60 * time.Second
