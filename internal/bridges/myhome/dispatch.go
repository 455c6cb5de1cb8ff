package myhome

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// Worker pool limits.
const (
	defaultWorkers = 1
	maxWorkers     = 10
)

// Pool is the command dispatch pool: N workers, each owning one command
// session, draining the shared queue.
//
// Delivery is fire-and-forget. A NACK or timeout is logged and counted and
// the worker moves on. Any other send failure ends the worker's session;
// the task in flight is not retried and the worker reconnects with backoff.
type Pool struct {
	dialer   openwebnet.Dialer
	queue    *Queue
	workers  int
	sendRate float64
	backoff  Backoff
	metrics  *Metrics
	log      *logRef
	observer SessionObserver

	wg sync.WaitGroup
	// authErr receives the first authentication failure of any worker.
	authErr chan error
}

// newPool clamps workers into 1..maxWorkers.
func newPool(dialer openwebnet.Dialer, queue *Queue, workers int, sendRate float64, backoff Backoff,
	metrics *Metrics, log *logRef, observer SessionObserver,
) *Pool {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Pool{
		dialer:   dialer,
		queue:    queue,
		workers:  min(workers, maxWorkers),
		sendRate: max(sendRate, 0),
		backoff:  backoff,
		metrics:  metrics,
		log:      log,
		observer: observer,
		authErr:  make(chan error, 1),
	}
}

// Start launches the workers. They exit when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := range p.workers {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()

			var limiter *rate.Limiter
			if p.sendRate > 0 {
				limiter = rate.NewLimiter(rate.Limit(p.sendRate), 1)
			}

			err := supervise(ctx, p.backoff, openwebnet.CommandSession, p.metrics, p.log,
				func(ctx context.Context, connected func()) error {
					return p.work(ctx, id, limiter, connected)
				})
			if err != nil {
				select {
				case p.authErr <- err:
				default:
				}
			}
		}(i)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// AuthErrors delivers the first authentication failure seen by a worker.
func (p *Pool) AuthErrors() <-chan error {
	return p.authErr
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.workers }

func (p *Pool) work(ctx context.Context, id int, limiter *rate.Limiter, connected func()) error {
	log := p.log.get()

	sess, err := p.dialer.Dial(ctx, openwebnet.CommandSession)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		observeDialError(p.observer, openwebnet.CommandSession, err)
		return fmt.Errorf("worker %d: open command session: %w", id, err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Debug("command session close failed", "worker", id, "error", err)
		}
	}()

	log.Debug("command session opened", "worker", id)
	if p.observer != nil {
		p.observer.RecordSession(openwebnet.CommandSession.String(), OutcomeConnected, fmt.Sprintf("worker %d", id))
	}
	connected()

	for {
		task, err := p.queue.Pop(ctx)
		if err != nil {
			return nil
		}
		p.metrics.setQueueDepth(p.queue.Len())

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				log.Debug("task abandoned on shutdown", "worker", id, "message", task.Message.String())
				return nil
			}
		}

		// The send in flight completes even when shutdown starts.
		err = sess.Send(context.WithoutCancel(ctx), task.Message, task.StatusRequest)
		switch {
		case err == nil:
			p.metrics.frameSent(sendOK)
			log.Debug("message sent", "worker", id, "message", task.Message.String(),
				"status_request", task.StatusRequest)
		case errors.Is(err, openwebnet.ErrNACK):
			p.metrics.frameSent(sendNACK)
			log.Warn("gateway refused message", "worker", id, "message", task.Message.String())
		case errors.Is(err, openwebnet.ErrTimeout):
			// A late reply would desynchronise the session; start a new one.
			p.metrics.frameSent(sendTimeout)
			log.Warn("gateway did not acknowledge message, reopening command session", "worker", id,
				"message", task.Message.String())
			if p.observer != nil {
				p.observer.RecordSession(openwebnet.CommandSession.String(), OutcomeLost, err.Error())
			}
			return err
		default:
			p.metrics.frameSent(sendError)
			log.Error("task dropped, command session failed", "worker", id,
				"message", task.Message.String(), "error", err)
			if p.observer != nil {
				p.observer.RecordSession(openwebnet.CommandSession.String(), OutcomeLost, err.Error())
			}
			return err
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}
