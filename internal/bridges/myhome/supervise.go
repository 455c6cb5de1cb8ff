package myhome

import (
	"context"
	"errors"

	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// runFunc is one connect-and-serve cycle. It calls connected once its
// session is open and returns when the session ends or ctx is done.
type runFunc func(ctx context.Context, connected func()) error

// supervise reruns run with backoff until ctx is done.
//
// Authentication errors stop the loop and are returned; every other error
// is retried. A successful connect resets the backoff.
func supervise(ctx context.Context, policy Backoff, kind openwebnet.SessionKind, m *Metrics, log *logRef, run runFunc) error {
	for {
		err := run(ctx, policy.Reset)
		if ctx.Err() != nil {
			return nil
		}
		if openwebnet.IsAuthError(err) {
			log.get().Error("gateway rejected credentials, not retrying", "session", kind.String(), "error", err)
			return err
		}
		if err == nil {
			err = errors.New("session ended")
		}

		delay := policy.Next()
		log.get().Warn("gateway session ended, reconnecting",
			"session", kind.String(), "error", err, "delay", delay.String())
		if !sleepCtx(ctx, delay) {
			return nil
		}
		m.reconnect(kind)
	}
}

// observeDialError maps a dial failure to a session outcome.
func observeDialError(o SessionObserver, kind openwebnet.SessionKind, err error) {
	if o == nil {
		return
	}
	outcome := OutcomeFailed
	if openwebnet.IsAuthError(err) {
		outcome = OutcomeAuthFailed
	}
	o.RecordSession(kind.String(), outcome, err.Error())
}

// enqueue pushes t and refreshes the depth gauge.
func enqueue(q *Queue, m *Metrics, t Task) {
	q.Push(t)
	m.setQueueDepth(q.Len())
}
