package context

import (
	"time"

	"github.com/cuemby/fdbus/pkg/fdlog"
)

// Worker is an additional cooperative goroutine that hosts user
// callbacks (onReply, onBroadcast, onInvoke, onSubscribe) off the
// Context goroutine, plus any timers/watches attached to it (e.g.
// reconnection timers, watchdog kicks). Objects with no Worker run
// their callbacks directly on the Context goroutine instead.
type Worker struct {
	*loop
}

// NewWorker creates and starts a Worker loop. name is used only for
// logging and metrics labels.
func NewWorker(name string) *Worker {
	w := &Worker{loop: newLoop(name, 0, fdlog.WithComponent("worker").With().Str("worker", name).Logger())}
	w.start()
	return w
}

// SendAsync enqueues fn to run on the worker goroutine without
// blocking the caller.
func (w *Worker) SendAsync(fn func()) { w.submitAsync(false, fn) }

// SendAsyncUrgent is SendAsync but jumps ahead of normal-priority jobs.
func (w *Worker) SendAsyncUrgent(fn func()) { w.submitAsync(true, fn) }

// SendSync runs fn on the worker goroutine and blocks until it
// completes or timeout elapses (0 = no timeout). Calling SendSync from
// within a callback already running on this worker returns
// fdtypes.StatusDeadLock.
func (w *Worker) SendSync(fn func(), timeout time.Duration) error {
	return w.submitSync(false, timeout, fn)
}

// NewTimer creates a timer that fires fn on this worker's goroutine.
func (w *Worker) NewTimer(interval time.Duration, repeat bool, fn func()) *Timer {
	return newTimer(w.loop, interval, repeat, fn)
}

// Discard drops every job currently queued without running it. Use
// Stop for the default "flush to completion" behavior.
func (w *Worker) Discard() { w.discard() }

// Stop flushes any pending jobs to completion, then stops the worker
// goroutine.
func (w *Worker) Stop() { w.stop() }

// DiscardedJobs returns how many jobs were dropped because the queue
// was full.
func (w *Worker) DiscardedJobs() uint64 { return w.discardedJobs() }
