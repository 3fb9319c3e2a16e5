package context

import (
	"sync/atomic"
	"time"

	"github.com/cuemby/fdbus/pkg/fdtypes"
	"github.com/rs/zerolog"
)

// defaultQueueSize bounds a loop's job queues; newLoop uses it for any
// queue limit of zero or less.
const defaultQueueSize = 4096

// loop is the cooperative single-goroutine job runner shared by
// Context and Worker. All state it owns is touched only from its own
// goroutine; everything else talks to it exclusively through Submit*.
type loop struct {
	name        string
	urgentCh    chan *Job
	normalCh    chan *Job
	stopCh      chan struct{}
	stoppedCh   chan struct{}
	inLoop      atomic.Bool
	discarded   atomic.Uint64
	queueLimit  int
	log         zerolog.Logger
}

func newLoop(name string, queueLimit int, log zerolog.Logger) *loop {
	if queueLimit <= 0 {
		queueLimit = defaultQueueSize
	}
	return &loop{
		name:       name,
		urgentCh:   make(chan *Job, queueLimit),
		normalCh:   make(chan *Job, queueLimit),
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
		queueLimit: queueLimit,
		log:        log,
	}
}

// start launches the dispatch goroutine. It must be called exactly once.
func (l *loop) start() {
	go l.run()
}

func (l *loop) run() {
	defer close(l.stoppedCh)
	for {
		// Urgent jobs preempt normal jobs at dispatch boundaries, never
		// mid-job: we only ever check between iterations of this loop.
		select {
		case j := <-l.urgentCh:
			l.exec(j)
			continue
		case <-l.stopCh:
			l.drain()
			return
		default:
		}

		select {
		case j := <-l.urgentCh:
			l.exec(j)
		case j := <-l.normalCh:
			l.exec(j)
		case <-l.stopCh:
			l.drain()
			return
		}
	}
}

func (l *loop) exec(j *Job) {
	l.inLoop.Store(true)
	j.run()
	l.inLoop.Store(false)
}

// drain runs every job still queued, in priority order, before the
// loop goroutine exits. Dropping a Worker flushes its queue to
// completion this way rather than discarding pending work.
func (l *loop) drain() {
	for {
		select {
		case j := <-l.urgentCh:
			l.exec(j)
		default:
			select {
			case j := <-l.normalCh:
				l.exec(j)
			default:
				return
			}
		}
	}
}

// discard empties both queues without running anything, for callers
// that explicitly want to discard rather than flush pending jobs.
func (l *loop) discard() {
	for {
		select {
		case <-l.urgentCh:
		case <-l.normalCh:
		default:
			return
		}
	}
}

func (l *loop) stop() {
	close(l.stopCh)
	<-l.stoppedCh
}

// onLoopGoroutine reports whether the calling code is running as part
// of a Job currently being executed by this loop's own goroutine. It
// relies on the fact that only the loop goroutine ever sets inLoop,
// and does so only for the duration of exactly one job; a concurrent
// call from any other goroutine can only observe a transient snapshot,
// never mistake itself for the loop.
func (l *loop) onLoopGoroutine() bool {
	return l.inLoop.Load()
}

func (l *loop) submitAsync(urgent bool, fn func()) {
	j := newAsyncJob(urgent, fn)
	ch := l.normalCh
	if urgent {
		ch = l.urgentCh
	}
	select {
	case ch <- j:
	default:
		l.discarded.Add(1)
		l.log.Warn().Str("loop", l.name).Msg("job queue full, job discarded")
	}
}

// submitSync runs fn on the loop goroutine and blocks the caller until
// it completes or timeout elapses (0 = wait forever). It returns
// fdtypes.StatusDeadLock if called from the loop's own goroutine.
func (l *loop) submitSync(urgent bool, timeout time.Duration, fn func()) error {
	if l.onLoopGoroutine() {
		return fdtypes.StatusDeadLock
	}
	j := newSyncJob(urgent, fn)
	ch := l.normalCh
	if urgent {
		ch = l.urgentCh
	}
	select {
	case ch <- j:
	case <-time.After(durationOrForever(timeout)):
		return fdtypes.StatusTimeout
	}

	if timeout <= 0 {
		<-j.done
		return nil
	}
	select {
	case <-j.done:
		return nil
	case <-time.After(timeout):
		// The job may still run later; we just stop waiting for it.
		return fdtypes.StatusTimeout
	}
}

// durationOrForever turns a "0 means forever" duration into a
// huge-but-finite value, used only to bound the enqueue step: the
// queue is buffered and rarely blocks, but this keeps a saturated
// queue from wedging a synchronous caller forever.
func durationOrForever(d time.Duration) time.Duration {
	if d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// discardedJobs returns the number of jobs dropped because the queue
// was full.
func (l *loop) discardedJobs() uint64 { return l.discarded.Load() }
