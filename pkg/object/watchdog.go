package object

import (
	"sync"
	"time"

	fdctx "github.com/cuemby/fdbus/pkg/context"
	"github.com/cuemby/fdbus/pkg/fdtypes"
)

// WatchdogConfig is an Interval/Retries pair for per-session sideband
// kicks, the same shape as a generic liveness-check config.
type WatchdogConfig struct {
	Interval   time.Duration
	MaxRetries int
}

// DefaultWatchdogConfig matches the CLI default of the name server's
// `-d <interval:retries>` flag.
func DefaultWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{Interval: 2 * time.Second, MaxRetries: 3}
}

type watchState struct {
	missed       int
	awaitingAck  bool
}

// Watchdog periodically kicks every connected session over the
// watchdog sideband and calls OnBark once a session has missed
// MaxRetries consecutive kicks.
type Watchdog struct {
	cfg WatchdogConfig

	mu       sync.Mutex
	sessions map[fdtypes.SessionID]*watchState

	// Kick sends the sideband kick to session and must not block.
	Kick func(session fdtypes.SessionID)
	// OnBark is called once a session reaches MaxRetries missed kicks.
	OnBark func(session fdtypes.SessionID)

	timer *fdctx.Timer
}

// NewWatchdog creates a watchdog that ticks on owner (the Context or a
// Worker, whichever should host the periodic kick).
func NewWatchdog(owner interface {
	NewTimer(time.Duration, bool, func()) *fdctx.Timer
}, cfg WatchdogConfig) *Watchdog {
	w := &Watchdog{cfg: cfg, sessions: make(map[fdtypes.SessionID]*watchState)}
	w.timer = owner.NewTimer(cfg.Interval, true, w.tick)
	return w
}

// Start arms the periodic tick.
func (w *Watchdog) Start() { w.timer.Start() }

// Stop disarms the periodic tick.
func (w *Watchdog) Stop() { w.timer.Stop() }

// Track begins watching a session.
func (w *Watchdog) Track(session fdtypes.SessionID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sessions[session] = &watchState{}
}

// Untrack stops watching a session (on teardown, or after barking).
func (w *Watchdog) Untrack(session fdtypes.SessionID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.sessions, session)
}

// Ack records that session answered its outstanding kick.
func (w *Watchdog) Ack(session fdtypes.SessionID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if st, ok := w.sessions[session]; ok {
		st.missed = 0
		st.awaitingAck = false
	}
}

func (w *Watchdog) tick() {
	w.mu.Lock()
	var toBark []fdtypes.SessionID
	var toKick []fdtypes.SessionID
	for sess, st := range w.sessions {
		if st.awaitingAck {
			st.missed++
			if st.missed >= w.cfg.MaxRetries {
				toBark = append(toBark, sess)
				delete(w.sessions, sess)
				continue
			}
		}
		st.awaitingAck = true
		toKick = append(toKick, sess)
	}
	w.mu.Unlock()

	for _, sess := range toBark {
		if w.OnBark != nil {
			w.OnBark(sess)
		}
	}
	for _, sess := range toKick {
		if w.Kick != nil {
			w.Kick(sess)
		}
	}
}
