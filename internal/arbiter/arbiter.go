package arbiter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrGlobalTimeout is the cancellation cause of a context whose deadline fired
var ErrGlobalTimeout = errors.New("global test deadline exceeded")

const (
	stateArmed int32 = iota
	stateFired
	stateCanceled
)

// Arbiter races a single global deadline against normal completion of a test.
// Exactly one of Fire and Cancel takes effect: the first one wins.
type Arbiter struct {
	state    atomic.Int32
	timer    *time.Timer
	cancel   context.CancelCauseFunc
	firedCh  chan struct{}
	deadline time.Time
	once     sync.Once
}

// Arm starts the deadline. The returned context is canceled with ErrGlobalTimeout
// when the deadline fires, and must be threaded through every blocking call.
func Arm(parent context.Context, timeout time.Duration) (*Arbiter, context.Context) {
	ctx, cancel := context.WithCancelCause(parent)
	a := &Arbiter{
		cancel:   cancel,
		firedCh:  make(chan struct{}),
		deadline: time.Now().Add(timeout),
	}
	a.timer = time.AfterFunc(timeout, a.fire)
	log.Infof("[Arbiter] Armed global deadline of %s", timeout)
	return a, ctx
}

// fire delivers the timeout unless the test already finished
func (a *Arbiter) fire() {
	if !a.state.CompareAndSwap(stateArmed, stateFired) {
		return
	}
	log.Warnf("[Arbiter] Global deadline fired at %d", time.Now().UnixMilli())
	close(a.firedCh)
	a.cancel(ErrGlobalTimeout)
}

// Cancel signals that the test finished normally. It returns false when the
// deadline already fired, in which case the timeout outcome stands.
// A nil arbiter was never armed and cancels trivially.
func (a *Arbiter) Cancel() bool {
	if a == nil {
		return true
	}
	won := a.state.CompareAndSwap(stateArmed, stateCanceled)
	if won {
		a.timer.Stop()
		log.Infof("[Arbiter] Canceled with %s left", time.Until(a.deadline).Round(time.Millisecond))
	}
	a.release()
	return won || a.state.Load() == stateCanceled
}

// release frees the derived context once the race is decided
func (a *Arbiter) release() {
	a.once.Do(func() {
		if a.state.Load() == stateCanceled {
			a.cancel(context.Canceled)
		}
	})
}

// Fired reports whether the deadline won the race
func (a *Arbiter) Fired() bool {
	return a != nil && a.state.Load() == stateFired
}

// Done is closed when the deadline fires
func (a *Arbiter) Done() <-chan struct{} {
	if a == nil {
		return nil
	}
	return a.firedCh
}

// Deadline returns the instant the deadline fires
func (a *Arbiter) Deadline() time.Time {
	if a == nil {
		return time.Time{}
	}
	return a.deadline
}
