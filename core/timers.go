package core

import (
	"time"

	"github.com/benbjohnson/clock"
)

// roundTimeout computes T(round) = base * 2^round, capped at max.
// Saturating the shift and comparing against max/2^round before
// multiplying avoids overflow for pathologically high rounds.
func roundTimeout(base, max time.Duration, round uint64) time.Duration {
	if round > 32 {
		round = 32
	}
	mult := time.Duration(uint64(1) << round)
	if base <= 0 || base > max/mult {
		return max
	}
	return base * mult
}

// timers owns the three cancellable one-shot timers a replica runs: the
// round timer, the future-block timer and the request timer. All are
// driven by an injectable clock.Clock so tests can advance virtual time
// deterministically instead of sleeping.
type timers struct {
	clock clock.Clock

	round   *clock.Timer
	future  *clock.Timer
	request *clock.Timer
}

func newTimers(c clock.Clock) *timers {
	if c == nil {
		c = clock.New()
	}
	return &timers{clock: c}
}

// startRound (re)starts the round timer for d, cancelling any previous
// instance. fire is invoked on expiry, on its own goroutine. Starting a
// round timer also cancels any future-block or request timer armed by an
// earlier round: moving to a new round drops whatever buffered
// PRE-PREPARE that timer would have re-injected, and invalidates any
// stale give-up-on-proposing deadline from the round just left.
func (t *timers) startRound(d time.Duration, fire func()) {
	t.stopRound()
	t.stopFuture()
	t.stopRequest()
	t.round = t.clock.AfterFunc(d, fire)
}

func (t *timers) stopRound() {
	if t.round != nil {
		t.round.Stop()
		t.round = nil
	}
}

// startFuture arms the future-block timer for d, cancelling any previous
// instance. See startRound: arming a new round timer also cancels this
// one, so a stale future-block timer never outlives the round it was
// armed in.
func (t *timers) startFuture(d time.Duration, fire func()) {
	t.stopFuture()
	t.future = t.clock.AfterFunc(d, fire)
}

func (t *timers) stopFuture() {
	if t.future != nil {
		t.future.Stop()
		t.future = nil
	}
}

// startRequest arms the request-timeout timer for d, cancelling any
// previous instance.
func (t *timers) startRequest(d time.Duration, fire func()) {
	t.stopRequest()
	t.request = t.clock.AfterFunc(d, fire)
}

func (t *timers) stopRequest() {
	if t.request != nil {
		t.request.Stop()
		t.request = nil
	}
}

// stopAll cancels every timer; called on transition into Final and on
// shutdown.
func (t *timers) stopAll() {
	t.stopRound()
	t.stopFuture()
	t.stopRequest()
}
