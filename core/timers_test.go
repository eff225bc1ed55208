package core

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestRoundTimeoutExponentialBackoff(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	require.Equal(t, base, roundTimeout(base, max, 0))
	require.Equal(t, 2*base, roundTimeout(base, max, 1))
	require.Equal(t, 4*base, roundTimeout(base, max, 2))
	require.Equal(t, max, roundTimeout(base, max, 10), "should cap at max once 2^round overshoots it")
}

func TestRoundTimeoutNeverExceedsMax(t *testing.T) {
	require.Equal(t, 5*time.Minute, roundTimeout(10*time.Second, 5*time.Minute, 40))
}

func TestTimersFireOnMockClock(t *testing.T) {
	mock := clock.NewMock()
	tm := newTimers(mock)

	fired := make(chan struct{}, 1)
	tm.startRound(time.Second, func() { fired <- struct{}{} })

	select {
	case <-fired:
		t.Fatal("timer fired before its duration elapsed")
	default:
	}

	mock.Add(time.Second)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire after the mock clock advanced")
	}
}

func TestStopRoundCancelsPendingFire(t *testing.T) {
	mock := clock.NewMock()
	tm := newTimers(mock)

	fired := make(chan struct{}, 1)
	tm.startRound(time.Second, func() { fired <- struct{}{} })
	tm.stopRound()

	mock.Add(2 * time.Second)

	select {
	case <-fired:
		t.Fatal("stopped timer should not fire")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStartRoundCancelsPendingFutureTimer(t *testing.T) {
	mock := clock.NewMock()
	tm := newTimers(mock)

	futureFired := make(chan struct{}, 1)
	tm.startFuture(time.Second, func() { futureFired <- struct{}{} })

	// Moving to a new round drops the buffered PRE-PREPARE the
	// future-block timer would have re-injected.
	tm.startRound(5*time.Second, func() {})

	mock.Add(time.Second)

	select {
	case <-futureFired:
		t.Fatal("future-block timer from the old round should have been cancelled")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStartRoundCancelsPendingRequestTimer(t *testing.T) {
	mock := clock.NewMock()
	tm := newTimers(mock)

	requestFired := make(chan struct{}, 1)
	tm.startRequest(time.Second, func() { requestFired <- struct{}{} })

	// Moving to a new round invalidates the give-up-on-proposing deadline
	// from the round just left.
	tm.startRound(5*time.Second, func() {})

	mock.Add(time.Second)

	select {
	case <-requestFired:
		t.Fatal("request timer from the old round should have been cancelled")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRequestTimerFiresOnMockClock(t *testing.T) {
	mock := clock.NewMock()
	tm := newTimers(mock)

	fired := make(chan struct{}, 1)
	tm.startRequest(time.Second, func() { fired <- struct{}{} })

	mock.Add(time.Second)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("request timer did not fire after the mock clock advanced")
	}
}
