// Package core implements the per-replica IBFT/PBFT state machine:
// PRE-PREPARE, PREPARE, COMMIT and ROUND-CHANGE handling, the locking
// discipline that preserves safety across round changes, and the timers
// that drive liveness.
package core

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/corebft/ibft/messages"
)

// Core is a single replica's IBFT state machine instance. All state
// mutations happen on the goroutine running Run; OnRequest and OnGossip
// may be called concurrently from other goroutines and simply enqueue
// onto the core's mailbox, preserving per-replica receipt ordering.
type Core struct {
	cfg Config
	log Logger

	id        messages.Address
	backend   Backend
	transport Transport
	metrics   MetricsSink

	timers *timers
	store  *messages.Store
	rs     *RoundState

	valSet     *ValidatorSet
	parentHash messages.Hash

	mailbox chan event
	fatal   error
}

// Option configures optional Core dependencies.
type Option func(*Core)

// WithMetrics attaches a metrics sink; omit for a no-op sink.
func WithMetrics(m MetricsSink) Option {
	return func(c *Core) { c.metrics = m }
}

// WithClock injects a clock.Clock (e.g. clock.NewMock() in tests) in
// place of the wall clock.
func WithClock(cl clock.Clock) Option {
	return func(c *Core) { c.timers = newTimers(cl) }
}

// New creates a Core for replica id.
func New(id messages.Address, cfg Config, log Logger, backend Backend, transport Transport, opts ...Option) *Core {
	c := &Core{
		cfg:       cfg,
		log:       log,
		id:        id,
		backend:   backend,
		transport: transport,
		metrics:   noopMetrics{},
		timers:    newTimers(nil),
		store:     messages.NewStore(),
		mailbox:   make(chan event, 256),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnRequest enqueues a candidate proposal for the current height.
func (c *Core) OnRequest(req messages.Request) {
	select {
	case c.mailbox <- requestEvent{req}:
	default:
		c.log.Error("mailbox full, dropping request", "request_id", req.ID)
	}
}

// OnGossip enqueues an inbound signed gossip envelope from src.
func (c *Core) OnGossip(env *messages.Envelope, src messages.Address) {
	select {
	case c.mailbox <- gossipEvent{envelope: env, from: src}:
	default:
		c.log.Error("mailbox full, dropping gossip message", "kind", env.Kind, "from", src)
	}
}

// Run drives the replica starting at startHeight with startParent as the
// parent hash of the first block to be decided, until ctx is cancelled or
// a fatal backend error occurs. On every COMMIT, the core advances
// height internally and continues to the next sequence; Run returns nil
// when ctx is done (all timers cancelled, mailbox discarded), or the
// backend error that made further progress unsafe.
func (c *Core) Run(ctx context.Context, startHeight uint64, startParent messages.Hash) error {
	height := startHeight
	parent := startParent

	for {
		c.start(height, parent)

		next, nextParent, ok := c.runHeight(ctx)
		if !ok {
			c.timers.stopAll()
			return c.fatal
		}
		height, parent = next, nextParent
	}
}

// start initializes RoundState for height, installs the validator
// snapshot, and arms the round-0 timer.
func (c *Core) start(height uint64, parent messages.Hash) {
	c.parentHash = parent
	c.valSet = c.backend.Validators(height)
	c.store.PruneHeight(height)
	c.rs = newRoundState(height)

	c.metrics.SetRound(0)
	c.metrics.SetState(AcceptRequest)

	c.log.Info("sequence started", "height", height)
	c.armRoundTimer()

	if req := c.rs.PendingRequest(); req != nil && c.isProposer(c.rs.View()) {
		c.sendPrePrepare(*req)
		return
	}
	c.armRequestTimer()
}

// runHeight processes the mailbox until the height reaches Final (returns
// the next height/parent to continue with) or ctx is cancelled (returns
// ok=false).
func (c *Core) runHeight(ctx context.Context) (nextHeight uint64, nextParent messages.Hash, ok bool) {
	for {
		select {
		case <-ctx.Done():
			return 0, messages.Hash{}, false
		case ev := <-c.mailbox:
			if h, p, done := c.dispatch(ev); done {
				return h, p, true
			}
			if c.fatal != nil {
				return 0, messages.Hash{}, false
			}
		}
	}
}

// dispatch is the single handle(event) entry point every mailbox item
// runs through; PrePrepare/Prepare/Commit/RoundChange handling live in
// their own files as private functions invoked from here.
func (c *Core) dispatch(ev event) (nextHeight uint64, nextParent messages.Hash, committed bool) {
	switch e := ev.(type) {
	case requestEvent:
		c.onRequest(e.request)
	case gossipEvent:
		c.onGossip(e.envelope, e.from)
	case roundTimeoutEvent:
		c.onRoundTimeout(e.round)
	case futureBlockEvent:
		c.onFutureBlock(e.preprepare, e.from)
	case requestTimeoutEvent:
		c.onRequestTimeout(e.round)
	}

	if c.rs.State() == Final {
		pp := c.rs.PrePrepare()
		return pp.Proposal.Block.Height + 1, pp.Proposal.Block.Hash, true
	}
	return 0, messages.Hash{}, false
}

// onRequest stages the proposal and, if we are the proposer for the
// current round and still accepting requests, sends PRE-PREPARE
// immediately.
func (c *Core) onRequest(req messages.Request) {
	c.rs.SetPendingRequest(&req)

	if c.rs.State() == AcceptRequest && c.isProposer(c.rs.View()) {
		c.sendPrePrepare(req)
	}
}

// onGossip routes an inbound envelope to its handler by kind.
func (c *Core) onGossip(env *messages.Envelope, src messages.Address) {
	switch env.Kind {
	case messages.KindPrePrepare:
		c.handlePrePrepare(env, src)
	case messages.KindPrepare:
		c.handlePrepare(env, src)
	case messages.KindCommit:
		c.handleCommit(env, src)
	case messages.KindRoundChange:
		c.handleRoundChange(env, src)
	default:
		c.log.Debug("dropping envelope with unknown kind", "kind", env.Kind)
	}
}

// isProposer reports whether this replica is the elected proposer for v.
func (c *Core) isProposer(v messages.View) bool {
	return c.valSet.IsProposer(c.id, c.parentHash, v.Sequence, v.Round)
}

// armRoundTimer (re)starts the round timer for the current round.
func (c *Core) armRoundTimer() {
	v := c.rs.View()
	d := roundTimeout(c.cfg.BaseRoundTimeout, c.cfg.MaxRoundTimeout, v.Round)
	round := v.Round
	c.timers.startRound(d, func() {
		select {
		case c.mailbox <- roundTimeoutEvent{round: round}:
		default:
		}
	})
}

// armRequestTimer starts the request-timeout deadline for the current
// round when this replica is its elected proposer but has nothing to
// propose yet: no pending_request staged and no locked proposal to
// re-propose. It is a no-op otherwise.
func (c *Core) armRequestTimer() {
	if c.cfg.RequestTimeout <= 0 {
		return
	}
	v := c.rs.View()
	if !c.isProposer(v) {
		return
	}
	if c.rs.PendingRequest() != nil {
		return
	}
	if _, locked := c.rs.LockedProposal(); locked {
		return
	}

	round := v.Round
	c.timers.startRequest(c.cfg.RequestTimeout, func() {
		select {
		case c.mailbox <- requestTimeoutEvent{round: round}:
		default:
		}
	})
}

// armFutureBlockTimer arms the re-injection timer for a buffered
// PRE-PREPARE that verify reported as FutureBlock.
func (c *Core) armFutureBlockTimer(delay time.Duration, pp messages.PrePrepare, from messages.Address) {
	c.timers.startFuture(delay, func() {
		select {
		case c.mailbox <- futureBlockEvent{preprepare: pp, from: from}:
		default:
		}
	})
}

func (c *Core) onFutureBlock(pp messages.PrePrepare, from messages.Address) {
	env := &messages.Envelope{
		Kind:    messages.KindPrePrepare,
		From:    from,
		Payload: messages.EncodePrePrepare(pp),
	}
	c.handlePrePrepare(env, from)
}
