package core

import (
	"github.com/corebft/ibft/messages"
)

// sendPrePrepare broadcasts a PRE-PREPARE for the staged request.
// Precondition is that we are the proposer for the current view and the
// staged request targets the current height. No state transition
// happens here on the proposer — it processes its own broadcast
// PRE-PREPARE through handlePrePrepare like any other replica.
func (c *Core) sendPrePrepare(req messages.Request) {
	view := c.rs.View()
	if req.Proposal.Block.Height != view.Sequence {
		return
	}
	if !c.isProposer(view) {
		return
	}

	pp := messages.PrePrepare{View: view, Proposal: req.Proposal}
	env := &messages.Envelope{
		Kind:    messages.KindPrePrepare,
		From:    c.id,
		Payload: messages.EncodePrePrepare(pp),
	}
	c.transport.Broadcast(env)

	// The proposer observes its own broadcast through the normal path.
	c.handlePrePrepare(env, c.id)
}

// handlePrePrepare processes an inbound PRE-PREPARE envelope.
func (c *Core) handlePrePrepare(env *messages.Envelope, src messages.Address) {
	pp, err := messages.DecodePrePrepare(env.Payload)
	if err != nil {
		c.fail(ErrMalformedMessage, err)
		c.log.Debug("dropping malformed PRE-PREPARE", "from", src, "err", err)
		return
	}

	current := c.rs.View()
	switch classifyView(current, pp.View) {
	case ViewOld:
		c.handleOldPrePrepare(pp, src)
		return
	case ViewFuture:
		// Buffering is implementation-defined; we rely on retransmission
		// rather than holding an unbounded backlog.
		c.fail(ErrFutureMessage, nil)
		return
	}

	// ViewSame: continue.
	if src != c.valSet.CalcProposer(c.parentHash, current.Sequence, current.Round) {
		c.fail(ErrNotFromProposer, nil)
		c.log.Debug("ignoring PRE-PREPARE from non-proposer", "from", src)
		return
	}

	delay, verr := c.backend.Verify(pp.Proposal)
	if verr != nil {
		e := c.fail(classifyVerifyErr(verr), verr)
		if e.Kind == ErrFutureBlockMessage {
			c.armFutureBlockTimer(delay, pp, src)
			return
		}
		// Proposer is byzantine or faulty: move on.
		c.log.Error("proposal verification failed", "err", e)
		c.sendNextRoundChange()
		return
	}

	if c.rs.State() != AcceptRequest {
		// Any other state at PRE-PREPARE time is a no-op, not an error:
		// we're already mid-round on some proposal.
		return
	}

	if digest, _, locked := c.rs.Lock(); locked {
		if digest == pp.Proposal.Block.Hash {
			c.accept(pp)
			c.rs.SetState(Prepared)
			c.metrics.SetState(Prepared)
			c.sendCommit(pp.View, pp.Proposal.Block.Hash)
		} else {
			c.sendNextRoundChange()
		}
		return
	}

	c.accept(pp)
	c.rs.SetState(Preprepared)
	c.metrics.SetState(Preprepared)
	c.sendPrepare(pp.View, pp.Proposal.Block.Hash)
}

// handleOldPrePrepare is the old-message fast path: a lagging peer
// replaying a PRE-PREPARE for an already-committed height is helped
// along with a COMMIT for that old block.
func (c *Core) handleOldPrePrepare(pp messages.PrePrepare, src messages.Address) {
	header, ok := c.backend.HeaderByHeight(pp.Proposal.Block.Height)
	if !ok {
		c.fail(ErrInvalidProposal, nil)
		return
	}
	if header.Hash != pp.Proposal.Block.Hash {
		c.fail(ErrInvalidProposal, nil)
		return
	}

	preHeight := pp.Proposal.Block.Height - 1
	preValSet := c.backend.Validators(preHeight)
	proposer := preValSet.CalcProposer(pp.Proposal.Block.ParentHash, preHeight, pp.View.Round)

	if src != proposer {
		return
	}
	if !c.backend.HasProposal(pp.Proposal.Block.Hash, pp.Proposal.Block.Height) {
		return
	}

	c.sendCommitForOldBlock(pp.View, pp.Proposal.Block.Hash)
}

// accept is the pure state mutation that records a PRE-PREPARE as the
// round's accepted proposal.
func (c *Core) accept(pp messages.PrePrepare) {
	c.rs.Accept(&pp)
}
