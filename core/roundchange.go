package core

import "github.com/corebft/ibft/messages"

// sendNextRoundChange emits ROUND-CHANGE for current_round+1 and installs
// the next, exponentially longer round timer.
func (c *Core) sendNextRoundChange() {
	current := c.rs.View()
	target := messages.View{Sequence: current.Sequence, Round: current.Round + 1}

	env := &messages.Envelope{
		Kind:    messages.KindRoundChange,
		From:    c.id,
		Payload: messages.EncodeView(target),
	}
	c.transport.Broadcast(env)

	// Count our own vote through the normal path.
	c.handleRoundChange(env, c.id)

	// Our own vote did not move us to a new round: re-arm the round timer
	// with the target round's back-off, so the ROUND-CHANGE is sent again
	// if no quorum forms before it expires.
	if c.rs.View() == current {
		d := roundTimeout(c.cfg.BaseRoundTimeout, c.cfg.MaxRoundTimeout, target.Round)
		round := current.Round
		c.timers.startRound(d, func() {
			select {
			case c.mailbox <- roundTimeoutEvent{round: round}:
			default:
			}
		})
	}
}

// onRoundTimeout is invoked when the round timer for `round` expires. A
// stale timer (one that fired for a round we've since left) is ignored.
func (c *Core) onRoundTimeout(round uint64) {
	if c.rs.View().Round != round {
		return
	}
	c.log.Info("round timeout expired", "round", round)
	c.sendNextRoundChange()
}

// onRequestTimeout fires when this replica, elected proposer for round
// with nothing staged to propose, waited Config.RequestTimeout for a
// pending_request that never arrived. A stale timer (one for a round
// we've since left, or one that fired after a proposal was accepted
// anyway) is ignored.
func (c *Core) onRequestTimeout(round uint64) {
	if c.rs.View().Round != round {
		return
	}
	if c.rs.State() != AcceptRequest {
		return
	}
	c.log.Info("request timeout expired with no pending request", "round", round)
	c.sendNextRoundChange()
}

// handleRoundChange processes an inbound ROUND-CHANGE vote.
func (c *Core) handleRoundChange(env *messages.Envelope, src messages.Address) {
	target, err := messages.DecodeView(env.Payload)
	if err != nil {
		c.fail(ErrMalformedMessage, err)
		return
	}

	current := c.rs.View()
	if target.Sequence != current.Sequence {
		// Round-change traffic for a height we've already left or not
		// yet reached; the per-height store scope makes this a no-op.
		return
	}

	if !c.valSet.Contains(src) {
		c.fail(ErrNotFromProposer, nil)
		return
	}

	count := c.store.AddRoundChange(target.Round, src, target)

	// f+1 jump rule: evidence that at least one correct validator has
	// already moved past our round is enough to follow, without waiting
	// for quorum.
	if target.Round > current.Round && uint64(count) >= c.cfg.F+1 {
		if r, ok := c.store.EarliestRoundAbove(current.Round, int(c.cfg.F+1)); ok {
			c.jumpToRound(r)
			return
		}
	}

	// 2f+1 threshold at exactly the target round: commit to it.
	if uint64(count) >= c.cfg.Quorum() && target.Round >= current.Round {
		c.commitToRound(target.Round)
	}
}

// jumpToRound adopts round on f+1 evidence: cancel the round timer,
// re-enter AcceptRequest, no lock change.
func (c *Core) jumpToRound(round uint64) {
	if round <= c.rs.View().Round {
		return
	}
	view := messages.View{Sequence: c.rs.View().Sequence, Round: round}
	c.rs.ResetRound(view)
	c.metrics.SetRound(round)
	c.metrics.SetState(AcceptRequest)
	c.armRoundTimer()
	c.armRequestTimer()
}

// commitToRound is reached on a full 2f+1 ROUND-CHANGE quorum for r*:
// commit to r*, start its round timer, elect the new proposer, and if
// this replica is that proposer and holds a pending request or a locked
// proposal, send PRE-PREPARE immediately.
func (c *Core) commitToRound(round uint64) {
	if round < c.rs.View().Round {
		return
	}
	alreadyHere := round == c.rs.View().Round && c.rs.State() != AcceptRequest
	if alreadyHere {
		return
	}

	view := messages.View{Sequence: c.rs.View().Sequence, Round: round}
	c.rs.ResetRound(view)
	c.metrics.SetRound(round)
	c.metrics.SetState(AcceptRequest)
	c.armRoundTimer()

	if !c.isProposer(view) {
		return
	}

	if req := c.rs.PendingRequest(); req != nil {
		c.sendPrePrepare(*req)
		return
	}
	if proposal, locked := c.rs.LockedProposal(); locked {
		c.sendPrePrepare(messages.Request{Proposal: proposal})
		return
	}
	c.armRequestTimer()
}
