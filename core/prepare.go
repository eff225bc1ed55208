package core

import "github.com/corebft/ibft/messages"

// sendPrepare broadcasts a PREPARE Subject for digest at view.
func (c *Core) sendPrepare(view messages.View, digest messages.Hash) {
	subj := messages.Subject{View: view, Digest: digest}
	env := &messages.Envelope{
		Kind:    messages.KindPrepare,
		From:    c.id,
		Payload: messages.EncodeSubject(subj),
	}
	c.transport.Broadcast(env)

	// The sender counts its own vote through the normal path.
	c.handlePrepare(env, c.id)
}

// handlePrepare processes an inbound PREPARE vote.
func (c *Core) handlePrepare(env *messages.Envelope, src messages.Address) {
	subj, err := messages.DecodeSubject(env.Payload)
	if err != nil {
		c.fail(ErrMalformedMessage, err)
		return
	}

	current := c.rs.View()
	switch classifyView(current, subj.View) {
	case ViewOld:
		c.fail(ErrOldMessage, nil)
		return
	case ViewFuture:
		c.fail(ErrFutureMessage, nil)
		return
	}

	if !c.valSet.Contains(src) {
		c.fail(ErrNotFromProposer, nil)
		return
	}

	pp := c.rs.PrePrepare()
	if pp != nil && subj.Digest != pp.Proposal.Block.Hash {
		c.fail(ErrInconsistentSubject, nil)
		return
	}

	// The vote is recorded regardless of whether our own PRE-PREPARE has
	// landed yet. Votes are keyed by view, so a vote buffered in one round
	// never counts toward another round's quorum; the store keeps them
	// until the height advances and places no bound on their number.
	// Quorum is only actable once we have accepted a matching PRE-PREPARE.
	added := c.store.AddVote(subj.View, messages.KindPrepare, subj.Digest, src, env)
	if !added || pp == nil {
		return
	}

	c.tryAdvanceToPrepared(current, subj.Digest)
}

// tryAdvanceToPrepared promotes the replica to Prepared once 2f+1
// distinct PREPARE senders are on record for (view, digest). Called
// both from handlePrepare and after accepting a PRE-PREPARE, since the
// quorum may already exist from votes that arrived first.
func (c *Core) tryAdvanceToPrepared(view messages.View, digest messages.Hash) {
	if c.rs.State() >= Prepared {
		return
	}

	count := c.store.CountVotes(view, messages.KindPrepare, digest)
	if uint64(count) < c.cfg.Quorum() {
		return
	}

	pp := c.rs.PrePrepare()
	c.rs.SetLock(digest, view, pp.Proposal)
	c.rs.SetState(Prepared)
	c.metrics.SetState(Prepared)
	c.sendCommit(view, digest)
}
