package core

import "github.com/corebft/ibft/messages"

// sendCommit broadcasts a COMMIT Subject for digest at view, after
// PREPARE quorum.
func (c *Core) sendCommit(view messages.View, digest messages.Hash) {
	env := c.broadcastCommit(view, digest)

	// The sender counts its own vote through the normal path.
	c.handleCommit(env, c.id)
}

// sendCommitForOldBlock emits a COMMIT for an already-committed block on
// behalf of a lagging peer. It is otherwise identical to sendCommit;
// kept as a distinct name to make the old-message fast path's call
// sites self-documenting.
func (c *Core) sendCommitForOldBlock(view messages.View, digest messages.Hash) {
	c.broadcastCommit(view, digest)
}

func (c *Core) broadcastCommit(view messages.View, digest messages.Hash) *messages.Envelope {
	subj := messages.Subject{View: view, Digest: digest}
	env := &messages.Envelope{
		Kind:    messages.KindCommit,
		From:    c.id,
		Payload: messages.EncodeSubject(subj),
	}
	c.transport.Broadcast(env)
	return env
}

// handleCommit processes an inbound COMMIT vote.
func (c *Core) handleCommit(env *messages.Envelope, src messages.Address) {
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

	added := c.store.AddVote(subj.View, messages.KindCommit, subj.Digest, src, env)
	if !added {
		return
	}

	if c.rs.State() >= Committed {
		return
	}

	count := c.store.CountVotes(subj.View, messages.KindCommit, subj.Digest)
	if uint64(count) < c.cfg.Quorum() {
		return
	}

	pp := c.rs.PrePrepare()
	if pp == nil || pp.Proposal.Block.Hash != subj.Digest {
		// We reached quorum on a digest we never accepted a PRE-PREPARE
		// for (e.g. the old-block fast path ran on our behalf without a
		// local PrePrepare on record). Progress here requires the
		// proposal body; without it we cannot finalize safely, so we
		// return instead of finalizing blind. The check runs again when
		// this replica accepts the matching PRE-PREPARE and counts its
		// own COMMIT.
		return
	}

	c.rs.SetState(Committed)
	c.metrics.SetState(Committed)

	seals := c.collectCommittedSeals(subj.View, subj.Digest)
	if err := c.backend.Commit(pp.Proposal, seals); err != nil {
		// The backend cannot make safe progress; propagate fatally
		// instead of guessing at recovery.
		c.fatal = &BackendError{Op: "commit", Err: err}
		return
	}

	c.rs.ClearLock()
	c.timers.stopAll()
	c.rs.SetState(Final)
	c.metrics.SetState(Final)
}

// collectCommittedSeals gathers the aggregated COMMIT certificate: one
// opaque seal per distinct committing validator that voted for digest.
func (c *Core) collectCommittedSeals(view messages.View, digest messages.Hash) []messages.CommittedSeal {
	envs := c.store.Envelopes(view, messages.KindCommit, digest)
	seals := make([]messages.CommittedSeal, 0, len(envs))
	for _, env := range envs {
		seals = append(seals, messages.CommittedSeal{
			Signer:    env.From,
			Signature: env.Signature,
		})
	}
	return seals
}
