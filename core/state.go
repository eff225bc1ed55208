package core

import (
	"sync"

	"github.com/corebft/ibft/messages"
)

// ReplicaState enumerates the replica's position within the current
// round, monotonically forward except on round change, which resets it
// to AcceptRequest.
type ReplicaState int

const (
	AcceptRequest ReplicaState = iota
	Preprepared
	Prepared
	Committed
	Final
)

func (s ReplicaState) String() string {
	switch s {
	case AcceptRequest:
		return "accept_request"
	case Preprepared:
		return "preprepared"
	case Prepared:
		return "prepared"
	case Committed:
		return "committed"
	case Final:
		return "final"
	default:
		return "unknown"
	}
}

// lock records the digest a replica has committed to at the current
// height, the view in which the lock was taken, and the proposal body so
// a newly re-elected proposer can re-propose the same locked value — the
// proposal body would otherwise be lost when ResetRound clears the
// per-round preprepare on every round change.
type lock struct {
	digest   messages.Hash
	view     messages.View
	proposal messages.Proposal
}

// RoundState is the mutable state for the in-progress height: the
// current view, the pending PRE-PREPARE, the lock, and the staged
// request. Vote accumulation itself lives in messages.Store, queried by
// view; RoundState only remembers the view/lock/preprepare needed to
// interpret those votes.
type RoundState struct {
	mu sync.Mutex

	view           messages.View
	preprepare     *messages.PrePrepare
	lock           *lock
	pendingRequest *messages.Request
	state          ReplicaState
}

func newRoundState(height uint64) *RoundState {
	return &RoundState{
		view:  messages.View{Sequence: height, Round: 0},
		state: AcceptRequest,
	}
}

func (rs *RoundState) View() messages.View {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.view
}

func (rs *RoundState) SetView(v messages.View) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.view = v
}

func (rs *RoundState) State() ReplicaState {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.state
}

func (rs *RoundState) SetState(s ReplicaState) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.state = s
}

func (rs *RoundState) PrePrepare() *messages.PrePrepare {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.preprepare
}

// Accept is the pure state mutation that stores the accepted
// PRE-PREPARE. No separate consensus timestamp is recorded; the
// Timestamp of the stored preprepare's block is the only copy.
func (rs *RoundState) Accept(pp *messages.PrePrepare) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.preprepare = pp
}

// Lock returns the current lock, or ok=false if unlocked.
func (rs *RoundState) Lock() (digest messages.Hash, view messages.View, ok bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.lock == nil {
		return messages.Hash{}, messages.View{}, false
	}
	return rs.lock.digest, rs.lock.view, true
}

// LockedProposal returns the proposal body backing the current lock, if any.
func (rs *RoundState) LockedProposal() (messages.Proposal, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.lock == nil {
		return messages.Proposal{}, false
	}
	return rs.lock.proposal, true
}

// SetLock commits the replica to digest at view, remembering proposal so
// it can be re-proposed verbatim if this replica later becomes proposer.
// Once set, the replica refuses any PRE-PREPARE at the current height
// carrying a different digest.
func (rs *RoundState) SetLock(digest messages.Hash, view messages.View, proposal messages.Proposal) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.lock = &lock{digest: digest, view: view, proposal: proposal}
}

// ClearLock drops the lock. Only called on commit of a block at this
// height, or on height advance.
func (rs *RoundState) ClearLock() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.lock = nil
}

func (rs *RoundState) PendingRequest() *messages.Request {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.pendingRequest
}

func (rs *RoundState) SetPendingRequest(r *messages.Request) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.pendingRequest = r
}

// ResetRound clears per-round fields (preprepare, replica state) on a
// round change, but preserves the lock — lock preservation across round
// changes is the core safety property that keeps the protocol from
// committing two different values at the same height.
func (rs *RoundState) ResetRound(newView messages.View) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.view = newView
	rs.preprepare = nil
	rs.state = AcceptRequest
}
