package core

import "github.com/corebft/ibft/messages"

// ViewClass is the result of comparing an incoming view against the
// replica's current view.
type ViewClass int

const (
	// ViewSame means the incoming view matches the current one exactly.
	ViewSame ViewClass = iota
	// ViewOld means the incoming sequence is behind, or the sequence
	// matches but the round is behind — a replay from a lagging peer.
	ViewOld
	// ViewFuture means the incoming sequence is ahead, or the sequence
	// matches but the round is ahead.
	ViewFuture
	// ViewInconsistentSequence means the same sequence carries a round
	// that is neither equal, nor strictly comparable in the usual sense
	// (reserved for malformed comparisons; classifyView never returns
	// this for well-formed views).
	ViewInconsistentSequence
)

// classifyView compares incoming against current and returns how a
// replica should treat a message carrying the incoming view.
func classifyView(current, incoming messages.View) ViewClass {
	switch {
	case incoming.Sequence < current.Sequence:
		return ViewOld
	case incoming.Sequence > current.Sequence:
		return ViewFuture
	case incoming.Round < current.Round:
		return ViewOld
	case incoming.Round > current.Round:
		return ViewFuture
	default:
		return ViewSame
	}
}
