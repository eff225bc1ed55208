package core

import "github.com/corebft/ibft/messages"

// event is the tagged variant the core's single mailbox carries: one
// `dispatch(event)` entry point handling every kind instead of a
// goroutine or channel per message type.
type event interface{ isEvent() }

type requestEvent struct{ request messages.Request }

type gossipEvent struct {
	envelope *messages.Envelope
	from     messages.Address
}

type roundTimeoutEvent struct{ round uint64 }

// futureBlockEvent re-injects a buffered PRE-PREPARE once its future-block
// timer expires.
type futureBlockEvent struct {
	preprepare messages.PrePrepare
	from       messages.Address
}

// requestTimeoutEvent fires when a replica elected proposer for round had
// no pending_request (and no locked proposal to re-propose) for
// Config.RequestTimeout.
type requestTimeoutEvent struct{ round uint64 }

func (requestEvent) isEvent()        {}
func (gossipEvent) isEvent()         {}
func (roundTimeoutEvent) isEvent()   {}
func (futureBlockEvent) isEvent()    {}
func (requestTimeoutEvent) isEvent() {}
