package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corebft/ibft/messages"
)

// fakeBackend is a minimal core.Backend stand-in: headers/bodies are
// pre-seeded directly rather than populated through Commit, so the test
// can drive handlePrePrepare without a running Core.Run loop.
type fakeBackend struct {
	headers map[uint64]Header
	bodies  map[uint64]map[messages.Hash]bool
	valSet  *ValidatorSet
}

func (b *fakeBackend) Verify(messages.Proposal) (time.Duration, error) { return 0, nil }

func (b *fakeBackend) HeaderByHeight(h uint64) (Header, bool) {
	hdr, ok := b.headers[h]
	return hdr, ok
}

func (b *fakeBackend) Validators(uint64) *ValidatorSet { return b.valSet }

func (b *fakeBackend) HasProposal(hash messages.Hash, height uint64) bool {
	return b.bodies[height][hash]
}

func (b *fakeBackend) Commit(messages.Proposal, []messages.CommittedSeal) error { return nil }

// spyTransport records every envelope broadcast through it.
type spyTransport struct {
	sent []*messages.Envelope
}

func (s *spyTransport) Broadcast(env *messages.Envelope) {
	s.sent = append(s.sent, env)
}

type silentLogger struct{}

func (silentLogger) Info(string, ...interface{})  {}
func (silentLogger) Debug(string, ...interface{}) {}
func (silentLogger) Error(string, ...interface{}) {}

// TestHandleOldPrePrepareEmitsCommitForLaggingPeer exercises the S5
// scenario: a replica already past height 1 receives a replayed
// PRE-PREPARE for height 1 from the validator that actually won
// proposer election for it, and helps the lagging sender along with a
// COMMIT for the old block instead of silently dropping the message.
func TestHandleOldPrePrepareEmitsCommitForLaggingPeer(t *testing.T) {
	addrs := []messages.Address{vaddr(1), vaddr(2), vaddr(3), vaddr(4)}
	valSet := NewValidatorSet(addrs, RoundRobin)

	const committedHeight = 1
	preHeight := uint64(committedHeight - 1)
	parentHash := messages.Hash{}
	proposer := valSet.CalcProposer(parentHash, preHeight, 0)

	digest := messages.Hash{0xAA}
	backend := &fakeBackend{
		headers: map[uint64]Header{
			committedHeight: {Height: committedHeight, Hash: digest, ParentHash: parentHash},
		},
		bodies: map[uint64]map[messages.Hash]bool{
			committedHeight: {digest: true},
		},
		valSet: valSet,
	}

	transport := &spyTransport{}

	c := &Core{
		cfg:       DefaultConfig(),
		log:       silentLogger{},
		id:        addrs[0],
		backend:   backend,
		transport: transport,
		metrics:   noopMetrics{},
		store:     messages.NewStore(),
		rs:        newRoundState(committedHeight + 1),
		valSet:    valSet,
	}

	pp := messages.PrePrepare{
		View: messages.View{Sequence: committedHeight, Round: 0},
		Proposal: messages.Proposal{
			Block: messages.Block{Height: committedHeight, Hash: digest, ParentHash: parentHash},
		},
	}
	env := &messages.Envelope{
		Kind:    messages.KindPrePrepare,
		From:    proposer,
		Payload: messages.EncodePrePrepare(pp),
	}

	c.handlePrePrepare(env, proposer)

	require.Len(t, transport.sent, 1)
	sent := transport.sent[0]
	require.Equal(t, messages.KindCommit, sent.Kind)

	subj, err := messages.DecodeSubject(sent.Payload)
	require.NoError(t, err)
	require.Equal(t, digest, subj.Digest)
	require.Equal(t, pp.View, subj.View)
}

// TestHandleOldPrePrepareIgnoresWrongProposer checks that a replay
// claiming to be from anyone other than the re-elected pre-height
// proposer is dropped silently.
func TestHandleOldPrePrepareIgnoresWrongProposer(t *testing.T) {
	addrs := []messages.Address{vaddr(1), vaddr(2), vaddr(3), vaddr(4)}
	valSet := NewValidatorSet(addrs, RoundRobin)

	const committedHeight = 1
	preHeight := uint64(committedHeight - 1)
	parentHash := messages.Hash{}
	proposer := valSet.CalcProposer(parentHash, preHeight, 0)

	var impostor messages.Address
	for _, a := range addrs {
		if a != proposer {
			impostor = a
			break
		}
	}

	digest := messages.Hash{0xAA}
	backend := &fakeBackend{
		headers: map[uint64]Header{
			committedHeight: {Height: committedHeight, Hash: digest, ParentHash: parentHash},
		},
		bodies: map[uint64]map[messages.Hash]bool{
			committedHeight: {digest: true},
		},
		valSet: valSet,
	}

	transport := &spyTransport{}

	c := &Core{
		cfg:       DefaultConfig(),
		log:       silentLogger{},
		id:        addrs[0],
		backend:   backend,
		transport: transport,
		metrics:   noopMetrics{},
		store:     messages.NewStore(),
		rs:        newRoundState(committedHeight + 1),
		valSet:    valSet,
	}

	pp := messages.PrePrepare{
		View: messages.View{Sequence: committedHeight, Round: 0},
		Proposal: messages.Proposal{
			Block: messages.Block{Height: committedHeight, Hash: digest, ParentHash: parentHash},
		},
	}
	env := &messages.Envelope{
		Kind:    messages.KindPrePrepare,
		From:    impostor,
		Payload: messages.EncodePrePrepare(pp),
	}

	c.handlePrePrepare(env, impostor)

	require.Empty(t, transport.sent, "an old PRE-PREPARE from a non-proposer must be dropped silently")
}
