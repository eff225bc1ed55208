package core

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/corebft/ibft/messages"
)

// TestClassifyViewAgreesWithCompare checks that the view classification
// a replica uses to accept/reject messages always agrees with View's
// total order, for any pair of views.
func TestClassifyViewAgreesWithCompare(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		current := messages.View{
			Sequence: rapid.Uint64Range(0, 1000).Draw(t, "cur_seq"),
			Round:    rapid.Uint64Range(0, 1000).Draw(t, "cur_round"),
		}
		incoming := messages.View{
			Sequence: rapid.Uint64Range(0, 1000).Draw(t, "in_seq"),
			Round:    rapid.Uint64Range(0, 1000).Draw(t, "in_round"),
		}

		class := classifyView(current, incoming)
		cmp := incoming.Compare(current)

		switch class {
		case ViewSame:
			if cmp != 0 {
				t.Fatalf("classified Same but Compare=%d for %+v vs %+v", cmp, incoming, current)
			}
		case ViewOld:
			if cmp >= 0 {
				t.Fatalf("classified Old but Compare=%d for %+v vs %+v", cmp, incoming, current)
			}
		case ViewFuture:
			if cmp <= 0 {
				t.Fatalf("classified Future but Compare=%d for %+v vs %+v", cmp, incoming, current)
			}
		}
	})
}

// TestCalcProposerIsDeterministicAndInSet checks that proposer election
// is a pure function of its inputs, and always names an actual
// validator.
func TestCalcProposerIsDeterministicAndInSet(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 16).Draw(t, "n")
		addrs := make([]messages.Address, n)
		for i := range addrs {
			var a messages.Address
			a[len(a)-1] = byte(i + 1)
			addrs[i] = a
		}

		policy := RoundRobin
		if rapid.Bool().Draw(t, "sticky") {
			policy = Sticky
		}

		vs := NewValidatorSet(addrs, policy)

		var parent messages.Hash
		parent[0] = byte(rapid.IntRange(0, 255).Draw(t, "parent_byte"))
		height := rapid.Uint64Range(0, 10000).Draw(t, "height")
		round := rapid.Uint64Range(0, 64).Draw(t, "round")

		p1 := vs.CalcProposer(parent, height, round)
		p2 := vs.CalcProposer(parent, height, round)
		if p1 != p2 {
			t.Fatalf("CalcProposer is not deterministic: %v != %v", p1, p2)
		}
		if !vs.Contains(p1) {
			t.Fatalf("CalcProposer returned a non-member: %v", p1)
		}
	})
}

// TestQuorumNeverExceedsValidatorSetSize checks that the 2F+1 commit
// quorum is achievable within a 3F+1 validator set, and that any two
// such quorums overlap in at least one honest validator.
func TestQuorumNeverExceedsValidatorSetSize(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := rapid.Uint64Range(0, 1000).Draw(t, "f")
		cfg := Config{F: f}

		n := 3*f + 1
		if cfg.Quorum() > n {
			t.Fatalf("quorum %d exceeds validator set size %d for f=%d", cfg.Quorum(), n, f)
		}

		overlap := int64(2*cfg.Quorum()) - int64(n)
		if overlap < int64(f+1) {
			t.Fatalf("two quorums overlap by %d, less than f+1=%d", overlap, f+1)
		}
	})
}
