package core

import (
	"bytes"
	"sort"

	"github.com/corebft/ibft/messages"
)

// ValidatorSet is an ordered, duplicate-free snapshot of validators for a
// given height. Snapshots are immutable once built and may be shared by
// reference across components; proposer election is a pure function of
// the snapshot and never mutates it.
type ValidatorSet struct {
	addrs  []messages.Address
	index  map[messages.Address]int
	policy ProposerPolicy
}

// NewValidatorSet builds a deterministically-ordered (ascending by
// address) snapshot from addrs, deduplicating any repeats.
func NewValidatorSet(addrs []messages.Address, policy ProposerPolicy) *ValidatorSet {
	seen := make(map[messages.Address]struct{}, len(addrs))
	unique := make([]messages.Address, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		unique = append(unique, a)
	}
	sort.Slice(unique, func(i, j int) bool {
		return bytes.Compare(unique[i][:], unique[j][:]) < 0
	})

	idx := make(map[messages.Address]int, len(unique))
	for i, a := range unique {
		idx[a] = i
	}

	return &ValidatorSet{addrs: unique, index: idx, policy: policy}
}

// Size returns the number of validators in the set.
func (vs *ValidatorSet) Size() int { return len(vs.addrs) }

// Contains reports whether addr is a member of the set.
func (vs *ValidatorSet) Contains(addr messages.Address) bool {
	_, ok := vs.index[addr]
	return ok
}

// Validators returns the ordered validator addresses. The returned slice
// must not be mutated by the caller.
func (vs *ValidatorSet) Validators() []messages.Address {
	return vs.addrs
}

// CalcProposer is a pure function of (set, parentHash, height, round): it
// returns the elected proposer without mutating the set.
func (vs *ValidatorSet) CalcProposer(parentHash messages.Hash, height, round uint64) messages.Address {
	if len(vs.addrs) == 0 {
		return messages.Address{}
	}

	var seed uint64
	switch vs.policy {
	case Sticky:
		// Sticky per height: the round does not influence the proposer,
		// only the height (seeded by the parent hash so that distinct
		// chains of the same height pick distinct proposers).
		seed = hashSeed(parentHash) + height
	default: // RoundRobin
		seed = hashSeed(parentHash) + height + round
	}

	return vs.addrs[seed%uint64(len(vs.addrs))]
}

// IsProposer reports whether addr is the elected proposer for
// (parentHash, height, round).
func (vs *ValidatorSet) IsProposer(addr messages.Address, parentHash messages.Hash, height, round uint64) bool {
	return vs.CalcProposer(parentHash, height, round) == addr
}

// hashSeed folds a Hash down to a uint64 seed; any deterministic folding
// works since only relative ordering across validators matters.
func hashSeed(h messages.Hash) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(h[i])
	}
	return v
}
