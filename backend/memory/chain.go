// Package memory is a reference Backend+Transport pair over an
// in-process header store, used by tests and cmd/ibftd's demo network.
// It mirrors the shape of a real chain backend closely enough to drive
// the core's Verify/HeaderByHeight/Commit contract end to end without
// any actual storage engine.
package memory

import (
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/corebft/ibft/core"
	"github.com/corebft/ibft/messages"
)

// maxFutureSkew bounds how far ahead of wall-clock a proposal's
// timestamp may be before Verify classifies it as a future block.
const maxFutureSkew = 2 * time.Second

// Chain is an in-memory, single-process ledger: committed headers,
// their full proposal bodies, and a validator-set snapshot cache keyed
// by height.
type Chain struct {
	mu sync.Mutex

	headers map[uint64]core.Header
	bodies  map[uint64]map[messages.Hash]messages.Proposal

	validators []messages.Address
	policy     core.ProposerPolicy

	// snapshots caches the *core.ValidatorSet built for a given height;
	// the set is the same validator list at every height in this
	// reference chain (no on-chain validator rotation), but a real
	// chain backend would key this cache on membership changes, which
	// is what the cache is here to exercise.
	snapshots *lru.Cache[uint64, *core.ValidatorSet]

	now func() time.Time
}

// NewChain seeds a Chain with genesis at height 0 and the given static
// validator set.
func NewChain(genesis core.Header, validators []messages.Address, policy core.ProposerPolicy) *Chain {
	snapshots, err := lru.New[uint64, *core.ValidatorSet](256)
	if err != nil {
		panic(err)
	}
	c := &Chain{
		headers:    map[uint64]core.Header{genesis.Height: genesis},
		bodies:     map[uint64]map[messages.Hash]messages.Proposal{},
		validators: validators,
		policy:     policy,
		snapshots:  snapshots,
		now:        time.Now,
	}
	return c
}

// Verify implements core.Backend. The reference chain accepts any
// non-empty payload whose timestamp isn't too far in the future.
func (c *Chain) Verify(proposal messages.Proposal) (time.Duration, error) {
	if len(proposal.Block.Payload) == 0 {
		return 0, core.ErrVerifyInvalidProposal
	}

	ts := time.Unix(0, proposal.Block.Timestamp)
	if skew := ts.Sub(c.now()); skew > maxFutureSkew {
		return skew, core.ErrVerifyFutureBlock
	}
	return 0, nil
}

// HeaderByHeight implements core.Backend.
func (c *Chain) HeaderByHeight(h uint64) (core.Header, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	header, ok := c.headers[h]
	return header, ok
}

// Validators implements core.Backend, building (and caching) the
// snapshot for height.
func (c *Chain) Validators(height uint64) *core.ValidatorSet {
	if vs, ok := c.snapshots.Get(height); ok {
		return vs
	}

	c.mu.Lock()
	addrs := append([]messages.Address(nil), c.validators...)
	c.mu.Unlock()

	vs := core.NewValidatorSet(addrs, c.policy)
	c.snapshots.Add(height, vs)
	return vs
}

// HasProposal implements core.Backend.
func (c *Chain) HasProposal(hash messages.Hash, height uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.bodies[height]
	if !ok {
		return false
	}
	_, ok = bucket[hash]
	return ok
}

// Commit implements core.Backend: records the header and full proposal
// body for HeaderByHeight/HasProposal.
func (c *Chain) Commit(proposal messages.Proposal, seals []messages.CommittedSeal) error {
	if len(seals) == 0 {
		return errors.New("memory: commit requires at least one committed seal")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	height := proposal.Block.Height
	c.headers[height] = core.Header{
		Height:     height,
		Hash:       proposal.Block.Hash,
		ParentHash: proposal.Block.ParentHash,
	}
	bucket, ok := c.bodies[height]
	if !ok {
		bucket = make(map[messages.Hash]messages.Proposal)
		c.bodies[height] = bucket
	}
	bucket[proposal.Block.Hash] = proposal
	return nil
}

// Head returns the highest committed header.
func (c *Chain) Head() core.Header {
	c.mu.Lock()
	defer c.mu.Unlock()

	var head core.Header
	for h, header := range c.headers {
		if h >= head.Height {
			head = header
		}
	}
	return head
}
