package messages

import "sync"

// voteKey names a (view, kind, digest) bucket of distinct-sender votes.
// Keying on digest, not just view, keeps votes for conflicting proposals
// (a Byzantine proposer's equivocation, or a stale PREPARE that predates
// the accepted PRE-PREPARE) from being counted toward the same quorum.
type voteKey struct {
	view   View
	kind   Kind
	digest Hash
}

// Store accumulates distinct-sender votes for the in-progress height. It
// is the sole owner of the PREPARE/COMMIT sender sets and the
// ROUND-CHANGE per-target-round sender sets: sets grow monotonically
// within a (height, round) and are reset wholesale on height advance.
//
// Store is safe for concurrent use; the core accesses it from its single
// event loop but tests exercise it directly.
type Store struct {
	mu sync.Mutex

	height uint64
	votes  map[voteKey]map[Address]*Envelope

	// roundChange tracks, for the current height, distinct ROUND-CHANGE
	// senders observed per target round.
	roundChange map[uint64]map[Address]View
}

// NewStore creates an empty Store scoped to height 0. Call PruneHeight to
// rescope it as the replica advances.
func NewStore() *Store {
	return &Store{
		votes:       make(map[voteKey]map[Address]*Envelope),
		roundChange: make(map[uint64]map[Address]View),
	}
}

// AddVote records sender's vote for (view, kind, digest), returning true
// if this is the first vote from that sender for that bucket (duplicates
// from the same sender are idempotent).
func (s *Store) AddVote(view View, kind Kind, digest Hash, sender Address, env *Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := voteKey{view, kind, digest}
	bucket, ok := s.votes[key]
	if !ok {
		bucket = make(map[Address]*Envelope)
		s.votes[key] = bucket
	}
	if _, exists := bucket[sender]; exists {
		return false
	}
	bucket[sender] = env
	return true
}

// CountVotes returns the number of distinct senders recorded for (view, kind, digest).
func (s *Store) CountVotes(view View, kind Kind, digest Hash) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.votes[voteKey{view, kind, digest}])
}

// AddRoundChange records a ROUND-CHANGE vote from sender targeting round,
// returning the updated distinct-sender count for that round.
func (s *Store) AddRoundChange(round uint64, sender Address, v View) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.roundChange[round]
	if !ok {
		bucket = make(map[Address]View)
		s.roundChange[round] = bucket
	}
	bucket[sender] = v

	return len(bucket)
}

// RoundChangeCount returns the distinct ROUND-CHANGE sender count for round.
func (s *Store) RoundChangeCount(round uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.roundChange[round])
}

// EarliestRoundAbove scans rounds strictly greater than above and returns
// the smallest one with at least min distinct ROUND-CHANGE senders. This
// implements the f+1 "jump" rule: a correct replica moves to the first
// round for which it has evidence at least one correct validator has
// already moved on.
func (s *Store) EarliestRoundAbove(above uint64, min int) (round uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	var best uint64
	for r, senders := range s.roundChange {
		if r <= above || len(senders) < min {
			continue
		}
		if !found || r < best {
			best = r
			found = true
		}
	}
	return best, found
}

// Envelopes returns the recorded envelopes for (view, kind, digest), one
// per distinct sender, in unspecified order. Used to build the aggregated
// COMMIT certificate handed to the backend on finalization.
func (s *Store) Envelopes(view View, kind Kind, digest Hash) []*Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.votes[voteKey{view, kind, digest}]
	out := make([]*Envelope, 0, len(bucket))
	for _, env := range bucket {
		out = append(out, env)
	}
	return out
}

// PruneHeight discards all votes and resets the store for a new height.
func (s *Store) PruneHeight(height uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.height = height
	s.votes = make(map[voteKey]map[Address]*Envelope)
	s.roundChange = make(map[uint64]map[Address]View)
}

// Height returns the height the store is currently scoped to.
func (s *Store) Height() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.height
}
