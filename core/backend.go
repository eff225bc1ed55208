package core

import (
	"errors"
	"time"

	"github.com/corebft/ibft/messages"
)

// Sentinel errors a Backend.Verify implementation returns to classify its
// verdict; the core maps them onto ErrorKind via classifyVerifyErr.
var (
	ErrVerifyFutureBlock        = errors.New("core: proposal timestamp too far ahead")
	ErrVerifyInvalidProposal    = errors.New("core: proposal failed verification")
	ErrVerifyInvalidSignature   = errors.New("core: proposal signature invalid")
	ErrVerifyInconsistentSubject = errors.New("core: proposal subject inconsistent")
)

// classifyVerifyErr maps a Backend.Verify error onto the ErrorKind
// taxonomy. Any error the backend returns that is not one of the known
// sentinels is treated as ErrUnknown.
func classifyVerifyErr(err error) ErrorKind {
	switch {
	case err == nil:
		return -1
	case errors.Is(err, ErrVerifyFutureBlock):
		return ErrFutureBlockMessage
	case errors.Is(err, ErrVerifyInvalidProposal):
		return ErrInvalidProposal
	case errors.Is(err, ErrVerifyInvalidSignature):
		return ErrInvalidSignature
	case errors.Is(err, ErrVerifyInconsistentSubject):
		return ErrInconsistentSubject
	default:
		return ErrUnknown
	}
}

// Header is the minimal committed-block view the core needs from the
// backend's chain to run the old-message fast path.
type Header struct {
	Height     uint64
	Hash       messages.Hash
	ParentHash messages.Hash
}

// Backend is the external contract the core calls to verify proposals,
// fetch committed headers and proposal bodies, look up validator sets,
// and persist finalized blocks. It never mutates core state directly;
// all effects flow back through the core's public operations.
type Backend interface {
	// Verify checks proposal for acceptability. A FutureBlock-classified
	// error carries a retry delay that the caller should wait out before
	// re-submitting the same proposal.
	Verify(proposal messages.Proposal) (delay time.Duration, err error)

	// HeaderByHeight returns the committed header at h, or ok=false if
	// no block has been committed there yet.
	HeaderByHeight(h uint64) (header Header, ok bool)

	// Validators returns the immutable validator-set snapshot for height.
	Validators(height uint64) *ValidatorSet

	// HasProposal reports whether the backend holds the full proposal
	// body for (hash, height), not just its header.
	HasProposal(hash messages.Hash, height uint64) bool

	// Commit finalizes proposal using the aggregated COMMIT certificate.
	Commit(proposal messages.Proposal, seals []messages.CommittedSeal) error
}

// Transport is the best-effort gossip broadcast primitive the core emits
// through; no delivery or ordering guarantees.
type Transport interface {
	Broadcast(env *messages.Envelope)
}

// Logger is the narrow logging surface the core depends on, keeping
// core import-clean of any concrete logging library.
type Logger interface {
	Info(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// MetricsSink receives optional observability callbacks. When none is
// configured through WithMetrics, the core uses a no-op sink.
type MetricsSink interface {
	SetRound(round uint64)
	SetState(state ReplicaState)
	IncError(kind ErrorKind)
}

// noopMetrics is the zero-cost default sink.
type noopMetrics struct{}

func (noopMetrics) SetRound(uint64)      {}
func (noopMetrics) SetState(ReplicaState) {}
func (noopMetrics) IncError(ErrorKind)    {}
