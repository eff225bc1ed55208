// Package messages defines the gossip envelope and domain payload types
// carried between replicas, and the store that accumulates distinct-sender
// votes per view.
package messages

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Address identifies a validator by the digest of its public key.
type Address [20]byte

func (a Address) String() string {
	return fmt.Sprintf("%x", a[:4])
}

// Hash identifies a block by content digest.
type Hash [32]byte

func (h Hash) String() string {
	return fmt.Sprintf("%x", h[:4])
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Kind enumerates the gossip message types the core dispatches on.
type Kind uint8

const (
	KindPrePrepare Kind = iota + 1
	KindPrepare
	KindCommit
	KindRoundChange
)

func (k Kind) String() string {
	switch k {
	case KindPrePrepare:
		return "PRE-PREPARE"
	case KindPrepare:
		return "PREPARE"
	case KindCommit:
		return "COMMIT"
	case KindRoundChange:
		return "ROUND-CHANGE"
	default:
		return "UNKNOWN"
	}
}

// View identifies a specific proposal attempt: a block height paired with
// a round counter. Views are totally ordered lexicographically on
// (Sequence, Round).
type View struct {
	Sequence uint64
	Round    uint64
}

// Compare returns -1, 0 or 1 as v is less than, equal to, or greater than o.
func (v View) Compare(o View) int {
	if v.Sequence != o.Sequence {
		if v.Sequence < o.Sequence {
			return -1
		}
		return 1
	}
	if v.Round != o.Round {
		if v.Round < o.Round {
			return -1
		}
		return 1
	}
	return 0
}

func (v View) String() string {
	return fmt.Sprintf("{h=%d r=%d}", v.Sequence, v.Round)
}

// Block is the candidate unit of consensus. Payload is treated as an
// opaque byte string; wire representation is out of scope.
type Block struct {
	Height    uint64
	Hash      Hash
	ParentHash Hash
	Timestamp int64 // unix nanoseconds
	Payload   []byte
}

// Proposal wraps a Block offered for consensus at a given request.
type Proposal struct {
	Block Block
}

// Request wraps a candidate proposal staged for the current height. ID is
// assigned by the upper layer that originates the request and is carried
// through logs and metrics for correlation; it plays no role in consensus
// safety.
type Request struct {
	ID       uuid.UUID
	Proposal Proposal
}

// NewRequest tags a proposal with a fresh correlation ID.
func NewRequest(p Proposal) Request {
	return Request{ID: uuid.New(), Proposal: p}
}

// PrePrepare is the proposer's opening message for a view.
type PrePrepare struct {
	View     View
	Proposal Proposal
}

// Subject names the object being voted on by PREPARE/COMMIT.
type Subject struct {
	View   View
	Digest Hash
}

// CommittedSeal is an opaque per-validator signature over a commit Subject.
type CommittedSeal struct {
	Signer    Address
	Signature []byte
}

// Envelope is the signed, typed gossip unit exchanged between replicas.
// Payload carries the Kind-specific encoded body (PrePrepare, Subject, or
// View for RoundChange); Signature is opaque. The core does not check it;
// it only copies COMMIT signatures into the committed seals.
type Envelope struct {
	Kind      Kind
	From      Address
	Payload   []byte
	Signature []byte
}

// Errors returned by the codec below; decode failures are always
// non-fatal and never panic.
var (
	errShortBuffer = errors.New("messages: buffer too short")
	errBadKind     = errors.New("messages: unknown message kind")
)

// EncodeView serializes a View as two unsigned varints.
func EncodeView(v View) []byte {
	buf := make([]byte, 0, 20)
	buf = appendUvarint(buf, v.Sequence)
	buf = appendUvarint(buf, v.Round)
	return buf
}

// DecodeView parses a View previously produced by EncodeView.
func DecodeView(b []byte) (View, error) {
	seq, n := binary.Uvarint(b)
	if n <= 0 {
		return View{}, errShortBuffer
	}
	b = b[n:]
	round, n := binary.Uvarint(b)
	if n <= 0 {
		return View{}, errShortBuffer
	}
	return View{Sequence: seq, Round: round}, nil
}

// EncodeSubject serializes a Subject as an encoded View followed by the
// 32-byte digest.
func EncodeSubject(s Subject) []byte {
	buf := EncodeView(s.View)
	buf = append(buf, s.Digest[:]...)
	return buf
}

// DecodeSubject parses a Subject previously produced by EncodeSubject.
func DecodeSubject(b []byte) (Subject, error) {
	view, err := DecodeView(b)
	if err != nil {
		return Subject{}, err
	}
	rest := b[viewLen(view):]
	if len(rest) < 32 {
		return Subject{}, errShortBuffer
	}
	var digest Hash
	copy(digest[:], rest[:32])
	return Subject{View: view, Digest: digest}, nil
}

// EncodePrePrepare serializes a PrePrepare as the encoded View followed by
// the block fields: height (varint), hash and parent hash (32 bytes
// each), timestamp (varint), and the payload with a varint length prefix.
func EncodePrePrepare(pp PrePrepare) []byte {
	buf := EncodeView(pp.View)
	buf = appendUvarint(buf, pp.Proposal.Block.Height)
	buf = append(buf, pp.Proposal.Block.Hash[:]...)
	buf = append(buf, pp.Proposal.Block.ParentHash[:]...)
	buf = appendUvarint(buf, uint64(pp.Proposal.Block.Timestamp))
	buf = appendUvarint(buf, uint64(len(pp.Proposal.Block.Payload)))
	buf = append(buf, pp.Proposal.Block.Payload...)
	return buf
}

// DecodePrePrepare parses a PrePrepare previously produced by EncodePrePrepare.
func DecodePrePrepare(b []byte) (PrePrepare, error) {
	view, err := DecodeView(b)
	if err != nil {
		return PrePrepare{}, err
	}
	b = b[viewLen(view):]

	height, n := binary.Uvarint(b)
	if n <= 0 {
		return PrePrepare{}, errShortBuffer
	}
	b = b[n:]

	if len(b) < 64 {
		return PrePrepare{}, errShortBuffer
	}
	var hash, parent Hash
	copy(hash[:], b[:32])
	copy(parent[:], b[32:64])
	b = b[64:]

	ts, n := binary.Uvarint(b)
	if n <= 0 {
		return PrePrepare{}, errShortBuffer
	}
	b = b[n:]

	plen, n := binary.Uvarint(b)
	if n <= 0 {
		return PrePrepare{}, errShortBuffer
	}
	b = b[n:]
	if uint64(len(b)) < plen {
		return PrePrepare{}, errShortBuffer
	}
	payload := append([]byte(nil), b[:plen]...)

	return PrePrepare{
		View: view,
		Proposal: Proposal{
			Block: Block{
				Height:     height,
				Hash:       hash,
				ParentHash: parent,
				Timestamp:  int64(ts),
				Payload:    payload,
			},
		},
	}, nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func viewLen(v View) int {
	return len(EncodeView(v))
}

// DecodeKind validates a raw Kind byte.
func DecodeKind(b byte) (Kind, error) {
	k := Kind(b)
	switch k {
	case KindPrePrepare, KindPrepare, KindCommit, KindRoundChange:
		return k, nil
	default:
		return 0, errBadKind
	}
}
