package core_test

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/corebft/ibft/backend/memory"
	"github.com/corebft/ibft/core"
	"github.com/corebft/ibft/messages"
)

// testLogger routes core.Logger calls to t.Logf so assertion failures
// carry replica-level context without requiring a real logging library
// in the test binary.
type testLogger struct {
	t      *testing.T
	prefix string
}

func (l testLogger) Info(msg string, args ...interface{})  { l.t.Logf("[%s] INFO %s %v", l.prefix, msg, args) }
func (l testLogger) Debug(msg string, args ...interface{}) { l.t.Logf("[%s] DEBUG %s %v", l.prefix, msg, args) }
func (l testLogger) Error(msg string, args ...interface{}) { l.t.Logf("[%s] ERROR %s %v", l.prefix, msg, args) }

func testAddr(i int) messages.Address {
	var a messages.Address
	a[len(a)-1] = byte(i + 1)
	return a
}

func hashBlock(b messages.Block) messages.Hash {
	buf := append([]byte(nil), b.ParentHash[:]...)
	buf = append(buf, []byte(fmt.Sprintf("%d|%d|", b.Height, b.Timestamp))...)
	buf = append(buf, b.Payload...)
	return messages.Hash(sha256.Sum256(buf))
}

func buildRequest(height uint64, parent messages.Hash, payload string) messages.Request {
	block := messages.Block{
		Height:     height,
		ParentHash: parent,
		Timestamp:  1,
		Payload:    []byte(payload),
	}
	block.Hash = hashBlock(block)
	return messages.NewRequest(messages.Proposal{Block: block})
}

// harness is what newHarness returns: it spins up n replicas over a
// shared backend/memory.Chain and Network, starts them all at height 1,
// and keeps enough handles for tests to drive requests and observe
// commits.
type harness struct {
	addrs    []messages.Address
	chain    *memory.Chain
	replicas []*core.Core
	valSet   *core.ValidatorSet
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func newHarness(t *testing.T, n int, cfg core.Config) *harness {
	addrs := make([]messages.Address, n)
	for i := range addrs {
		addrs[i] = testAddr(i)
	}

	chain := memory.NewChain(core.Header{}, addrs, cfg.ProposerPolicy)
	network := memory.NewNetwork()

	h := &harness{
		addrs:    addrs,
		chain:    chain,
		valSet:   core.NewValidatorSet(addrs, cfg.ProposerPolicy),
		replicas: make([]*core.Core, n),
	}

	for i, a := range addrs {
		c := core.New(a, cfg, testLogger{t: t, prefix: a.String()}, chain, network.Transport(a))
		network.Register(a, c)
		h.replicas[i] = c
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	for _, c := range h.replicas {
		h.wg.Add(1)
		go func(c *core.Core) {
			defer h.wg.Done()
			_ = c.Run(ctx, 1, messages.Hash{})
		}(c)
	}

	return h
}

func (h *harness) stop() {
	h.cancel()
	h.wg.Wait()
}

func (h *harness) broadcastRequest(req messages.Request) {
	for _, c := range h.replicas {
		c.OnRequest(req)
	}
}

func TestHappyPathCommitsBlock(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := core.DefaultConfig()
	cfg.F = 1
	cfg.BaseRoundTimeout = 500 * time.Millisecond

	h := newHarness(t, 4, cfg)
	defer h.stop()

	req := buildRequest(1, messages.Hash{}, "block-1")
	h.broadcastRequest(req)

	require.Eventually(t, func() bool {
		head := h.chain.Head()
		return head.Height == 1 && head.Hash == req.Proposal.Block.Hash
	}, 3*time.Second, 10*time.Millisecond, "expected height 1 to commit")
}

// TestRoundChangeAdvancesPastSilentProposer verifies liveness: if the
// elected proposer for round 0 never sees a request (simulating it being
// offline), the round timer fires, ROUND-CHANGE quorum is reached, and
// the next round's proposer commits the block instead.
func TestRoundChangeAdvancesPastSilentProposer(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := core.DefaultConfig()
	cfg.F = 1
	cfg.BaseRoundTimeout = 300 * time.Millisecond

	h := newHarness(t, 4, cfg)
	defer h.stop()

	proposer := h.valSet.CalcProposer(messages.Hash{}, 1, 0)

	req := buildRequest(1, messages.Hash{}, "block-1")

	// Every replica except the silent proposer stages the request, so
	// whichever validator is eventually elected can propose it.
	for i, c := range h.replicas {
		if h.addrs[i] == proposer {
			continue
		}
		c.OnRequest(req)
	}

	require.Eventually(t, func() bool {
		head := h.chain.Head()
		return head.Height == 1
	}, 5*time.Second, 10*time.Millisecond, "expected round change to recover liveness")
}
