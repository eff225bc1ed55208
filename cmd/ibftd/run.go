package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/corebft/ibft/backend/memory"
	"github.com/corebft/ibft/core"
	"github.com/corebft/ibft/messages"
	"github.com/corebft/ibft/metrics"
	"github.com/corebft/ibft/obslog"
)

func runNetwork(ctx context.Context, flags *runFlags) error {
	minValidators := int(3*flags.f + 1)
	if flags.validators < minValidators {
		return fmt.Errorf("need at least %d validators to tolerate f=%d faults, got %d", minValidators, flags.f, flags.validators)
	}

	base, err := obslog.NewDevelopment()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer base.Sync()

	addrs := make([]messages.Address, flags.validators)
	for i := range addrs {
		addrs[i] = demoAddress(i)
	}

	chain := memory.NewChain(core.Header{}, addrs, core.RoundRobin)
	network := memory.NewNetwork()

	cfg := core.DefaultConfig()
	cfg.F = flags.f
	cfg.BaseRoundTimeout = 2 * time.Second

	replicas := make([]*core.Core, len(addrs))
	for i, addr := range addrs {
		log := base.With("validator", addr.String())

		sink, err := metrics.New(prometheus.NewRegistry())
		if err != nil {
			return fmt.Errorf("build metrics for %s: %w", addr, err)
		}

		c := core.New(addr, cfg, log, chain, network.Transport(addr), core.WithMetrics(sink))
		network.Register(addr, c)
		replicas[i] = c
	}

	runCtx, cancel := context.WithTimeout(ctx, flags.duration)
	defer cancel()

	for _, c := range replicas {
		go func(c *core.Core) {
			head := chain.Head()
			if err := c.Run(runCtx, head.Height+1, head.Hash); err != nil && runCtx.Err() == nil {
				base.Error("replica stopped unexpectedly", "err", err)
			}
		}(c)
	}

	ticker := time.NewTicker(flags.requestEvery)
	defer ticker.Stop()

	var n uint64
	for {
		select {
		case <-runCtx.Done():
			head := chain.Head()
			base.Info("demo network stopped", "committed_height", head.Height)
			return nil
		case <-ticker.C:
			head := chain.Head()
			req := buildRequest(head, n)
			n++
			for _, c := range replicas {
				c.OnRequest(req)
			}
		}
	}
}

func buildRequest(head core.Header, n uint64) messages.Request {
	height := head.Height + 1
	payload := []byte(fmt.Sprintf("request-%d", n))

	block := messages.Block{
		Height:     height,
		ParentHash: head.Hash,
		Timestamp:  time.Now().UnixNano(),
		Payload:    payload,
	}
	block.Hash = hashBlock(block)

	return messages.NewRequest(messages.Proposal{Block: block})
}

// hashBlock computes a content digest over the block's consensus-visible
// fields. This is demo glue for cmd/ibftd, not a core consensus
// component — real deployments hash whatever block encoding their chain
// backend defines.
func hashBlock(b messages.Block) messages.Hash {
	var buf []byte
	buf = append(buf, b.ParentHash[:]...)
	buf = fmt.Appendf(buf, "|%d|%d|", b.Height, b.Timestamp)
	buf = append(buf, b.Payload...)
	return messages.Hash(sha256.Sum256(buf))
}

func demoAddress(i int) messages.Address {
	var a messages.Address
	a[len(a)-1] = byte(i)
	return a
}
