package memory

import (
	"sync"

	"github.com/corebft/ibft/messages"
)

// Sink receives a gossiped envelope. *core.Core satisfies this through
// its OnGossip method.
type Sink interface {
	OnGossip(env *messages.Envelope, src messages.Address)
}

// Network is an in-process gossip fabric: Broadcast from one peer's
// Transport fans the envelope out to every other registered peer,
// synchronously and in no particular peer order. There is no message loss or
// reordering here by design — the core's own handling of Old/Future
// views and duplicate votes is what's under test, not the network.
type Network struct {
	mu    sync.Mutex
	peers map[messages.Address]Sink
}

// NewNetwork returns an empty Network.
func NewNetwork() *Network {
	return &Network{peers: make(map[messages.Address]Sink)}
}

// Register attaches peer under addr; it starts receiving broadcasts
// issued by any Transport obtained from this Network.
func (n *Network) Register(addr messages.Address, peer Sink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.peers[addr] = peer
}

// Transport returns a core.Transport broadcasting as addr across n.
func (n *Network) Transport(addr messages.Address) *Transport {
	return &Transport{net: n, from: addr}
}

// Transport is a per-replica handle onto a shared Network.
type Transport struct {
	net  *Network
	from messages.Address
}

// Broadcast implements core.Transport: it delivers env to
// every registered peer other than the sender. The sender observes its
// own broadcasts by processing them directly, not by receiving them
// back over the network.
func (t *Transport) Broadcast(env *messages.Envelope) {
	t.net.mu.Lock()
	peers := make([]Sink, 0, len(t.net.peers))
	for addr, p := range t.net.peers {
		if addr == t.from {
			continue
		}
		peers = append(peers, p)
	}
	t.net.mu.Unlock()

	for _, p := range peers {
		p.OnGossip(env, t.from)
	}
}
