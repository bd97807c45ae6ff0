// Package ports defines the boundary between the DHT node protocols and
// the network substrate they run on, separating node logic from the
// concrete adapter it depends on.
package ports

import "github.com/mod/dhtsim/pkg/core"

// Node is anything the fabric can hand back from a lookup: just enough
// identity to route through. Chord and Pastry nodes both satisfy it.
type Node interface {
	ID() core.ID
}

// Fabric is the network substrate every protocol node is constructed
// with: a single seam a node calls through to reach any peer, standing
// in for a synchronous RPC.
type Fabric interface {
	// AddNode registers a node at a fresh switch. Returns
	// ErrDuplicateNodeID if id is already registered.
	AddNode(id core.ID, n Node) error

	// RemoveNode drops a node's membership and switch assignment,
	// modeling either a graceful departure or a silent failure.
	RemoveNode(id core.ID) bool

	// IsAlive is a membership test.
	IsAlive(id core.ID) bool

	// GetNode resolves an id to the live node it is registered for.
	// The bool is false if id is not currently a member.
	GetNode(id core.ID) (Node, bool)

	// Proximity returns a coarse synthetic latency between two
	// registered nodes, or -1 if either is unregistered.
	Proximity(a, b core.ID) int

	// Hop runs an expanding-ring BFS from origin's switch and returns
	// the first other live peer discovered within maxDepth layers, or
	// false if none was found.
	Hop(origin core.ID, maxDepth int) (core.ID, bool)
}
