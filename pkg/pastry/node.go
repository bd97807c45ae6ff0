// Package pastry implements the Pastry node protocol: routing table,
// leaf set and neighborhood set construction, prefix-based routing,
// repair of stale entries on failure, node join via expanding-ring
// multicast, and node arrival propagation.
//
// Shaped the same way as pkg/chord: a struct owning its identity and
// local state, reaching peers only through ports.Fabric.
package pastry

import (
	"sort"
	"sync"

	"github.com/mod/dhtsim/pkg/core"
	"github.com/mod/dhtsim/pkg/ports"
)

// noEntry marks an empty routing-table slot. The ring sizes this
// simulator uses (16^L for L up to a handful of digits) never come
// close to the top of a uint64, so the all-ones value is a safe
// sentinel distinct from any real id.
const noEntry core.ID = ^core.ID(0)

// Node is a Pastry DHT participant. Pastry stores nothing beyond
// membership: there is no key/value store here, only routing state.
type Node struct {
	mu sync.Mutex

	id       core.ID
	digits   int // L: hex-digit length of the identifier space
	base     int // B: routing-table base exponent (2^B columns per row)
	ringSize core.ID
	cols     int // 2^B
	leafHalf int // leaf-set entries kept per side
	neighMax int // 2^(B+1)

	fabric ports.Fabric

	routingTable [][]core.ID // digits x cols
	smaller      []core.ID   // numerically smaller leaves, closest first
	larger       []core.ID   // numerically larger leaves, closest first
	neighborhood []core.ID
}

// NewNode constructs an inert Pastry node for id with an L-digit hex
// identifier space and base exponent B. The node must be registered
// with the fabric (fabric.AddNode) before Join is called. Routing
// digits are hex digits (0-15), which match the 2^B columns of a row
// only when B = 4; with a smaller B a digit above 2^B-1 indexes past
// the end of its row.
func NewNode(id core.ID, digits, base int, fabric ports.Fabric) *Node {
	n := &Node{
		id:       id,
		digits:   digits,
		base:     base,
		ringSize: core.HexRingSize(digits),
		cols:     1 << uint(base),
		fabric:   fabric,
	}
	n.leafHalf = n.cols / 2
	n.neighMax = 1 << uint(base+1)

	n.routingTable = make([][]core.ID, digits)
	for l := range n.routingTable {
		n.routingTable[l] = make([]core.ID, n.cols)
		for d := range n.routingTable[l] {
			n.routingTable[l][d] = noEntry
		}
	}
	n.plantSelf()
	return n
}

// ID implements ports.Node.
func (n *Node) ID() core.ID { return n.id }

func (n *Node) peer(id core.ID) *Node {
	p, ok := n.fabric.GetNode(id)
	if !ok {
		return nil
	}
	pn, ok := p.(*Node)
	if !ok {
		return nil
	}
	return pn
}

// plantSelf re-asserts the invariant that routingTable[l][digit(self,l)]
// always equals self.
func (n *Node) plantSelf() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for l := 0; l < n.digits; l++ {
		d := core.HexDigit(n.id, l, n.digits)
		n.routingTable[l][d] = n.id
	}
}

// RoutingEntry returns the entry at [l][d] and whether it is populated.
func (n *Node) RoutingEntry(l, d int) (core.ID, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if l < 0 || l >= n.digits || d < 0 || d >= n.cols {
		return 0, false
	}
	v := n.routingTable[l][d]
	return v, v != noEntry
}

func (n *Node) rowCopy(l int) []core.ID {
	n.mu.Lock()
	defer n.mu.Unlock()
	if l < 0 || l >= n.digits {
		return nil
	}
	return append([]core.ID(nil), n.routingTable[l]...)
}

func (n *Node) setRow(l int, entries []core.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if l < 0 || l >= n.digits || len(entries) != n.cols {
		return
	}
	copy(n.routingTable[l], entries)
}

func (n *Node) fillSlotIfEmpty(l int, id core.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if l < 0 || l >= n.digits {
		return
	}
	d := core.HexDigit(id, l, n.digits)
	if n.routingTable[l][d] == noEntry {
		n.routingTable[l][d] = id
	}
}

// LeafSet returns the current smaller and larger leaf lists (closest
// first), for tests asserting the leaf-set symmetry invariant.
func (n *Node) LeafSet() (smaller, larger []core.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]core.ID(nil), n.smaller...), append([]core.ID(nil), n.larger...)
}

// NeighborhoodSet returns the current neighborhood set.
func (n *Node) NeighborhoodSet() []core.ID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]core.ID(nil), n.neighborhood...)
}

func (n *Node) leafIDsIncludingSelf() []core.ID {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]core.ID, 0, len(n.smaller)+len(n.larger)+1)
	out = append(out, n.smaller...)
	out = append(out, n.larger...)
	out = append(out, n.id)
	return out
}

func (n *Node) neighborhoodIDsIncludingSelf() []core.ID {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]core.ID, 0, len(n.neighborhood)+1)
	out = append(out, n.neighborhood...)
	out = append(out, n.id)
	return out
}

func containsID(list []core.ID, id core.ID) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func filterOutID(list []core.ID, id core.ID) []core.ID {
	out := make([]core.ID, 0, len(list))
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// sortByDistanceThenID orders ids by circular distance to ref ascending,
// breaking ties by numeric id order.
func sortByDistanceThenID(ids []core.ID, ref, ringSize core.ID) {
	sort.Slice(ids, func(i, j int) bool {
		di := core.CircularDistance(ids[i], ref, ringSize)
		dj := core.CircularDistance(ids[j], ref, ringSize)
		if di != dj {
			return di < dj
		}
		return ids[i] < ids[j]
	})
}
