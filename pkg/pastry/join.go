package pastry

import (
	"github.com/mod/dhtsim/pkg/core"
	"github.com/mod/dhtsim/pkg/ports"
)

// arrivalHopBudget bounds node_arrival's routing walk.
const arrivalHopBudget = 32

// row is one captured routing-table row along a node_arrival path.
type row struct {
	level   int
	entries []core.ID
}

// arrivalResult is the single result shape of node_arrival, in place of
// a mixed tuple return; it carries no tag distinguishing an exact match
// from an exhausted hop budget.
type arrivalResult struct {
	z                  core.ID
	routingRows        []row
	leafCandidates     []core.ID
	neighborCandidates []core.ID
}

// Join runs the join sequence: expanding-ring bootstrap, node_arrival,
// node_init, then broadcasting node_update to the recipient set
// node_init returns. The node must already be registered with the
// fabric.
func (n *Node) Join() error {
	bootstrapID, found := ports.ExpandingRingBootstrap(n.fabric, n.id, 500)
	if !found {
		// ErrBootstrapUnreachable: first node. Leaf/neighborhood sets
		// stay empty; the routing table already holds only self
		// entries from NewNode's plantSelf.
		return nil
	}

	boot := n.peer(bootstrapID)
	if boot == nil {
		return nil
	}

	res := boot.nodeArrival(n.id)
	recipients := n.nodeInit(res)

	for _, id := range recipients {
		if id == n.id {
			continue
		}
		if p := n.peer(id); p != nil {
			p.nodeUpdate(n.id)
		}
	}
	return nil
}

// nodeArrival runs on an existing node that a joining node contacted,
// routing toward the new id and collecting routing rows along the way.
func (n *Node) nodeArrival(newID core.ID) arrivalResult {
	current := n
	seenLevels := map[int]bool{}
	var rows []row

	for hops := 0; hops < arrivalHopBudget; hops++ {
		l := core.CommonPrefix(newID, current.id, current.digits)
		if !seenLevels[l] {
			rows = append(rows, row{level: l, entries: current.rowCopy(l)})
			seenLevels[l] = true
		}

		next, outcome := current.Route(newID)
		if outcome == routeFound {
			break
		}
		if outcome == routeNotFound {
			break
		}
		nextPeer := current.peer(next)
		if nextPeer == nil {
			break
		}
		current = nextPeer
	}

	z := current
	return arrivalResult{
		z:                  z.id,
		routingRows:        rows,
		leafCandidates:     z.leafIDsIncludingSelf(),
		neighborCandidates: n.neighborhoodIDsIncludingSelf(),
	}
}

// nodeInit runs on the joining node once nodeArrival returns. It
// returns the union of newly-learned routing-table nodes, leaf set, and
// neighborhood set: the recipient set for the node_update broadcast.
func (n *Node) nodeInit(res arrivalResult) []core.ID {
	n.mergeLeafSet(res.leafCandidates, nil)

	var broaden []core.ID
	if smallExtreme := n.extremeLeafSet(true, nil); smallExtreme != n.id {
		if p := n.peer(smallExtreme); p != nil {
			broaden = append(broaden, p.leafIDsIncludingSelf()...)
		}
	}
	if largeExtreme := n.extremeLeafSet(false, nil); largeExtreme != n.id {
		if p := n.peer(largeExtreme); p != nil {
			broaden = append(broaden, p.leafIDsIncludingSelf()...)
		}
	}
	if len(broaden) > 0 {
		n.mergeLeafSet(broaden, nil)
	}

	n.adoptNeighborhood(res.neighborCandidates)

	for _, r := range res.routingRows {
		n.setRow(r.level, r.entries)
	}

	for _, id := range res.leafCandidates {
		n.fillFromPeerSet(id)
	}
	for _, id := range res.neighborCandidates {
		n.fillFromPeerSet(id)
	}

	n.plantSelf()

	recipients := make(map[core.ID]bool)
	for _, r := range res.routingRows {
		for _, id := range r.entries {
			if id != noEntry && id != n.id {
				recipients[id] = true
			}
		}
	}
	for _, id := range n.leafIDsIncludingSelf() {
		if id != n.id {
			recipients[id] = true
		}
	}
	for _, id := range n.neighborhoodIDsIncludingSelf() {
		if id != n.id {
			recipients[id] = true
		}
	}

	out := make([]core.ID, 0, len(recipients))
	for id := range recipients {
		out = append(out, id)
	}
	return out
}

func (n *Node) fillFromPeerSet(id core.ID) {
	if id == n.id {
		return
	}
	l := core.CommonPrefix(id, n.id, n.digits)
	if l >= 1 && l < n.digits {
		n.fillSlotIfEmpty(l, id)
	}
}

// nodeUpdate runs on an existing node being told about a newly joined
// node s. It is idempotent: a second call with the same s leaves state
// unchanged, since every step is either a no-op guard (empty slot
// check, present-in-set check) or an assignment that restates the same
// value.
func (n *Node) nodeUpdate(s core.ID) {
	if s == n.id {
		return
	}
	maxL := core.CommonPrefix(s, n.id, n.digits)

	for l := 0; l <= maxL && l < n.digits; l++ {
		n.fillSlotIfEmpty(l, s)
	}
	if maxL < n.digits {
		d := core.HexDigit(s, maxL, n.digits)
		n.mu.Lock()
		n.routingTable[maxL][d] = s
		n.mu.Unlock()
	}

	n.mergeLeafSet([]core.ID{s}, nil)
	n.considerNeighbor(s)
}

// SearchID routes directly to a target ring position without hashing —
// used both internally and by tests probing liveness of a specific node
// id.
func (n *Node) SearchID(target core.ID) (hops int, foundID core.ID, found bool) {
	current := n
	for hops = 0; hops < arrivalHopBudget; {
		next, outcome := current.Route(target)
		hops++
		switch outcome {
		case routeFound:
			return hops, current.id, true
		case routeNotFound:
			return hops, 0, false
		default:
			nextPeer := current.peer(next)
			if nextPeer == nil {
				return hops, 0, false
			}
			current = nextPeer
		}
	}
	return hops, 0, false
}

// Search hashes key to the ring and routes to it, reusing the same
// routing walk node_arrival uses.
func (n *Node) Search(key string) (hops int, foundID core.ID, found bool) {
	target := core.HashToRing(key, n.ringSize)
	return n.SearchID(target)
}
