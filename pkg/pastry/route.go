package pastry

import "github.com/mod/dhtsim/pkg/core"

// routeOutcome tags the three-way result of a single Pastry route step,
// in place of a mixed sentinel return (-1 / 16^L / a node id).
type routeOutcome int

const (
	routeNext routeOutcome = iota
	routeFound
	routeNotFound
)

// routeStep computes a single, unrepaired hop decision.
func (n *Node) routeStep(k core.ID) (core.ID, routeOutcome) {
	n.mu.Lock()
	self := n.id
	digits := n.digits
	n.mu.Unlock()

	l := core.CommonPrefix(k, self, digits)
	if l == digits {
		return self, routeFound
	}

	if minID, maxID, ok := n.leafSpan(); ok && withinSpan(minID, maxID, k) {
		best := n.closestLeaf(k)
		if best != self {
			return best, routeNext
		}
		return 0, routeNotFound
	}

	d := core.HexDigit(k, l, digits)
	if entry, ok := n.RoutingEntry(l, d); ok {
		return entry, routeNext
	}

	if candidate, ok := n.scanForBetter(k, l); ok {
		return candidate, routeNext
	}
	return 0, routeNotFound
}

// leafSpan reports the numeric range [min, max] spanned by the current
// leaf set (smaller-extreme to larger-extreme), treated as a simple
// linear range rather than wrapping the ring: the leaf set itself is
// partitioned by plain numeric comparison (isSmaller), so a wraparound
// span would be inconsistent with how members were assigned to each
// side. This is an explicit simplification of the leaf set's circular
// geometry, recorded in DESIGN.md.
func (n *Node) leafSpan() (minID, maxID core.ID, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.smaller) == 0 && len(n.larger) == 0 {
		return 0, 0, false
	}
	minID, maxID = n.id, n.id
	if len(n.smaller) > 0 {
		minID = n.smaller[len(n.smaller)-1]
	}
	if len(n.larger) > 0 {
		maxID = n.larger[len(n.larger)-1]
	}
	return minID, maxID, true
}

func withinSpan(minID, maxID, k core.ID) bool {
	return minID <= k && k <= maxID
}

// closestLeaf returns whichever of self, the smaller leaves, or the
// larger leaves minimizes circular distance to k, tie-breaking on id.
func (n *Node) closestLeaf(k core.ID) core.ID {
	n.mu.Lock()
	self := n.id
	ringSize := n.ringSize
	candidates := make([]core.ID, 0, len(n.smaller)+len(n.larger)+1)
	candidates = append(candidates, n.smaller...)
	candidates = append(candidates, n.larger...)
	candidates = append(candidates, self)
	n.mu.Unlock()

	best := self
	bestDist := core.CircularDistance(self, k, ringSize)
	for _, c := range candidates {
		d := core.CircularDistance(c, k, ringSize)
		if d < bestDist || (d == bestDist && c < best) {
			best, bestDist = c, d
		}
	}
	return best
}

// scanForBetter is the fallback step of routing: scan the leaf set,
// neighborhood set, then the whole routing table, in that order, for
// any node whose prefix match with k is at least l and whose distance
// to k improves on self's, returning the first such node rather than
// the globally closest one.
func (n *Node) scanForBetter(k core.ID, l int) (core.ID, bool) {
	n.mu.Lock()
	self := n.id
	digits := n.digits
	ringSize := n.ringSize
	candidates := make([]core.ID, 0, len(n.smaller)+len(n.larger)+len(n.neighborhood)+digits*n.cols)
	candidates = append(candidates, n.smaller...)
	candidates = append(candidates, n.larger...)
	candidates = append(candidates, n.neighborhood...)
	for _, row := range n.routingTable {
		for _, id := range row {
			if id != noEntry {
				candidates = append(candidates, id)
			}
		}
	}
	n.mu.Unlock()

	selfDist := core.CircularDistance(self, k, ringSize)
	for _, c := range candidates {
		if c == self {
			continue
		}
		if core.CommonPrefix(k, c, digits) < l {
			continue
		}
		if core.CircularDistance(c, k, ringSize) < selfDist {
			return c, true
		}
	}
	return 0, false
}

// Route wraps routeStep with repair, retrying when the chosen next hop
// has failed, until a terminal outcome (found, not-found, or a live
// next hop) is reached. A bounded retry count guards against a
// pathological repair loop.
func (n *Node) Route(k core.ID) (core.ID, routeOutcome) {
	for attempt := 0; attempt < n.digits*4+8; attempt++ {
		next, outcome := n.routeStep(k)
		if outcome != routeNext {
			return next, outcome
		}
		if n.fabric.IsAlive(next) {
			return next, routeNext
		}
		n.repair(next)
	}
	return 0, routeNotFound
}
