package pastry

import "github.com/mod/dhtsim/pkg/core"

// repair localizes replacement of a stale leaf-set, neighborhood-set,
// or routing-table entry using the nearest surviving peer as an
// oracle. All three parts run independently since failed may appear in
// more than one set.
func (n *Node) repair(failed core.ID) {
	n.repairLeaf(failed)
	n.repairNeighbor(failed)
	n.repairRoutingTable(failed)
}

func (n *Node) repairLeaf(failed core.ID) {
	n.mu.Lock()
	inSmaller := containsID(n.smaller, failed)
	inLarger := containsID(n.larger, failed)
	n.mu.Unlock()
	if !inSmaller && !inLarger {
		return
	}

	excluded := map[core.ID]bool{failed: true}
	extreme := n.extremeLeafSet(inSmaller, excluded)
	for extreme != n.id && !n.fabric.IsAlive(extreme) && !excluded[extreme] {
		excluded[extreme] = true
		extreme = n.extremeLeafSet(inSmaller, excluded)
	}

	var candidates []core.ID
	if extreme != n.id {
		if p := n.peer(extreme); p != nil {
			candidates = p.leafIDsIncludingSelf()
		}
	}

	n.removeFromLeafSet(failed)
	n.mergeLeafSet(candidates, map[core.ID]bool{failed: true})
}

func (n *Node) repairNeighbor(failed core.ID) {
	n.mu.Lock()
	present := containsID(n.neighborhood, failed)
	rest := filterOutID(n.neighborhood, failed)
	n.mu.Unlock()
	if !present {
		return
	}
	n.mu.Lock()
	n.neighborhood = rest
	n.mu.Unlock()
	if len(rest) == 0 {
		return
	}

	nearest, nearestDist, have := core.ID(0), -1, false
	for _, id := range rest {
		d := n.fabric.Proximity(n.id, id)
		if d < 0 {
			continue
		}
		if !have || d < nearestDist {
			nearest, nearestDist, have = id, d, true
		}
	}
	if !have {
		return
	}

	p := n.peer(nearest)
	if p == nil {
		return
	}
	theirs := p.neighborhoodIDsIncludingSelf()

	n.mu.Lock()
	known := make(map[core.ID]bool, len(n.neighborhood)+1)
	for _, id := range n.neighborhood {
		known[id] = true
	}
	known[n.id] = true
	n.mu.Unlock()

	var best core.ID
	bestDist, found := -1, false
	for _, id := range theirs {
		if known[id] {
			continue
		}
		d := n.fabric.Proximity(n.id, id)
		if d < 0 {
			continue
		}
		if !found || d < bestDist {
			best, bestDist, found = id, d, true
		}
	}
	if found {
		n.considerNeighbor(best)
	}
}

func (n *Node) repairRoutingTable(failed core.ID) {
	n.mu.Lock()
	foundL, foundD, found := 0, 0, false
	for l := 0; l < n.digits && !found; l++ {
		for d := 0; d < n.cols; d++ {
			if n.routingTable[l][d] == failed {
				foundL, foundD, found = l, d, true
				break
			}
		}
	}
	n.mu.Unlock()
	if !found {
		return
	}

	// Clamp l+1 defensively near the last row instead of indexing past it.
	l2 := foundL + 1
	if l2 > n.digits-1 {
		l2 = n.digits - 1
	}

	n.mu.Lock()
	var contacts []core.ID
	for _, row := range [][]core.ID{n.routingTable[foundL], n.routingTable[l2]} {
		for _, id := range row {
			if id != noEntry && id != n.id {
				contacts = append(contacts, id)
			}
		}
	}
	n.mu.Unlock()

	replacement, replaced := core.ID(0), false
	for _, c := range contacts {
		if !n.fabric.IsAlive(c) {
			continue
		}
		p := n.peer(c)
		if p == nil {
			continue
		}
		alt, ok := p.RoutingEntry(foundL, foundD)
		if ok && alt != failed && n.fabric.IsAlive(alt) {
			replacement, replaced = alt, true
			break
		}
	}

	n.mu.Lock()
	if replaced {
		n.routingTable[foundL][foundD] = replacement
	} else {
		n.routingTable[foundL][foundD] = noEntry
	}
	n.mu.Unlock()
}
