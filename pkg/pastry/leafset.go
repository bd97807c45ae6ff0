package pastry

import "github.com/mod/dhtsim/pkg/core"

// isSmaller reports whether id belongs on the numerically-smaller side
// of self's leaf set.
func (n *Node) isSmaller(id core.ID) bool {
	return id < n.id
}

// mergeLeafSet partitions the union of the current leaf set and
// candidates around self, sorts each side by closeness, and trims each
// side to leafHalf entries. Candidates (and current members) in
// excluded, or not currently alive, are dropped. Ids on a side with
// fewer than leafHalf live candidates simply keep what is available:
// the invariant only requires "up to" leafHalf per side, not exactly
// leafHalf.
func (n *Node) mergeLeafSet(candidates []core.ID, excluded map[core.ID]bool) {
	n.mu.Lock()
	all := make(map[core.ID]bool, len(n.smaller)+len(n.larger)+len(candidates))
	for _, id := range n.smaller {
		all[id] = true
	}
	for _, id := range n.larger {
		all[id] = true
	}
	self := n.id
	ringSize := n.ringSize
	half := n.leafHalf
	n.mu.Unlock()

	for _, id := range candidates {
		all[id] = true
	}
	delete(all, self)

	var smallerCandidates, largerCandidates []core.ID
	for id := range all {
		if excluded != nil && excluded[id] {
			continue
		}
		if !n.fabric.IsAlive(id) {
			continue
		}
		if n.isSmaller(id) {
			smallerCandidates = append(smallerCandidates, id)
		} else {
			largerCandidates = append(largerCandidates, id)
		}
	}
	sortByDistanceThenID(smallerCandidates, self, ringSize)
	sortByDistanceThenID(largerCandidates, self, ringSize)

	if len(smallerCandidates) > half {
		smallerCandidates = smallerCandidates[:half]
	}
	if len(largerCandidates) > half {
		largerCandidates = largerCandidates[:half]
	}

	n.mu.Lock()
	n.smaller = smallerCandidates
	n.larger = largerCandidates
	n.mu.Unlock()
}

func (n *Node) removeFromLeafSet(failed core.ID) {
	n.mu.Lock()
	n.smaller = filterOutID(n.smaller, failed)
	n.larger = filterOutID(n.larger, failed)
	n.mu.Unlock()
}

// extremeLeafSet returns the farthest currently-held leaf on the given
// side (smallerSide selects the smaller list), skipping any id present
// in failed, or self if that side has nothing left.
func (n *Node) extremeLeafSet(smallerSide bool, failed map[core.ID]bool) core.ID {
	n.mu.Lock()
	list := n.larger
	if smallerSide {
		list = n.smaller
	}
	listCopy := append([]core.ID(nil), list...)
	n.mu.Unlock()

	filtered := listCopy[:0:0]
	for _, id := range listCopy {
		if failed != nil && failed[id] {
			continue
		}
		filtered = append(filtered, id)
	}
	if len(filtered) == 0 {
		return n.id
	}
	return filtered[len(filtered)-1]
}

// adoptNeighborhood dedups candidates, sorts by fabric proximity, and
// caps at neighMax, evicting the farthest first when oversize.
func (n *Node) adoptNeighborhood(candidates []core.ID) {
	self := n.id
	seen := make(map[core.ID]bool, len(candidates))
	var ids []core.ID
	for _, id := range candidates {
		if id == self || seen[id] {
			continue
		}
		if !n.fabric.IsAlive(id) {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	n.sortByProximity(ids)
	if len(ids) > n.neighMax {
		ids = ids[:n.neighMax]
	}
	n.mu.Lock()
	n.neighborhood = ids
	n.mu.Unlock()
}

func (n *Node) sortByProximity(ids []core.ID) {
	type scored struct {
		id   core.ID
		prox int
	}
	scoredIDs := make([]scored, len(ids))
	for i, id := range ids {
		p := n.fabric.Proximity(n.id, id)
		if p < 0 {
			p = int(^uint(0) >> 1) // treat unreachable as maximally far
		}
		scoredIDs[i] = scored{id, p}
	}
	for i := 1; i < len(scoredIDs); i++ {
		j := i
		for j > 0 && (scoredIDs[j].prox < scoredIDs[j-1].prox ||
			(scoredIDs[j].prox == scoredIDs[j-1].prox && scoredIDs[j].id < scoredIDs[j-1].id)) {
			scoredIDs[j], scoredIDs[j-1] = scoredIDs[j-1], scoredIDs[j]
			j--
		}
	}
	for i, s := range scoredIDs {
		ids[i] = s.id
	}
}

// considerNeighbor implements node_update's neighborhood-set step: add s
// if there is room, otherwise evict the current farthest member when s
// is closer. Idempotent — a second call with an already-present s is a
// no-op.
func (n *Node) considerNeighbor(s core.ID) {
	if s == n.id {
		return
	}
	n.mu.Lock()
	cur := append([]core.ID(nil), n.neighborhood...)
	n.mu.Unlock()

	if containsID(cur, s) {
		return
	}
	prox := n.fabric.Proximity(n.id, s)
	if prox < 0 {
		return
	}

	if len(cur) < n.neighMax {
		cur = append(cur, s)
	} else {
		farIdx, farDist := 0, n.fabric.Proximity(n.id, cur[0])
		for i := 1; i < len(cur); i++ {
			d := n.fabric.Proximity(n.id, cur[i])
			if d > farDist {
				farDist, farIdx = d, i
			}
		}
		if prox >= farDist {
			return
		}
		cur[farIdx] = s
	}
	n.sortByProximity(cur)
	n.mu.Lock()
	n.neighborhood = cur
	n.mu.Unlock()
}
