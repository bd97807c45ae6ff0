// Package chord implements the Chord node protocol: finger-table
// construction, successor/predecessor maintenance, key storage and
// lookup, voluntary departure, and lazy finger repair on stale
// pointers.
//
// A node is a struct holding its own identity, a store, and a
// reference to its fabric collaborator behind the ports.Fabric
// interface, with SHA-1 hashed identifiers and a recursive
// peer-pointer lookup.
package chord

import (
	"fmt"
	"sync"

	"github.com/mod/dhtsim/pkg/core"
	"github.com/mod/dhtsim/pkg/ports"
)

// Finger is one entry of a Chord finger table: an immutable start offset
// and the live successor of that offset.
type Finger struct {
	Start core.ID
	Node  core.ID
}

// Node is a Chord ring participant.
type Node struct {
	mu sync.Mutex

	id       core.ID
	m        int
	ringSize core.ID
	fabric   ports.Fabric

	fingers        []Finger
	predecessor    core.ID
	hasPredecessor bool

	kv map[core.ID]int
}

// NewNode constructs an inert Chord node for id on an m-bit ring. The
// node must be registered with the fabric (fabric.AddNode) before Join
// is called, since Join's bootstrap search needs the node's switch.
func NewNode(id core.ID, m int, fabric ports.Fabric) *Node {
	ringSize := core.RingSize(m)
	n := &Node{
		id:       id,
		m:        m,
		ringSize: ringSize,
		fabric:   fabric,
		fingers:  make([]Finger, m),
		kv:       make(map[core.ID]int),
	}
	for i := 0; i < m; i++ {
		n.fingers[i].Start = core.Add(id, core.ID(1)<<uint(i), ringSize)
	}
	return n
}

// ID implements ports.Node.
func (n *Node) ID() core.ID { return n.id }

func (n *Node) peer(id core.ID) *Node {
	p, ok := n.fabric.GetNode(id)
	if !ok {
		return nil
	}
	cn, ok := p.(*Node)
	if !ok {
		return nil
	}
	return cn
}

func (n *Node) snapshotFingers() []Finger {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Finger(nil), n.fingers...)
}

// PredecessorID returns the node's current predecessor, if it has one.
func (n *Node) PredecessorID() (core.ID, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.predecessor, n.hasPredecessor
}

// SetPredecessor sets the node's predecessor pointer directly.
func (n *Node) SetPredecessor(id core.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.predecessor = id
	n.hasPredecessor = true
}

// Successor returns the node's immediate successor, finger[0].
func (n *Node) Successor() core.ID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fingers[0].Node
}

func (n *Node) setSuccessor(id core.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fingers[0].Node = id
}

// Finger returns a copy of the i-th finger entry, for tests asserting
// finger-table shape invariants.
func (n *Node) Finger(i int) Finger {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fingers[i]
}

// Join binds the node into the ring, following the standard five-step
// Chord join sequence.
// The node must already be registered with the fabric.
func (n *Node) Join() error {
	bootstrapID, found := ports.ExpandingRingBootstrap(n.fabric, n.id, 500)
	if !found {
		// ErrBootstrapUnreachable: this is the first node of a new ring.
		n.mu.Lock()
		for i := range n.fingers {
			n.fingers[i].Node = n.id
		}
		n.predecessor = n.id
		n.hasPredecessor = true
		n.mu.Unlock()
		return nil
	}

	boot := n.peer(bootstrapID)
	if boot == nil {
		return fmt.Errorf("chord: bootstrap node %d vanished mid-join", bootstrapID)
	}

	// Step 1: locate our successor through the bootstrap peer.
	succID, _ := boot.FindSuccessor(n.fingers[0].Start)
	n.setSuccessor(succID)
	succPeer := n.peer(succID)
	if succPeer == nil {
		return fmt.Errorf("chord: successor %d vanished mid-join", succID)
	}

	// Step 2: splice into predecessor/successor pointers.
	predID, hasPred := succPeer.PredecessorID()
	n.mu.Lock()
	n.predecessor = predID
	n.hasPredecessor = hasPred
	n.mu.Unlock()
	succPeer.SetPredecessor(n.id)
	if hasPred {
		if predPeer := n.peer(predID); predPeer != nil {
			predPeer.setSuccessor(n.id)
		}
	}

	// Step 3: fill the rest of the finger table.
	for i := 1; i < n.m; i++ {
		prevNode := n.fingers[i-1].Node
		if core.BetweenOpen(n.id, n.fingers[i].Start, prevNode, n.ringSize) {
			n.fingers[i].Node = prevNode
		} else {
			s, _ := boot.FindSuccessor(n.fingers[i].Start)
			n.fingers[i].Node = s
		}
	}

	// Step 4: update other nodes' finger tables to point at us where we
	// improve them.
	for i := 0; i < n.m; i++ {
		pID := core.Sub(n.id, core.ID(1)<<uint(i), n.ringSize)
		predOfP := boot.FindPredecessor(pID)
		if holder := n.peer(predOfP); holder != nil {
			holder.updateFingerTable(n.id, i, 0)
		}
	}

	// Step 5: pull keys in (predecessor, self] from the successor.
	n.pullKeysFromSuccessor()

	return nil
}

// FindPredecessor walks the ring to find k's predecessor.
func (n *Node) FindPredecessor(k core.ID) core.ID {
	n.mu.Lock()
	id := n.id
	pred := n.predecessor
	hasPred := n.hasPredecessor
	n.mu.Unlock()

	if id == k {
		if hasPred {
			return pred
		}
		return id
	}
	succID, _ := n.FindSuccessor(k)
	succPeer := n.peer(succID)
	if succPeer == nil {
		return succID
	}
	p, has := succPeer.PredecessorID()
	if !has {
		return succID
	}
	return p
}

// FindSuccessor walks the ring to find k's successor, repairing any
// stale finger pointer it encounters along the way.
func (n *Node) FindSuccessor(k core.ID) (core.ID, int) {
	n.mu.Lock()
	id := n.id
	succ := n.fingers[0].Node
	fingers := append([]Finger(nil), n.fingers...)
	n.mu.Unlock()

	if id == k {
		return id, 0
	}
	if succ == id || core.BetweenOpenClosed(id, k, succ, n.ringSize) {
		return succ, 1
	}

	nextNode, chosenIdx, originalIdx := n.closestLiveFinger(fingers, k, succ)
	if originalIdx != chosenIdx {
		n.patchFingers(originalIdx, chosenIdx, nextNode)
	}

	next := n.peer(nextNode)
	if next == nil {
		// The repaired pointer vanished between selection and dereference;
		// fall back to our own successor rather than loop forever.
		if succPeer := n.peer(succ); succPeer != nil {
			s, hops := succPeer.FindSuccessor(k)
			return s, hops + 1
		}
		return succ, 1
	}
	s, hops := next.FindSuccessor(k)
	return s, hops + 1
}

// closestLiveFinger picks the closest preceding finger for k, then — if that finger's node is dead — walks
// back through lower finger indices until a live node is found. It
// returns the live node to recurse into, the index it was ultimately
// found at, and the index closest_preceding_finger originally chose (so
// the caller can patch the stale range).
func (n *Node) closestLiveFinger(fingers []Finger, k, succ core.ID) (live core.ID, chosenIdx, originalIdx int) {
	_, idx := closestPrecedingFingerIdx(fingers, n.id, k, n.ringSize)
	if idx == -1 {
		idx = 0 // fingers[0] is the immediate successor
	}
	originalIdx = idx

	for i := idx; i >= 0; i-- {
		if n.fabric.IsAlive(fingers[i].Node) {
			return fingers[i].Node, i, originalIdx
		}
	}
	// Nothing in the scanned range is alive; fall back to our successor.
	return succ, 0, originalIdx
}

func closestPrecedingFingerIdx(fingers []Finger, self, k, ringSize core.ID) (core.ID, int) {
	for i := len(fingers) - 1; i >= 0; i-- {
		f := fingers[i].Node
		if core.BetweenOpen(self, f, k, ringSize) {
			return f, i
		}
	}
	return self, -1
}

// ClosestPrecedingFinger exposes closest_preceding_finger for tests.
func (n *Node) ClosestPrecedingFinger(k core.ID) core.ID {
	fingers := n.snapshotFingers()
	candidate, idx := closestPrecedingFingerIdx(fingers, n.id, k, n.ringSize)
	if idx == -1 {
		return n.id
	}
	return candidate
}

// patchFingers sets fingers[chosen..original] (chosen <= original) to
// live, repairing the stale range in place.
func (n *Node) patchFingers(original, chosen int, live core.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	lo, hi := chosen, original
	if lo > hi {
		lo, hi = hi, lo
	}
	for i := lo; i <= hi && i < len(n.fingers); i++ {
		n.fingers[i].Node = live
	}
}

// updateFingerTable bubbles a finger-table correction back along
// predecessor pointers while depth stays within the ring's bit width,
// capping what would otherwise be an unbounded recursive walk.
func (n *Node) updateFingerTable(s core.ID, i int, depth int) {
	if depth > n.m {
		return
	}
	n.mu.Lock()
	if s == n.id {
		n.mu.Unlock()
		return
	}
	cur := n.fingers[i].Node
	improves := s == n.fingers[i].Start || core.BetweenOpen(n.fingers[i].Start, s, cur, n.ringSize)
	if !improves || s == cur {
		n.mu.Unlock()
		return
	}
	n.fingers[i].Node = s
	pred := n.predecessor
	hasPred := n.hasPredecessor
	n.mu.Unlock()

	if hasPred && pred != n.id {
		if predPeer := n.peer(pred); predPeer != nil {
			predPeer.updateFingerTable(s, i, depth+1)
		}
	}
}

func (n *Node) predecessorOrSelf() core.ID {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.hasPredecessor {
		return n.predecessor
	}
	return n.id
}

// pullKeysFromSuccessor implements join step 5.
func (n *Node) pullKeysFromSuccessor() {
	succ := n.peer(n.Successor())
	if succ == nil || succ.id == n.id {
		return
	}
	keys := succ.extractKeysInRange(n.predecessorOrSelf(), n.id)
	n.mu.Lock()
	for k, v := range keys {
		n.kv[k] = v
	}
	n.mu.Unlock()
}

func (n *Node) extractKeysInRange(predID, selfID core.ID) map[core.ID]int {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[core.ID]int)
	for k, v := range n.kv {
		if core.BetweenOpenClosed(predID, k, selfID, n.ringSize) {
			out[k] = v
			delete(n.kv, k)
		}
	}
	return out
}

// StoreKey hashes key to the ring, routes to its successor, and stores
// value there if the slot is free. Returns the hop count and
// ports.ErrDuplicateKey if the slot is occupied.
func (n *Node) StoreKey(key string, value int) (int, error) {
	h := core.HashToRing(key, n.ringSize)
	owner, hops := n.FindSuccessor(h)
	peer := n.peer(owner)
	if peer == nil {
		return hops, fmt.Errorf("chord: owner %d unreachable", owner)
	}
	return hops, peer.put(h, value)
}

func (n *Node) put(h core.ID, value int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.kv[h]; exists {
		return ports.ErrDuplicateKey
	}
	n.kv[h] = value
	return nil
}

// Search hashes key to the ring, routes to its successor, and returns
// the stored value if present.
func (n *Node) Search(key string) (hops int, value int, found bool) {
	h := core.HashToRing(key, n.ringSize)
	owner, hops := n.FindSuccessor(h)
	peer := n.peer(owner)
	if peer == nil {
		return hops, 0, false
	}
	v, ok := peer.get(h)
	return hops, v, ok
}

func (n *Node) get(h core.ID) (int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.kv[h]
	return v, ok
}

// notify merges handed-off keys into the local store without
// overwriting anything already present.
func (n *Node) notify(keys map[core.ID]int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for k, v := range keys {
		if _, exists := n.kv[k]; !exists {
			n.kv[k] = v
		}
	}
}

// fillFingerTable repairs any finger entry that still points at the
// departed node using the other surviving neighbor's corresponding
// entry. Entries that remain stale are picked up lazily by the next
// route that touches them.
func (n *Node) fillFingerTable(departed core.ID, other *Node) {
	otherFingers := other.snapshotFingers()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.fingers {
		if n.fingers[i].Node == departed && otherFingers[i].Node != departed {
			n.fingers[i].Node = otherFingers[i].Node
		}
	}
}

// Depart hands off keys, splices around self, asks neighbors to refill
// their finger tables, then leaves the fabric.
func (n *Node) Depart() bool {
	n.mu.Lock()
	succID := n.fingers[0].Node
	predID := n.predecessor
	hasPred := n.hasPredecessor
	selfID := n.id
	handoff := make(map[core.ID]int)
	for k, v := range n.kv {
		if !hasPred || predID == selfID || core.BetweenOpenClosed(predID, k, selfID, n.ringSize) {
			handoff[k] = v
		}
	}
	n.mu.Unlock()

	if succID != selfID {
		if succPeer := n.peer(succID); succPeer != nil {
			succPeer.notify(handoff)
			succPeer.SetPredecessor(predID)

			var predPeer *Node
			if hasPred && predID != selfID {
				predPeer = n.peer(predID)
			}
			if predPeer != nil {
				predPeer.setSuccessor(succID)
				predPeer.fillFingerTable(selfID, succPeer)
				succPeer.fillFingerTable(selfID, predPeer)
			}
		}
	}

	return n.fabric.RemoveNode(selfID)
}
