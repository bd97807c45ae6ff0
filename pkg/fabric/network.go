// Package fabric implements the abstract network substrate every DHT
// node protocol runs over: a switch graph, node membership, and the
// proximity/expanding-ring-multicast primitives both Chord and Pastry
// bootstrap through.
//
// Network is a concrete adapter behind the ports.Fabric interface,
// playing the role of "route between peers" generalized from a fixed
// signing quorum to a BFS over a switch graph for the nearest live
// peer.
package fabric

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mod/dhtsim/pkg/core"
	"github.com/mod/dhtsim/pkg/ports"
)

// Network is the concrete ports.Fabric implementation.
type Network struct {
	mu sync.RWMutex

	switches     []int
	adjacency    map[int][]int
	nodeToSwitch map[core.ID]int
	switchToNode map[int]core.ID
	nodes        map[core.ID]ports.Node

	rng *rand.Rand
}

// New builds a Network with numSwitches switches. The adjacency is
// generated: a ring covering every switch (guaranteeing connectivity),
// then uniformly random extra edges until the link count lands in
// [8*numSwitches, 16*numSwitches).
func New(numSwitches int, rng *rand.Rand) *Network {
	n := &Network{
		switches:     make([]int, numSwitches),
		adjacency:    make(map[int][]int, numSwitches),
		nodeToSwitch: make(map[core.ID]int),
		switchToNode: make(map[int]core.ID),
		nodes:        make(map[core.ID]ports.Node),
		rng:          rng,
	}
	for i := 0; i < numSwitches; i++ {
		n.switches[i] = i
	}
	n.buildRing()
	n.addRandomEdges(numSwitches)
	return n
}

// NewFromLinkFile builds a Network by reading a links.dat adjacency list
// instead of generating one. Switches for added nodes are drawn from a
// generator with a fixed seed of 1.
func NewFromLinkFile(numSwitches int, path string) (*Network, error) {
	n := &Network{
		switches:     make([]int, numSwitches),
		adjacency:    make(map[int][]int, numSwitches),
		nodeToSwitch: make(map[core.ID]int),
		switchToNode: make(map[int]core.ID),
		nodes:        make(map[core.ID]ports.Node),
		rng:          rand.New(rand.NewSource(1)),
	}
	for i := 0; i < numSwitches; i++ {
		n.switches[i] = i
	}
	if err := n.readLinkFile(path); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Network) buildRing() {
	s := len(n.switches)
	for i := 0; i < s; i++ {
		j := (i + 1) % s
		n.addEdge(i, j)
	}
}

func (n *Network) addRandomEdges(numSwitches int) {
	if numSwitches < 2 {
		return
	}
	target := numSwitches*8 + n.rng.Intn(numSwitches*8)
	links := n.linkCount()
	for links < target {
		a := n.rng.Intn(numSwitches)
		b := n.rng.Intn(numSwitches)
		if a == b {
			continue
		}
		if n.hasEdge(a, b) {
			continue
		}
		n.addEdge(a, b)
		links++
	}
}

func (n *Network) linkCount() int {
	total := 0
	for _, peers := range n.adjacency {
		total += len(peers)
	}
	return total / 2
}

func (n *Network) hasEdge(a, b int) bool {
	for _, p := range n.adjacency[a] {
		if p == b {
			return true
		}
	}
	return false
}

func (n *Network) addEdge(a, b int) {
	if n.hasEdge(a, b) {
		return
	}
	n.adjacency[a] = append(n.adjacency[a], b)
	n.adjacency[b] = append(n.adjacency[b], a)
}

// WriteLinkFile writes the current adjacency as "src,dst" pairs, one
// undirected edge per line.
func (n *Network) WriteLinkFile(path string) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fabric: create link file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	seen := make(map[[2]int]bool)
	for _, s := range n.switches {
		peers := append([]int(nil), n.adjacency[s]...)
		sort.Ints(peers)
		for _, p := range peers {
			key := [2]int{s, p}
			rev := [2]int{p, s}
			if seen[key] || seen[rev] {
				continue
			}
			seen[key] = true
			if _, err := fmt.Fprintf(w, "%d,%d\n", s, p); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

func (n *Network) readLinkFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("fabric: open link file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 2 {
			continue
		}
		a, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return fmt.Errorf("fabric: parse link file: %w", err)
		}
		b, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return fmt.Errorf("fabric: parse link file: %w", err)
		}
		n.addEdge(a, b)
	}
	return scanner.Err()
}

// AddNode implements ports.Fabric. It assigns id a fresh switch by
// rejection sampling so nodeToSwitch stays injective.
func (n *Network) AddNode(id core.ID, node ports.Node) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.nodes[id]; exists {
		return ports.ErrDuplicateNodeID
	}
	if len(n.switchToNode) >= len(n.switches) {
		return fmt.Errorf("fabric: no free switch available")
	}

	sw := n.pickFreeSwitch()
	n.nodeToSwitch[id] = sw
	n.switchToNode[sw] = id
	n.nodes[id] = node
	return nil
}

func (n *Network) pickFreeSwitch() int {
	for {
		candidate := n.switches[n.rng.Intn(len(n.switches))]
		if _, occupied := n.switchToNode[candidate]; !occupied {
			return candidate
		}
	}
}

// RemoveNode implements ports.Fabric.
func (n *Network) RemoveNode(id core.ID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	sw, ok := n.nodeToSwitch[id]
	if !ok {
		return false
	}
	delete(n.nodeToSwitch, id)
	delete(n.switchToNode, sw)
	delete(n.nodes, id)
	return true
}

// IsAlive implements ports.Fabric.
func (n *Network) IsAlive(id core.ID) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.nodes[id]
	return ok
}

// GetNode implements ports.Fabric.
func (n *Network) GetNode(id core.ID) (ports.Node, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	node, ok := n.nodes[id]
	return node, ok
}

// Proximity implements ports.Fabric.
func (n *Network) Proximity(a, b core.ID) int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	sa, ok := n.nodeToSwitch[a]
	if !ok {
		return -1
	}
	sb, ok := n.nodeToSwitch[b]
	if !ok {
		return -1
	}
	d := sa - sb
	if d < 0 {
		d = -d
	}
	return d
}

// Hop implements ports.Fabric: BFS from origin's switch, returning the
// first other live peer hit within maxDepth layers.
func (n *Network) Hop(origin core.ID, maxDepth int) (core.ID, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	start, ok := n.nodeToSwitch[origin]
	if !ok {
		return 0, false
	}

	visited := map[int]bool{start: true}
	frontier := []int{start}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []int
		for _, sw := range frontier {
			for _, peer := range n.adjacency[sw] {
				if visited[peer] {
					continue
				}
				visited[peer] = true
				if nodeID, occupied := n.switchToNode[peer]; occupied && nodeID != origin {
					return nodeID, true
				}
				next = append(next, peer)
			}
		}
		frontier = next
	}
	return 0, false
}

// Adjacency returns a defensive copy of the switch adjacency, primarily
// for tests asserting link-file round-trips.
func (n *Network) Adjacency() map[int][]int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make(map[int][]int, len(n.adjacency))
	for k, v := range n.adjacency {
		cp := append([]int(nil), v...)
		sort.Ints(cp)
		out[k] = cp
	}
	return out
}

// NumSwitches returns the number of switches in the fabric.
func (n *Network) NumSwitches() int {
	return len(n.switches)
}
