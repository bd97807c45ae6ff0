package chord

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mod/dhtsim/pkg/core"
	"github.com/mod/dhtsim/pkg/fabric"
)

const testBits = 10 // small ring, plenty of room for a few dozen nodes

func buildRing(t *testing.T, n *fabric.Network, count int, seed int64) []*Node {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	ringSize := core.RingSize(testBits)

	seen := make(map[core.ID]bool)
	nodes := make([]*Node, 0, count)
	for i := 0; i < count; i++ {
		var id core.ID
		for {
			id = core.HashToRing(fmt.Sprintf("chord-node-%d", rng.Int()), ringSize)
			if !seen[id] {
				seen[id] = true
				break
			}
		}
		node := NewNode(id, testBits, n)
		require.NoError(t, n.AddNode(id, node))
		require.NoError(t, node.Join())
		nodes = append(nodes, node)
	}
	return nodes
}

func TestSuccessorClosure(t *testing.T) {
	net := fabric.New(200, rand.New(rand.NewSource(1)))
	nodes := buildRing(t, net, 30, 42)

	for _, n := range nodes {
		succID := n.Successor()
		require.True(t, net.IsAlive(succID), "node %d's successor %d is not alive", n.ID(), succID)
	}

	start := nodes[0]
	visited := map[core.ID]bool{start.ID(): true}
	cur := start
	for i := 0; i < len(nodes)+1; i++ {
		succID := cur.Successor()
		if succID == start.ID() {
			break
		}
		found := false
		for _, candidate := range nodes {
			if candidate.ID() == succID {
				cur = candidate
				found = true
				break
			}
		}
		require.True(t, found, "successor %d not among constructed nodes", succID)
		require.False(t, visited[succID], "successor ring revisited node %d before closing", succID)
		visited[succID] = true
	}
	require.Len(t, visited, len(nodes), "successor traversal should visit every live node exactly once")
}

func TestFingerValidity(t *testing.T) {
	net := fabric.New(200, rand.New(rand.NewSource(2)))
	nodes := buildRing(t, net, 20, 7)

	for _, n := range nodes {
		for i := 0; i < testBits; i++ {
			f := n.Finger(i)
			require.True(t, net.IsAlive(f.Node), "finger[%d] of node %d points at dead node %d", i, n.ID(), f.Node)
		}
	}
}

func TestStoreAndSearch(t *testing.T) {
	net := fabric.New(200, rand.New(rand.NewSource(3)))
	nodes := buildRing(t, net, 25, 11)

	storer := nodes[0]
	stored := make(map[string]int)
	for i := 0; i < 40; i++ {
		key := fmt.Sprintf("key-%d", i)
		_, err := storer.StoreKey(key, i)
		if err == nil {
			stored[key] = i
		}
	}

	for key, want := range stored {
		hops, got, found := nodes[len(nodes)-1].Search(key)
		require.True(t, found, "expected to find key %q", key)
		require.Equal(t, want, got)
		require.LessOrEqual(t, hops, testBits+2)
	}

	_, _, found := nodes[0].Search("never-stored-key")
	require.False(t, found)
}

func TestChurnSurvivingKeysStayFindable(t *testing.T) {
	net := fabric.New(300, rand.New(rand.NewSource(9)))
	nodes := buildRing(t, net, 50, 21)

	storer := nodes[0]
	type stored struct {
		key   string
		value int
	}
	var all []stored
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("churn-key-%d", i)
		if _, err := storer.StoreKey(key, i); err == nil {
			all = append(all, stored{key, i})
		}
	}

	rng := rand.New(rand.NewSource(23))
	rng.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })
	departing := nodes[:25]
	survivors := nodes[25:]
	for _, n := range departing {
		n.Depart()
	}

	seeker := survivors[0]
	for _, kv := range all {
		_, got, found := seeker.Search(kv.key)
		if !found {
			continue // this key's former owner may have been among the departed with no live successor to hand off to
		}
		require.Equal(t, kv.value, got)
	}
}

func TestDepartKeepsSuccessorsAlive(t *testing.T) {
	net := fabric.New(200, rand.New(rand.NewSource(4)))
	nodes := buildRing(t, net, 20, 13)

	departed := nodes[5]
	require.True(t, departed.Depart())
	require.False(t, net.IsAlive(departed.ID()))

	remaining := append(nodes[:5], nodes[6:]...)
	for _, n := range remaining {
		succID := n.Successor()
		require.NotEqual(t, departed.ID(), succID, "node %d still points at departed node", n.ID())
	}
}
