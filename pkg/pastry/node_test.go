package pastry

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mod/dhtsim/pkg/core"
	"github.com/mod/dhtsim/pkg/fabric"
)

const (
	testDigits = 3 // 16^3 = 4096 ids, plenty for a few dozen nodes
	testBase   = 4 // 2^4 = 16 columns per row, one per hex digit
)

func buildMesh(t *testing.T, n *fabric.Network, count int, seed int64) []*Node {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	ringSize := core.HexRingSize(testDigits)

	seen := make(map[core.ID]bool)
	nodes := make([]*Node, 0, count)
	for i := 0; i < count; i++ {
		var id core.ID
		for {
			id = core.HashToRing(fmt.Sprintf("pastry-node-%d", rng.Int()), ringSize)
			if !seen[id] {
				seen[id] = true
				break
			}
		}
		node := NewNode(id, testDigits, testBase, n)
		require.NoError(t, n.AddNode(id, node))
		require.NoError(t, node.Join())
		nodes = append(nodes, node)
	}
	return nodes
}

func TestLeafSetSymmetry(t *testing.T) {
	net := fabric.New(200, rand.New(rand.NewSource(1)))
	nodes := buildMesh(t, net, 30, 1)

	for _, n := range nodes {
		smaller, larger := n.LeafSet()
		require.LessOrEqual(t, len(smaller), n.leafHalf, "node %x: smaller leaf set exceeds half-width", n.id)
		require.LessOrEqual(t, len(larger), n.leafHalf, "node %x: larger leaf set exceeds half-width", n.id)

		for _, id := range smaller {
			require.True(t, id < n.id, "node %x: smaller-side leaf %x is not numerically smaller", n.id, id)
			require.True(t, net.IsAlive(id), "node %x: leaf %x is not alive", n.id, id)
		}
		for _, id := range larger {
			require.True(t, id > n.id, "node %x: larger-side leaf %x is not numerically larger", n.id, id)
			require.True(t, net.IsAlive(id), "node %x: leaf %x is not alive", n.id, id)
		}
	}
}

func TestRoutingTableShape(t *testing.T) {
	net := fabric.New(200, rand.New(rand.NewSource(2)))
	nodes := buildMesh(t, net, 20, 2)

	for _, n := range nodes {
		selfDigit := core.HexDigit(n.id, 0, n.digits)
		got, ok := n.RoutingEntry(0, int(selfDigit))
		require.True(t, ok, "node %x: routingTable[0][%d] should be populated", n.id, selfDigit)
		require.Equal(t, n.id, got, "node %x: routingTable[0][%d] should hold self", n.id, selfDigit)

		for l := 0; l < n.digits; l++ {
			for d := 0; d < n.cols; d++ {
				entry, ok := n.RoutingEntry(l, d)
				if !ok {
					continue
				}
				if entry == n.id {
					require.Equal(t, d, int(core.HexDigit(n.id, l, n.digits)),
						"node %x: self planted at [%d][%d], expected digit %d", n.id, l, d, core.HexDigit(n.id, l, n.digits))
					continue
				}
				require.Equal(t, l, core.CommonPrefix(n.id, entry, n.digits),
					"node %x: entry %x at row %d shares a different prefix with self", n.id, entry, l)
				require.Equal(t, d, int(core.HexDigit(entry, l, n.digits)),
					"node %x: entry %x at row %d does not have digit %d at position %d", n.id, entry, l, d, l)
			}
		}
	}
}

func TestSearchIDFindsEveryLiveNode(t *testing.T) {
	net := fabric.New(200, rand.New(rand.NewSource(3)))
	nodes := buildMesh(t, net, 25, 3)

	for _, target := range nodes {
		hops, foundID, found := nodes[0].SearchID(target.id)
		require.True(t, found, "search for live node %x from %x failed after %d hops", target.id, nodes[0].id, hops)
		require.Equal(t, target.id, foundID)
		require.LessOrEqual(t, hops, testDigits*4+8, "search for %x exceeded the routing retry budget", target.id)
	}
}

func TestSearchIDMissOnAbsentNode(t *testing.T) {
	net := fabric.New(200, rand.New(rand.NewSource(4)))
	nodes := buildMesh(t, net, 15, 4)

	absent := core.HexRingSize(testDigits) - 1
	for _, n := range nodes {
		if n.id == absent {
			t.Skip("chosen absent id collided with a live node for this seed")
		}
	}

	_, _, found := nodes[0].SearchID(absent)
	require.False(t, found, "search for unassigned id %x unexpectedly succeeded", absent)
}

func TestNodeUpdateIdempotent(t *testing.T) {
	net := fabric.New(200, rand.New(rand.NewSource(5)))
	nodes := buildMesh(t, net, 10, 5)

	observer := nodes[0]
	target := nodes[5].id

	observer.nodeUpdate(target)
	smallerAfterFirst, largerAfterFirst := observer.LeafSet()
	neighborhoodAfterFirst := observer.NeighborhoodSet()

	observer.nodeUpdate(target)
	smallerAfterSecond, largerAfterSecond := observer.LeafSet()
	neighborhoodAfterSecond := observer.NeighborhoodSet()

	require.Equal(t, len(smallerAfterFirst), len(smallerAfterSecond), "repeated nodeUpdate changed smaller leaf set size")
	require.Equal(t, len(largerAfterFirst), len(largerAfterSecond), "repeated nodeUpdate changed larger leaf set size")
	require.Equal(t, len(neighborhoodAfterFirst), len(neighborhoodAfterSecond), "repeated nodeUpdate changed neighborhood set size")
}

func TestChurnSurvivorsStayReachable(t *testing.T) {
	net := fabric.New(300, rand.New(rand.NewSource(6)))
	nodes := buildMesh(t, net, 40, 6)

	departing := nodes[:len(nodes)/2]
	survivors := nodes[len(nodes)/2:]
	for _, n := range departing {
		net.RemoveNode(n.id)
	}
	for _, n := range survivors {
		for _, failed := range departing {
			n.repair(failed.id)
		}
	}

	for _, target := range survivors {
		hops, foundID, found := survivors[0].SearchID(target.id)
		require.True(t, found, "survivor %x unreachable from %x after churn", target.id, survivors[0].id)
		require.Equal(t, target.id, foundID)
		require.LessOrEqual(t, hops, 10, "search for surviving %x took too many hops after churn", target.id)
	}
}
