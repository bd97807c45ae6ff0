package fabric

import (
	"math/rand"
	"os"
	"testing"

	"github.com/mod/dhtsim/pkg/core"
)

type fakeNode struct{ id core.ID }

func (f fakeNode) ID() core.ID { return f.id }

func newTestNetwork(t *testing.T, switches, seed int) *Network {
	t.Helper()
	return New(switches, rand.New(rand.NewSource(int64(seed))))
}

func TestAddRemoveGetNode(t *testing.T) {
	net := newTestNetwork(t, 20, 1)

	if err := net.AddNode(42, fakeNode{42}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := net.AddNode(42, fakeNode{42}); err == nil {
		t.Fatal("expected duplicate node id error")
	}
	if !net.IsAlive(42) {
		t.Fatal("expected node 42 to be alive")
	}
	if _, ok := net.GetNode(42); !ok {
		t.Fatal("expected GetNode(42) to find the node")
	}
	if !net.RemoveNode(42) {
		t.Fatal("expected RemoveNode(42) to succeed")
	}
	if net.IsAlive(42) {
		t.Fatal("expected node 42 to be gone after removal")
	}
	if net.RemoveNode(42) {
		t.Fatal("expected second RemoveNode(42) to fail")
	}
}

func TestProximityUnregistered(t *testing.T) {
	net := newTestNetwork(t, 20, 1)
	if net.AddNode(1, fakeNode{1}) != nil {
		t.Fatal("AddNode failed")
	}
	if p := net.Proximity(1, 99); p != -1 {
		t.Fatalf("Proximity with unregistered peer = %d, want -1", p)
	}
}

func TestHopMonotonicity(t *testing.T) {
	net := newTestNetwork(t, 50, 2)
	ids := []core.ID{10, 20, 30, 40, 50}
	for _, id := range ids {
		if err := net.AddNode(id, fakeNode{id}); err != nil {
			t.Fatalf("AddNode(%d): %v", id, err)
		}
	}

	seenAtDepth := func(depth int) map[core.ID]bool {
		seen := make(map[core.ID]bool)
		for depth2 := 1; depth2 <= depth; depth2++ {
			if id, ok := net.Hop(10, depth2); ok {
				seen[id] = true
			}
		}
		return seen
	}

	small := seenAtDepth(2)
	large := seenAtDepth(8)
	for id := range small {
		if !large[id] {
			t.Fatalf("node %d discovered at shallow depth missing from deeper depth", id)
		}
	}
}

func TestLinkFileRoundTrip(t *testing.T) {
	net := newTestNetwork(t, 100, 3)
	path := t.TempDir() + "/links.dat"

	if err := net.WriteLinkFile(path); err != nil {
		t.Fatalf("WriteLinkFile: %v", err)
	}
	defer os.Remove(path)

	loaded, err := NewFromLinkFile(100, path)
	if err != nil {
		t.Fatalf("NewFromLinkFile: %v", err)
	}

	want := net.Adjacency()
	got := loaded.Adjacency()
	if len(want) != len(got) {
		t.Fatalf("adjacency size mismatch: %d vs %d", len(want), len(got))
	}
	for sw, peers := range want {
		gotPeers, ok := got[sw]
		if !ok {
			t.Fatalf("switch %d missing from reloaded adjacency", sw)
		}
		if len(peers) != len(gotPeers) {
			t.Fatalf("switch %d peer count mismatch: %v vs %v", sw, peers, gotPeers)
		}
		for i := range peers {
			if peers[i] != gotPeers[i] {
				t.Fatalf("switch %d peers differ: %v vs %v", sw, peers, gotPeers)
			}
		}
	}
}
