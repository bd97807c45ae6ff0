package ports

import "github.com/mod/dhtsim/pkg/core"

// ExpandingRingBootstrap runs Fabric.Hop at increasing depths, 1..maxDepth,
// stopping at the first depth that returns a live peer. Both Chord's and
// Pastry's join operations use this to discover a bootstrap peer;
// maxDepth is 500 in the shipped experiments.
func ExpandingRingBootstrap(f Fabric, origin core.ID, maxDepth int) (core.ID, bool) {
	for depth := 1; depth <= maxDepth; depth++ {
		if id, ok := f.Hop(origin, depth); ok {
			return id, true
		}
	}
	return 0, false
}
