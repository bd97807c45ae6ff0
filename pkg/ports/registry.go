package ports

import "errors"

// Error kinds surfaced across the fabric/protocol boundary. A stale
// peer is deliberately absent here: it is never raised as an error,
// only recovered from locally (Chord finger-walk, Pastry repair).
var (
	// ErrDuplicateNodeID is returned by Fabric.AddNode when the
	// computed hash collides with an already-registered node.
	ErrDuplicateNodeID = errors.New("dhtsim: duplicate node id")

	// ErrDuplicateKey is returned by Chord's StoreKey when the target
	// slot is already occupied.
	ErrDuplicateKey = errors.New("dhtsim: duplicate key")

	// ErrNotInDHT indicates routing legitimately concluded a key has
	// no owner in the DHT.
	ErrNotInDHT = errors.New("dhtsim: key not in dht")

	// ErrBootstrapUnreachable indicates Fabric.Hop found no peer
	// within the maximum search depth; the joining node becomes the
	// first node of its own ring/table.
	ErrBootstrapUnreachable = errors.New("dhtsim: bootstrap unreachable")
)
