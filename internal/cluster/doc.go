// Package cluster tracks the set of known nodes, their per-vnode token
// ranges, and the replica set each range maps to per datacenter. Ring is
// an immutable snapshot swapped atomically on topology change, mirroring
// the reference driver's SharedRing/ArcSwapOption pattern with Go's
// atomic.Pointer instead of arc-swap.
package cluster
