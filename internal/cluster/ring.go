// File: internal/cluster/ring.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Ring maps a partition token to its ordered replica set per datacenter.
// It is built once from a topology snapshot and never mutated; topology
// changes produce a brand new Ring, installed via atomic.Pointer the way
// the reference driver swaps SharedRing behind an ArcSwapOption.

package cluster

import (
	"math"
	"sort"
)

// vnode is one interval of the ring, (Left, Right], with its
// precomputed replica set per datacenter: a token equal to a node's own
// token belongs to that node, per spec.md §3/§4.4.
type vnode struct {
	left, right int64
	replicas    map[string][]Replica
}

// Ring is an immutable, binary-searchable snapshot of the token space.
type Ring struct {
	vnodes          []vnode
	LocalDatacenter string
}

// vnodeSeed is one not-yet-finalized interval, before its replica set has
// been computed by walking the rest of the ring.
type vnodeSeed struct {
	left, right int64
	address     string
	datacenter  string
	msb         uint8
	shardCount  uint16
}

// BuildRing constructs a Ring from every node's owned tokens, inserting
// MIN/MAX sentinels if the node tokens don't already cover the full
// range, and precomputing each vnode's replica set by walking the sorted
// token list clockwise until each datacenter's replication factor
// (replication[dc], or defaultRF if dc is absent from replication) is met.
func BuildRing(localDatacenter string, nodes []NodeInfo, replication map[string]int, defaultRF int) *Ring {
	type tokenEntry struct {
		token      int64
		address    string
		datacenter string
		msb        uint8
		shardCount uint16
	}
	var entries []tokenEntry
	for _, n := range nodes {
		for _, t := range n.Tokens {
			entries = append(entries, tokenEntry{t, n.Address, n.Datacenter, n.MSB, n.ShardCount})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].token < entries[j].token })

	var seeds []vnodeSeed
	recentLeft := int64(math.MinInt64)
	for _, e := range entries {
		seeds = append(seeds, vnodeSeed{recentLeft, e.token, e.address, e.datacenter, e.msb, e.shardCount})
		recentLeft = e.token
	}
	if len(seeds) == 0 {
		return &Ring{LocalDatacenter: localDatacenter}
	}
	if seeds[0].right == math.MinInt64 {
		seeds = seeds[1:]
	}
	if len(seeds) > 0 && seeds[len(seeds)-1].right != math.MaxInt64 {
		last := seeds[len(seeds)-1]
		seeds = append(seeds, vnodeSeed{recentLeft, math.MaxInt64, last.address, last.datacenter, last.msb, last.shardCount})
	}

	rf := func(dc string) int {
		if n, ok := replication[dc]; ok && n > 0 {
			return n
		}
		if defaultRF > 0 {
			return defaultRF
		}
		return 1
	}

	vnodes := make([]vnode, len(seeds))
	for i, s := range seeds {
		replicas := make(map[string][]Replica)
		walkClockwise(i, len(seeds), seeds, replicas, rf)
		walkClockwise(0, i, seeds, replicas, rf)
		vnodes[i] = vnode{left: s.left, right: s.right, replicas: replicas}
	}
	return &Ring{vnodes: vnodes, LocalDatacenter: localDatacenter}
}

// walkClockwise collects distinct nodes per datacenter starting at seeds[start]
// up to (not including) seeds[end], stopping early for a datacenter once its
// replica list reaches rf(dc) members — callers chain a [i,len) pass with a
// [0,i) pass to wrap around the ring's end.
func walkClockwise(start, end int, seeds []vnodeSeed, replicas map[string][]Replica, rf func(string) int) {
	for i := start; i < end; i++ {
		s := seeds[i]
		list := replicas[s.datacenter]
		if len(list) >= rf(s.datacenter) {
			continue
		}
		r := Replica{Address: s.address, MSB: s.msb, ShardCount: s.shardCount}
		found := false
		for _, existing := range list {
			if existing.Address == r.Address {
				found = true
				break
			}
		}
		if !found {
			replicas[s.datacenter] = append(list, r)
		}
	}
}

// search returns the vnode owning token via binary search over the
// sorted, half-open (left,right] intervals: a token equal to a vnode's
// right edge belongs to that vnode, not the next one.
func (r *Ring) search(token int64) (vnode, bool) {
	if len(r.vnodes) == 0 {
		return vnode{}, false
	}
	idx := sort.Search(len(r.vnodes), func(i int) bool { return r.vnodes[i].right >= token })
	if idx >= len(r.vnodes) {
		idx = len(r.vnodes) - 1
	}
	return r.vnodes[idx], true
}

// ReplicasFor returns the ordered replica list for token in datacenter dc.
func (r *Ring) ReplicasFor(token int64, dc string) []Replica {
	vn, ok := r.search(token)
	if !ok {
		return nil
	}
	return vn.replicas[dc]
}

// ReplicasForAnyDatacenter returns the replica list of the first
// datacenter the vnode has entries for, preferring dc if present,
// otherwise any other datacenter — used by SendGlobal when the caller
// does not pin a datacenter.
func (r *Ring) ReplicasForAnyDatacenter(token int64, preferredDC string) []Replica {
	vn, ok := r.search(token)
	if !ok {
		return nil
	}
	if list, ok := vn.replicas[preferredDC]; ok && len(list) > 0 {
		return list
	}
	for _, list := range vn.replicas {
		if len(list) > 0 {
			return list
		}
	}
	return nil
}
