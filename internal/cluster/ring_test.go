package cluster

import (
	"math"
	"testing"
)

func threeNodeRing() *Ring {
	nodes := []NodeInfo{
		{Address: "10.0.0.1:9042", Datacenter: "dc1", Tokens: []int64{-6148914691236517206, 6148914691236517206}, MSB: 12, ShardCount: 8},
		{Address: "10.0.0.2:9042", Datacenter: "dc1", Tokens: []int64{-3074457345618258602, 3074457345618258602}, MSB: 12, ShardCount: 8},
		{Address: "10.0.0.3:9042", Datacenter: "dc2", Tokens: []int64{0, math.MaxInt64 - 1}, MSB: 12, ShardCount: 4},
	}
	return BuildRing("dc1", nodes, nil, 2)
}

func TestRingCoversFullRange(t *testing.T) {
	r := threeNodeRing()
	if len(r.vnodes) == 0 {
		t.Fatal("expected non-empty ring")
	}
	if r.vnodes[0].left != math.MinInt64 {
		t.Fatalf("first vnode left = %d, want MinInt64", r.vnodes[0].left)
	}
	if r.vnodes[len(r.vnodes)-1].right != math.MaxInt64 {
		t.Fatalf("last vnode right = %d, want MaxInt64", r.vnodes[len(r.vnodes)-1].right)
	}
}

func TestRingSearchEveryTokenResolves(t *testing.T) {
	r := threeNodeRing()
	tokens := []int64{math.MinInt64, -1, 0, 1, 12345, math.MaxInt64}
	for _, tok := range tokens {
		vn, ok := r.search(tok)
		if !ok {
			t.Fatalf("token %d: no vnode found", tok)
		}
		// vn.left == MinInt64 is the ring-start sentinel, not a real
		// node token, so it is inclusive on both ends for that one vnode.
		leftOK := tok > vn.left || vn.left == math.MinInt64
		if !leftOK || tok > vn.right {
			t.Fatalf("token %d not within resolved vnode (%d,%d]", tok, vn.left, vn.right)
		}
	}
}

func TestRingSearchBoundaryTokenBelongsToLeftVnode(t *testing.T) {
	// A token exactly on a node's own token is owned by that node's
	// vnode (the right edge of its interval), not the next one.
	r := threeNodeRing()
	vn, ok := r.search(0)
	if !ok {
		t.Fatal("token 0: no vnode found")
	}
	if vn.right != 0 {
		t.Fatalf("token 0 resolved to vnode (%d,%d], want right edge 0", vn.left, vn.right)
	}
}

func TestReplicasForLocalDatacenter(t *testing.T) {
	r := threeNodeRing()
	replicas := r.ReplicasFor(100, "dc1")
	if len(replicas) == 0 {
		t.Fatal("expected at least one dc1 replica")
	}
	for _, rep := range replicas {
		if rep.Address == "10.0.0.3:9042" {
			t.Fatal("dc2 node leaked into dc1 replica list")
		}
	}
}

func TestShardForTokenInRange(t *testing.T) {
	rep := Replica{ShardCount: 8, MSB: 12}
	seen := make(map[uint16]bool)
	for _, tok := range []int64{math.MinInt64, -1, 0, 1, math.MaxInt64, 123456789} {
		shard := rep.ShardForToken(tok)
		if shard >= rep.ShardCount {
			t.Fatalf("token %d produced out-of-range shard %d", tok, shard)
		}
		seen[shard] = true
	}
}
