// File: internal/cluster/node.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package cluster

// NodeInfo is the static topology information learned for one peer: its
// address, datacenter, partition-key tokens, and shard-aware parameters.
type NodeInfo struct {
	Address      string
	Datacenter   string
	Tokens       []int64
	MSB          uint8  // SCYLLA_SHARDING_IGNORE_MSB
	ShardCount   uint16 // SCYLLA_NR_SHARDS
	ShardAwarePort uint16
}

// Replica identifies one node as a replica for a given vnode: its
// address plus the shard parameters needed to compute which of its
// shards owns a token without re-querying the node.
type Replica struct {
	Address    string
	MSB        uint8
	ShardCount uint16
}

// ShardForToken computes the shard index owning token on this replica,
// using Scylla's documented formula: the token offset by 2^63 into an
// unsigned 64-bit value, left-shifted past the ignored most-significant
// bits, then right-shifted
// to keep only enough bits to index ShardCount shards.
func (r Replica) ShardForToken(token int64) uint16 {
	if r.ShardCount == 0 {
		return 0
	}
	biased := uint64(token) + (1 << 63)
	shifted := biased << r.MSB
	bits := bitsForCount(r.ShardCount)
	return uint16(shifted>>(64-bits)) % r.ShardCount
}

// bitsForCount returns ceil(log2(n)) for n > 0.
func bitsForCount(n uint16) uint {
	var bits uint
	v := n - 1
	for v > 0 {
		bits++
		v >>= 1
	}
	return bits
}
