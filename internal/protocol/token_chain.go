package protocol

import "github.com/iotaledger/scyllago/internal/murmur3"

// EncodeColumnForToken wraps a column's raw value bytes the way a bound
// value is wrapped on the wire (a 4-byte big-endian length followed by the
// bytes) and then drops the top two bytes of that length. For any
// reasonably-sized column (length < 2^16, true of every partition-key
// component in practice) those top two bytes are always zero, so what
// remains is indistinguishable from a 2-byte length prefix followed by the
// value. This intermediate shape — not the wire encoding, not the bare
// value — is deliberately preserved because TokenEncodeChain.Finish strips
// it differently for a single-column key than for a multi-column key; see
// the chain's doc comment.
func EncodeColumnForToken(value []byte) []byte {
	wrapped := WriteBytes(make([]byte, 0, 4+len(value)), value)
	return wrapped[2:]
}

// TokenEncodeChain accumulates per-column token input, joining successive
// columns with a single 0x00 separator, and produces the partition token
// via Finish. The single-column and multi-column paths are NOT symmetric:
// a single-column chain additionally drops the chain buffer's own leading
// two bytes before hashing (net effect: the value's full 4-byte length
// prefix disappears), while a multi-column chain hashes its buffer as-is
// (net effect: each column keeps a trailing 2-byte length remnant ahead of
// its value, separated from its neighbors by 0x00). This is deliberate
// Cassandra/Scylla wire compatibility, not a simplification opportunity —
// replicate exactly. The Murmur3 Cassandra test vectors hash bare value
// bytes, which is what the single-column path hashes; the multi-column
// path has no test vector.
type TokenEncodeChain struct {
	buffer []byte
	count  int
}

// Append adds one column's token bytes (as produced by EncodeColumnForToken)
// to the chain.
func (c *TokenEncodeChain) Append(columnTokenBytes []byte) {
	if c.count == 0 {
		c.buffer = append(c.buffer[:0:0], columnTokenBytes...)
	} else {
		c.buffer = append(c.buffer, 0x00)
		c.buffer = append(c.buffer, columnTokenBytes...)
	}
	c.count++
}

// Finish computes the partition token for the accumulated columns.
func (c *TokenEncodeChain) Finish() int64 {
	switch c.count {
	case 0:
		// No partition-key columns were supplied; there is no meaningful
		// token. Callers should treat this as a routing error rather than
		// rely on the value.
		return 0
	case 1:
		if len(c.buffer) < 2 {
			return murmur3.Token(c.buffer)
		}
		return murmur3.Token(c.buffer[2:])
	default:
		return murmur3.Token(c.buffer)
	}
}

// Token is a convenience wrapper for the common case of a single bound
// column, mirroring TokenEncoder::token in the reference driver.
func Token(columnValue []byte) int64 {
	var chain TokenEncodeChain
	chain.Append(EncodeColumnForToken(columnValue))
	return chain.Finish()
}
