// Package protocol implements the CQL binary protocol v4 wire format: the
// fixed 9-byte frame header, the tagged request and response body variants,
// the primitive and column value codec, and the pluggable body-compression
// contract. It is the lowest layer of the driver — it knows nothing about
// connections, shards, or routing.
package protocol
