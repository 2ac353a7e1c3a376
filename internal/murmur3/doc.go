// Package murmur3 implements the Cassandra-variant x64/128-bit Murmur3 hash
// used to compute partition tokens from encoded partition-key column bytes.
package murmur3
