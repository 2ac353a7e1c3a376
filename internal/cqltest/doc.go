// Package cqltest is a fake CQL server for exercising the driver without
// a live Cassandra/Scylla cluster, modeled on the teacher's fake package:
// predictable, controllable behavior for the handshake and whatever
// request opcodes a test cares about, nothing more.
package cqltest
