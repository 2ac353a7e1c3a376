// File: internal/transport/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package transport dials and frames a single CQL binary-protocol
// connection: the OPTIONS/STARTUP/(AUTHENTICATE)/READY handshake, shard
// discovery from the SUPPORTED response, and the two shard-targeting
// dial strategies (shard-aware port, default-port trial-and-hold).

package transport
