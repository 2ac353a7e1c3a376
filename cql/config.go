// File: cql/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package cql

import (
	"time"

	"github.com/iotaledger/scyllago/internal/protocol"
)

// AuthMode selects how Connect authenticates a new connection.
type AuthMode int

const (
	AuthAllowAll AuthMode = iota
	AuthPassword
)

// Authenticator configures AUTH_RESPONSE behavior for the handshake.
type Authenticator struct {
	Mode     AuthMode
	Username string
	Password string
}

// AllowAll returns the "allow all" authenticator, the default.
func AllowAll() Authenticator { return Authenticator{Mode: AuthAllowAll} }

// PasswordAuth returns a PasswordAuthenticator-compatible authenticator.
func PasswordAuth(user, pass string) Authenticator {
	return Authenticator{Mode: AuthPassword, Username: user, Password: pass}
}

// KeyspaceReplication names a keyspace's per-datacenter replication
// factor, mirroring the language-neutral config's
// `keyspaces: [{name, per_dc_replication}]`.
type KeyspaceReplication struct {
	Name             string
	PerDCReplication map[string]int
}

// Config is the caller-facing connection configuration, corresponding to
// spec.md §6's `connect(config)` parameter.
type Config struct {
	LocalDatacenter string
	InitialNodes    []string
	Keyspaces       []KeyspaceReplication
	ReporterCount   int
	SendBuffer      int
	RecvBuffer      int
	Authenticator   Authenticator
	Compression     protocol.Compression // nil means Uncompressed

	ConnectTimeout    time.Duration
	ReadTimeout       time.Duration
	ShardAwarePort    uint16 // 0 disables shard-aware port targeting; falls back to default-port trial-and-hold
	ShardDialAttempts int    // max attempts per shard for either dial strategy
	ReconnectMax      int
	ReconnectInterval time.Duration
}

// DefaultConfig mirrors config.DefaultClusterConfig's conservative
// defaults, adapted to the public Config shape.
func DefaultConfig() Config {
	return Config{
		ReporterCount:     1,
		Authenticator:     AllowAll(),
		ConnectTimeout:    5 * time.Second,
		ReadTimeout:       10 * time.Second,
		ShardAwarePort:    19042,
		ShardDialAttempts: 8,
		ReconnectMax:      5,
		ReconnectInterval: time.Second,
	}
}
