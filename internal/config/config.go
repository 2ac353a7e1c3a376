// Package config holds the driver's plain-struct configuration types and
// the small amount of environment-variable parsing the teacher repo does
// for its runtime knobs (LOG_LEVEL, SERVER_NODE), with documented
// fallbacks and no flag/env framework.
package config

import (
	"os"
	"strconv"
	"time"
)

// ClusterConfig configures a Cluster: seed nodes, timeouts, and the
// default consistency/datacenter preferences new requests inherit unless
// overridden per-request.
type ClusterConfig struct {
	Nodes             []string // seed "host:port" addresses
	LocalDatacenter   string
	DefaultConsistency uint16 // protocol.Consistency, kept untyped here to avoid importing protocol
	ConnectTimeout    time.Duration
	ReadTimeout       time.Duration
	ReportersPerNode  int // shard-local reporter fan-out
	ReconnectMax      int
	ReconnectInterval time.Duration
	ShardAwarePort    uint16 // 0 disables shard-aware port targeting
	RecvBufferSize    int    // SO_RCVBUF hint, 0 leaves the OS default
	SendBufferSize    int    // SO_SNDBUF hint, 0 leaves the OS default
}

// DefaultClusterConfig returns the configuration the teacher's
// ClientConfig-style defaults mirror: conservative timeouts, one reporter
// per shard, shard-aware port 19042 (Scylla's documented default).
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{
		DefaultConsistency: 1, // protocol.ConsistencyOne
		ConnectTimeout:      5 * time.Second,
		ReadTimeout:         10 * time.Second,
		ReportersPerNode:    1,
		ReconnectMax:        5,
		ReconnectInterval:   time.Second,
		ShardAwarePort:      19042,
	}
}

// LogLevel mirrors the trace/debug/info/warn/error knob the teacher's
// control package exposes; parsed from LOG_LEVEL with "info" as the
// documented fallback.
type LogLevel int

const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// LogLevelFromEnv reads LOG_LEVEL, defaulting to info on absence or an
// unrecognized value.
func LogLevelFromEnv() LogLevel {
	switch os.Getenv("LOG_LEVEL") {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// ServerNodeFromEnv reads SERVER_NODE, a seed "host:port" address,
// falling back to "127.0.0.1:9042" when it is unset.
func ServerNodeFromEnv() string {
	if v := os.Getenv("SERVER_NODE"); v != "" {
		return v
	}
	return "127.0.0.1:9042"
}

// ShardAwarePortFromEnv reads an optional SHARD_AWARE_PORT override,
// falling back to def when unset or unparsable.
func ShardAwarePortFromEnv(def uint16) uint16 {
	v := os.Getenv("SHARD_AWARE_PORT")
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return def
	}
	return uint16(n)
}
