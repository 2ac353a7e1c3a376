// File: internal/cluster/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Registry maps a (node address, shard) pair to the Stage serving it.
// Rebuilt incrementally whenever a node joins, leaves, or a shard's
// connection is replaced, guarded by a plain RWMutex the way the
// teacher's client package guards its handler slice.

package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iotaledger/scyllago/internal/protocol"
)

// StageHandle is the subset of *stage.Stage the registry needs; defined
// here (rather than importing internal/stage) to avoid a cluster<->stage
// import cycle, since stage has no reason to know about cluster.
type StageHandle interface {
	Send(ctx context.Context, shardHash uint32, opcode protocol.Opcode, body []byte, timeout time.Duration) (protocol.Frame, error)
	ShardID() uint16
	Close() error
}

// Registry holds one entry per (node address, shard index).
type Registry struct {
	mu    sync.RWMutex
	stages map[string]StageHandle
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{stages: make(map[string]StageHandle)}
}

func key(address string, shard uint16) string {
	return fmt.Sprintf("%s#%d", address, shard)
}

// Put registers the stage serving (address, shard), closing and replacing
// any prior entry (e.g. after a reconnect).
func (r *Registry) Put(address string, shard uint16, s StageHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(address, shard)
	if old, ok := r.stages[k]; ok {
		old.Close()
	}
	r.stages[k] = s
}

// Get returns the stage for (address, shard), or nil if none is
// registered (node not yet connected, or shard index out of range).
func (r *Registry) Get(address string, shard uint16) StageHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stages[key(address, shard)]
}

// Remove closes and drops every stage registered for address, called when
// a node leaves.
func (r *Registry) Remove(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, s := range r.stages {
		if len(k) > len(address) && k[:len(address)] == address && k[len(address)] == '#' {
			s.Close()
			delete(r.stages, k)
		}
	}
}

// Len reports the number of registered (node, shard) stages.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stages)
}
