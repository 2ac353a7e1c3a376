// File: internal/cluster/cluster.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Cluster is the top-level supervisor: it tracks known nodes, rebuilds
// the Ring on topology change, and exposes the two routing entry points
// (SendLocal/SendGlobal) that pick a replica for a
// token and dispatch through the Registry. Topology change notifications
// (node joined/left) are buffered on an eapache/queue FIFO and drained by
// a single goroutine, mirroring the teacher's EventLoop/Executor split
// between an MPMC queue and a dedicated consumer.

package cluster

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/iotaledger/scyllago/internal/cqlerr"
	"github.com/iotaledger/scyllago/internal/logging"
	"github.com/iotaledger/scyllago/internal/protocol"
)

var log = logging.New("cluster")

// topologyEvent is one node join/leave notification queued for the
// cluster's event-drain goroutine.
type topologyEvent struct {
	joined bool
	node   NodeInfo
}

// Cluster owns the live Ring snapshot and the registry of connected
// stages, and serializes topology rebuilds through an event queue.
type Cluster struct {
	ring atomic.Pointer[Ring]

	Registry *Registry

	localDC string

	mu          sync.Mutex
	nodes       map[string]NodeInfo
	replication map[string]int
	defaultRF   int

	events    *queue.Queue
	eventsMu  sync.Mutex
	eventSem  chan struct{}
	stop      chan struct{}
}

// NewCluster starts an empty cluster for localDatacenter; nodes are added
// via AddNode once their topology (tokens, shard count) is known, then
// BuildRing commits a new Ring snapshot.
func NewCluster(localDatacenter string) *Cluster {
	c := &Cluster{
		Registry:    NewRegistry(),
		localDC:     localDatacenter,
		nodes:       make(map[string]NodeInfo),
		replication: make(map[string]int),
		defaultRF:   1,
		events:      queue.New(),
		eventSem:    make(chan struct{}, 4096),
		stop:        make(chan struct{}),
	}
	c.ring.Store(&Ring{LocalDatacenter: localDatacenter})
	go c.drainEvents()
	return c
}

// AddNode registers node's topology and queues a join event; the caller
// must call BuildRing afterward to install a Ring reflecting the new
// node (queuing and ring-rebuild are decoupled so multiple AddNode calls
// during bootstrap cost one rebuild, not one per node).
func (c *Cluster) AddNode(node NodeInfo) {
	c.mu.Lock()
	c.nodes[node.Address] = node
	c.mu.Unlock()
	c.enqueue(topologyEvent{joined: true, node: node})
}

// RemoveNode drops a node's topology entry, its registry stages, and
// queues a leave event.
func (c *Cluster) RemoveNode(address string) {
	c.mu.Lock()
	node, ok := c.nodes[address]
	delete(c.nodes, address)
	c.mu.Unlock()
	c.Registry.Remove(address)
	if ok {
		c.enqueue(topologyEvent{joined: false, node: node})
	}
}

func (c *Cluster) enqueue(ev topologyEvent) {
	c.eventsMu.Lock()
	c.events.Add(ev)
	c.eventsMu.Unlock()
	select {
	case c.eventSem <- struct{}{}:
	default:
		log.Warnf("cluster: topology event queue backlogged, dropping capacity token")
	}
}

// drainEvents logs topology events as they're processed; the actual Ring
// rebuild is explicit (BuildRing) so bootstrap can batch many AddNode
// calls into one rebuild rather than one per event.
func (c *Cluster) drainEvents() {
	for {
		select {
		case <-c.stop:
			return
		case <-c.eventSem:
			c.eventsMu.Lock()
			var ev topologyEvent
			if c.events.Length() > 0 {
				ev = c.events.Peek().(topologyEvent)
				c.events.Remove()
			}
			c.eventsMu.Unlock()
			if ev.joined {
				log.Infof("cluster: node joined %s (dc=%s)", ev.node.Address, ev.node.Datacenter)
			} else if ev.node.Address != "" {
				log.Infof("cluster: node left %s", ev.node.Address)
			}
		}
	}
}

// BuildRing recomputes the Ring from the currently registered nodes and
// installs it atomically; in-flight routing calls keep using the prior
// Ring until they next call Load. perDCReplication overrides defaultRF
// for the datacenters it names; every other datacenter uses defaultRF.
func (c *Cluster) BuildRing(perDCReplication map[string]int, defaultRF int) {
	c.mu.Lock()
	nodes := make([]NodeInfo, 0, len(c.nodes))
	for _, n := range c.nodes {
		nodes = append(nodes, n)
	}
	if perDCReplication != nil {
		c.replication = perDCReplication
	}
	if defaultRF > 0 {
		c.defaultRF = defaultRF
	}
	replication, rf := c.replication, c.defaultRF
	c.mu.Unlock()
	c.ring.Store(BuildRing(c.localDC, nodes, replication, rf))
}

// Close stops the event-drain goroutine.
func (c *Cluster) Close() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

// routeParams bundles together what both routing entry points need: the token to route on, an optional replica-index
// override (a keyspace's replication factor selects how many replicas
// are eligible), and the request body to send.
type routeParams struct {
	token       int64
	opcode      protocol.Opcode
	body        []byte
	timeout     time.Duration
	replicaIdx  int
	useReplicaIdx bool
}

func (c *Cluster) pickReplica(replicas []Replica, p routeParams) (Replica, error) {
	if len(replicas) == 0 {
		return Replica{}, cqlerr.NewDriverError(cqlerr.CodeUnavailable, "no replica for token", cqlerr.ErrNoReplicaAvailable)
	}
	idx := 0
	if p.useReplicaIdx && p.replicaIdx < len(replicas) {
		idx = p.replicaIdx
	} else {
		idx = rand.Intn(len(replicas))
	}
	return replicas[idx], nil
}

func (c *Cluster) dispatch(ctx context.Context, replica Replica, p routeParams) (protocol.Frame, error) {
	shard := replica.ShardForToken(p.token)
	stage := c.Registry.Get(replica.Address, shard)
	if stage == nil {
		return protocol.Frame{}, cqlerr.NewDriverError(cqlerr.CodeUnavailable,
			fmt.Sprintf("no connected stage for %s shard %d", replica.Address, shard), cqlerr.ErrNotConnected)
	}
	return stage.Send(ctx, uint32(shard), p.opcode, p.body, p.timeout)
}

// SendLocal routes to a replica in the cluster's local datacenter.
func (c *Cluster) SendLocal(ctx context.Context, p routeParams) (protocol.Frame, error) {
	ring := c.ring.Load()
	replicas := ring.ReplicasFor(p.token, ring.LocalDatacenter)
	replica, err := c.pickReplica(replicas, p)
	if err != nil {
		return protocol.Frame{}, err
	}
	return c.dispatch(ctx, replica, p)
}

// SendGlobal routes to a replica in any datacenter, preferring local.
func (c *Cluster) SendGlobal(ctx context.Context, p routeParams) (protocol.Frame, error) {
	ring := c.ring.Load()
	replicas := ring.ReplicasForAnyDatacenter(p.token, ring.LocalDatacenter)
	replica, err := c.pickReplica(replicas, p)
	if err != nil {
		return protocol.Frame{}, err
	}
	return c.dispatch(ctx, replica, p)
}

// RouteParams exposes routeParams fields to the cql package's request
// builders without making every field public on the internal type name.
type RouteParams = routeParams

// NewRouteParams builds a RouteParams for a token-routed request.
func NewRouteParams(token int64, opcode protocol.Opcode, body []byte, timeout time.Duration) RouteParams {
	return routeParams{token: token, opcode: opcode, body: body, timeout: timeout}
}

// WithReplicaIndex pins the replica selection to idx (used when a
// keyspace's replication factor is known and the caller wants a specific
// replica rather than a random one).
func WithReplicaIndex(p RouteParams, idx int) RouteParams {
	p.useReplicaIdx = true
	p.replicaIdx = idx
	return p
}

// Opcode reports the request opcode a RouteParams carries, for callers
// (notably tests) that need to inspect what a router was asked to send.
func (p RouteParams) Opcode() protocol.Opcode { return p.opcode }
