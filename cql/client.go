// File: cql/client.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Client owns the cluster's topology and connections. Node discovery
// follows the teacher's connect-then-probe pattern: one informational
// connection per seed node reads SCYLLA_SHARD* SUPPORTED options and a
// system.local row, then one connection per shard is dialed and wrapped
// in a Stage before the node is registered with the Ring.

package cql

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/iotaledger/scyllago/internal/cluster"
	"github.com/iotaledger/scyllago/internal/logging"
	"github.com/iotaledger/scyllago/internal/protocol"
	"github.com/iotaledger/scyllago/internal/stage"
	"github.com/iotaledger/scyllago/internal/transport"
)

var log = logging.New("cql")

// Client is the public driver handle returned by Connect.
type Client struct {
	cfg     Config
	cluster *cluster.Cluster

	mu    sync.Mutex
	nodes map[string]nodeTopology // address -> discovered topology, for reconnects
}

type nodeTopology struct {
	numShards      uint16
	ignoreMSB      uint8
	shardAwarePort uint16
}

// Connect bootstraps a Client: it probes every seed node in
// cfg.InitialNodes, dials one connection per shard, and registers each
// node's topology. Callers must call BuildRing before routing requests.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ReporterCount <= 0 {
		cfg.ReporterCount = 1
	}
	if cfg.ShardDialAttempts <= 0 {
		cfg.ShardDialAttempts = 8
	}
	c := &Client{
		cfg:     cfg,
		cluster: cluster.NewCluster(cfg.LocalDatacenter),
		nodes:   make(map[string]nodeTopology),
	}
	for _, addr := range cfg.InitialNodes {
		if err := c.AddNode(ctx, addr); err != nil {
			c.cluster.Close()
			return nil, fmt.Errorf("cql: connect to seed %s: %w", addr, err)
		}
	}
	return c, nil
}

func (c *Client) dialOpts() transport.DialOptions {
	opts := transport.DialOptions{
		ConnectTimeout: c.cfg.ConnectTimeout,
		Compression:    c.cfg.Compression,
		RecvBufferSize: c.cfg.RecvBuffer,
		SendBufferSize: c.cfg.SendBuffer,
	}
	if c.cfg.Authenticator.Mode == AuthPassword {
		opts.Username = c.cfg.Authenticator.Username
		opts.Password = c.cfg.Authenticator.Password
	}
	return opts
}

// AddNode probes addr for its shard topology and local.datacenter/tokens,
// dials one connection per shard, and registers the node's NodeInfo with
// the cluster. The ring is not rebuilt automatically; call BuildRing
// after adding (or removing) nodes.
func (c *Client) AddNode(ctx context.Context, addr string) error {
	info, err := transport.Dial(ctx, addr, c.dialOpts())
	if err != nil {
		return fmt.Errorf("cql: probing %s: %w", addr, err)
	}
	topo := nodeTopology{numShards: info.Shard.NumShards, ignoreMSB: info.Shard.IgnoreMSB, shardAwarePort: info.Shard.ShardAwarePort}
	datacenter, tokens, err := queryLocalTopology(info)
	info.Close()
	if err != nil {
		return fmt.Errorf("cql: reading system.local on %s: %w", addr, err)
	}
	if topo.numShards == 0 {
		topo.numShards = 1 // non-shard-aware peer: treat as a single logical shard
	}

	for shard := uint16(0); shard < topo.numShards; shard++ {
		conn, err := c.dialShard(ctx, addr, shard, topo)
		if err != nil {
			return fmt.Errorf("cql: dialing %s shard %d: %w", addr, shard, err)
		}
		st := stage.NewStage(conn, c.cfg.ReporterCount, func(dialErr error) {
			log.Warnf("cql: stage for %s shard %d disconnected: %v", addr, shard, dialErr)
			c.reconnectShard(addr, shard, topo)
		})
		c.cluster.Registry.Put(addr, shard, st)
	}

	c.mu.Lock()
	c.nodes[addr] = topo
	c.mu.Unlock()

	c.cluster.AddNode(cluster.NodeInfo{
		Address:        addr,
		Datacenter:     datacenter,
		Tokens:         tokens,
		MSB:            topo.ignoreMSB,
		ShardCount:     topo.numShards,
		ShardAwarePort: topo.shardAwarePort,
	})
	return nil
}

func (c *Client) dialShard(ctx context.Context, addr string, shard uint16, topo nodeTopology) (*transport.CqlConn, error) {
	opts := c.dialOpts()
	if c.cfg.ShardAwarePort != 0 && topo.shardAwarePort != 0 {
		return transport.ShardAwareDial(ctx, addr, topo.shardAwarePort, shard, topo.numShards, opts, c.cfg.ShardDialAttempts)
	}
	return transport.DefaultPortDial(ctx, addr, shard, topo.numShards, opts, c.cfg.ShardDialAttempts)
}

// reconnectShard retries dialing one shard's connection after a stage
// teardown, up to cfg.ReconnectMax times, re-registering a fresh Stage on
// success. Mirrors spec.md §4.4: "On any child failure the stage
// restarts itself from scratch."
func (c *Client) reconnectShard(addr string, shard uint16, topo nodeTopology) {
	if c.cfg.ReconnectMax <= 0 {
		return
	}
	for attempt := 1; attempt <= c.cfg.ReconnectMax; attempt++ {
		time.Sleep(c.cfg.ReconnectInterval)
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		conn, err := c.dialShard(ctx, addr, shard, topo)
		cancel()
		if err != nil {
			log.Warnf("cql: reconnect %s shard %d attempt %d/%d failed: %v", addr, shard, attempt, c.cfg.ReconnectMax, err)
			continue
		}
		st := stage.NewStage(conn, c.cfg.ReporterCount, func(dialErr error) {
			log.Warnf("cql: stage for %s shard %d disconnected: %v", addr, shard, dialErr)
			c.reconnectShard(addr, shard, topo)
		})
		c.cluster.Registry.Put(addr, shard, st)
		log.Infof("cql: reconnected %s shard %d after %d attempt(s)", addr, shard, attempt)
		return
	}
	log.Errorf("cql: giving up reconnecting %s shard %d after %d attempts", addr, shard, c.cfg.ReconnectMax)
}

// RemoveNode closes every stage serving addr and drops its topology.
func (c *Client) RemoveNode(addr string) {
	c.mu.Lock()
	delete(c.nodes, addr)
	c.mu.Unlock()
	c.cluster.RemoveNode(addr)
}

// BuildRing recomputes the ring from currently registered nodes. When
// cfg.Keyspaces names a keyspace, its PerDCReplication governs every
// datacenter's replication factor for the whole ring (the driver builds
// one shared ring, not one per keyspace — see DESIGN.md); defaultRF
// covers any datacenter the keyspace list doesn't mention.
func (c *Client) BuildRing(defaultRF int) {
	var perDC map[string]int
	if len(c.cfg.Keyspaces) > 0 {
		perDC = c.cfg.Keyspaces[0].PerDCReplication
	}
	c.cluster.BuildRing(perDC, defaultRF)
}

// Close tears down every node's stages and stops the cluster's topology
// event loop.
func (c *Client) Close() {
	c.mu.Lock()
	addrs := make([]string, 0, len(c.nodes))
	for addr := range c.nodes {
		addrs = append(addrs, addr)
	}
	c.mu.Unlock()
	for _, addr := range addrs {
		c.cluster.RemoveNode(addr)
	}
	c.cluster.Close()
}

// queryLocalTopology issues SELECT data_center, tokens FROM system.local
// directly on conn (stream 0, outside the stage/reporter machinery, since
// this runs once during bootstrap before any Stage exists).
func queryLocalTopology(conn *transport.CqlConn) (datacenter string, tokens []int64, err error) {
	params := protocol.QueryParams{Consistency: protocol.ConsistencyOne}
	body := protocol.EncodeQuery("SELECT data_center, tokens FROM system.local", params)
	encoded, err := conn.EncodeFrame(0, protocol.OpQuery, body, false)
	if err != nil {
		return "", nil, err
	}
	if err := conn.WriteFrame(0, encoded); err != nil {
		return "", nil, err
	}
	frame, err := conn.ReadFrame()
	if err != nil {
		return "", nil, err
	}
	resp, err := protocol.DecodeResponseBody(frame.Header.Opcode, frame.Body)
	if err != nil {
		return "", nil, err
	}
	if resp.Error != nil {
		return "", nil, resp.Error
	}
	if resp.Result == nil || resp.Result.Kind != protocol.ResultRows || len(resp.Result.RowsData) == 0 {
		return "", nil, fmt.Errorf("cql: system.local returned no row")
	}
	row := resp.Result.RowsData[0]
	if len(row) < 2 {
		return "", nil, fmt.Errorf("cql: system.local row missing columns")
	}
	datacenter = string(row[0])
	rawTokens, err := protocol.DecodeList(row[1])
	if err != nil {
		return "", nil, fmt.Errorf("cql: decoding tokens column: %w", err)
	}
	tokens = make([]int64, 0, len(rawTokens))
	for _, raw := range rawTokens {
		t, perr := strconv.ParseInt(string(raw), 10, 64)
		if perr != nil {
			continue
		}
		tokens = append(tokens, t)
	}
	return datacenter, tokens, nil
}
