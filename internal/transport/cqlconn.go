// File: internal/transport/cqlconn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A single CQL binary-protocol connection: framed request/response I/O
// over a net.Conn, plus the OPTIONS/STARTUP/AUTHENTICATE handshake and
// shard-aware port discovery, serving the driver's one-socket-per-
// shard-connection model.

package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/iotaledger/scyllago/internal/protocol"
)

// ShardInfo is the SUPPORTED-response metadata a shard-aware server
// advertises: which shard this particular socket landed on, the node's
// total shard count, and the partitioner's most-significant-bit count
// used to derive a token's shard.
type ShardInfo struct {
	ShardID          uint16
	NumShards        uint16
	IgnoreMSB        uint8
	ShardAwarePort   uint16
	ShardAwarePortSSL uint16
}

// CqlConn wraps a net.Conn with CQL v4 frame read/write; stream-id
// bookkeeping lives in the stage package's Reporter. It does not serialize
// concurrent writes or reads itself: in the driver, writes go through a
// Reporter under its write lock and reads happen only in the Stage's
// receive loop.
type CqlConn struct {
	conn        net.Conn
	Compression protocol.Compression
	Shard       ShardInfo
}

// DialOptions configures Dial's handshake behavior.
type DialOptions struct {
	ConnectTimeout time.Duration
	Username       string // empty disables PasswordAuthenticator response
	Password       string
	Compression    protocol.Compression // nil means Uncompressed
	RecvBufferSize int
	SendBufferSize int
}

// Dial opens a TCP connection to addr, applies socket buffer tuning, and
// runs the OPTIONS -> STARTUP -> (AUTHENTICATE ->)* READY handshake,
// returning a connection ready to carry QUERY/EXECUTE/BATCH traffic.
func Dial(ctx context.Context, addr string, opts DialOptions) (*CqlConn, error) {
	dialer := net.Dialer{Timeout: opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	tuneSocketBuffers(conn, opts.RecvBufferSize, opts.SendBufferSize)

	comp := opts.Compression
	if comp == nil {
		comp = protocol.Uncompressed{}
	}
	c := &CqlConn{conn: conn, Compression: comp}
	if err := c.handshake(ctx, opts); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// handshake negotiates protocol options and authenticates. OPTIONS and
// STARTUP are always sent uncompressed, per §4.1 of the wire format.
func (c *CqlConn) handshake(ctx context.Context, opts DialOptions) error {
	if err := c.writeFrame(0, protocol.OpOptions, protocol.EncodeOptions(), protocol.Uncompressed{}); err != nil {
		return fmt.Errorf("transport: OPTIONS: %w", err)
	}
	supportedFrame, err := c.readFrame(protocol.Uncompressed{})
	if err != nil {
		return fmt.Errorf("transport: awaiting SUPPORTED: %w", err)
	}
	supported, err := protocol.DecodeResponseBody(supportedFrame.Header.Opcode, supportedFrame.Body)
	if err != nil {
		return fmt.Errorf("transport: decoding SUPPORTED: %w", err)
	}
	c.Shard = parseShardInfo(supported.Supported)

	startupOpts := map[string]string{"CQL_VERSION": "3.0.0"}
	if name := c.Compression.Name(); name != "" {
		startupOpts["COMPRESSION"] = name
	}
	if err := c.writeFrame(0, protocol.OpStartup, protocol.EncodeStartup(startupOpts), protocol.Uncompressed{}); err != nil {
		return fmt.Errorf("transport: STARTUP: %w", err)
	}
	readyFrame, err := c.readFrame(protocol.Uncompressed{})
	if err != nil {
		return fmt.Errorf("transport: awaiting READY: %w", err)
	}
	switch readyFrame.Header.Opcode {
	case protocol.OpReady:
		return nil
	case protocol.OpAuthenticate:
		return c.authenticate(opts)
	case protocol.OpError:
		body, err := protocol.DecodeResponseBody(protocol.OpError, readyFrame.Body)
		if err != nil {
			return err
		}
		return body.Error
	default:
		return fmt.Errorf("transport: unexpected opcode %v after STARTUP", readyFrame.Header.Opcode)
	}
}

func (c *CqlConn) authenticate(opts DialOptions) error {
	var token []byte
	if opts.Username != "" {
		token = protocol.PasswordAuthToken(opts.Username, opts.Password)
	} else {
		token = protocol.AllowAllAuthToken()
	}
	if err := c.writeFrame(0, protocol.OpAuthResponse, protocol.EncodeAuthResponse(token), protocol.Uncompressed{}); err != nil {
		return fmt.Errorf("transport: AUTH_RESPONSE: %w", err)
	}
	frame, err := c.readFrame(protocol.Uncompressed{})
	if err != nil {
		return fmt.Errorf("transport: awaiting auth result: %w", err)
	}
	switch frame.Header.Opcode {
	case protocol.OpAuthSuccess:
		return nil
	case protocol.OpError:
		body, err := protocol.DecodeResponseBody(protocol.OpError, frame.Body)
		if err != nil {
			return err
		}
		return body.Error
	default:
		return fmt.Errorf("transport: unexpected opcode %v during auth", frame.Header.Opcode)
	}
}

// parseShardInfo reads the scylla-shard-aware SUPPORTED keys; absence of
// "SCYLLA_SHARD" means the peer is not shard-aware and ShardInfo is zero.
func parseShardInfo(supported map[string][]string) ShardInfo {
	var info ShardInfo
	get := func(key string) string {
		if v, ok := supported[key]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}
	var tmp uint64
	if v := get("SCYLLA_SHARD"); v != "" {
		fmt.Sscanf(v, "%d", &tmp)
		info.ShardID = uint16(tmp)
	}
	if v := get("SCYLLA_NR_SHARDS"); v != "" {
		fmt.Sscanf(v, "%d", &tmp)
		info.NumShards = uint16(tmp)
	}
	if v := get("SCYLLA_PARTITIONER"); v != "" {
		_ = v // murmur3 partitioner assumed; non-murmur3 peers are out of scope.
	}
	if v := get("SCYLLA_SHARDING_IGNORE_MSB"); v != "" {
		fmt.Sscanf(v, "%d", &tmp)
		info.IgnoreMSB = uint8(tmp)
	}
	if v := get("SCYLLA_SHARD_AWARE_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &tmp)
		info.ShardAwarePort = uint16(tmp)
	}
	if v := get("SCYLLA_SHARD_AWARE_PORT_SSL"); v != "" {
		fmt.Sscanf(v, "%d", &tmp)
		info.ShardAwarePortSSL = uint16(tmp)
	}
	return info
}

// writeFrame encodes and writes a single request frame with streamID 0,
// used only during the unmultiplexed handshake phase.
func (c *CqlConn) writeFrame(streamID int16, opcode protocol.Opcode, body []byte, comp protocol.Compression) error {
	frame, err := protocol.EncodeRequestFrame(streamID, opcode, body, comp, false)
	if err != nil {
		return err
	}
	_, err = c.conn.Write(frame)
	return err
}

// readFrame blocks for exactly one frame: the fixed 9-byte header, then
// BodyLen body bytes.
func (c *CqlConn) readFrame(comp protocol.Compression) (protocol.Frame, error) {
	header := make([]byte, protocol.HeaderLen)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		return protocol.Frame{}, err
	}
	bodyLen := binary.BigEndian.Uint32(header[5:9])
	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(c.conn, body); err != nil {
			return protocol.Frame{}, err
		}
	}
	return protocol.DecodeResponseFrame(header, body, comp)
}

// WriteFrame stamps streamID into a pre-encoded frame (as produced by a
// reporter for reuse across retries) and writes it to the wire.
func (c *CqlConn) WriteFrame(streamID int16, encoded []byte) error {
	protocol.SetStreamID(encoded, streamID)
	_, err := c.conn.Write(encoded)
	return err
}

// ReadFrame reads the next frame off the wire, decompressing per the
// connection's negotiated Compression.
func (c *CqlConn) ReadFrame() (protocol.Frame, error) {
	return c.readFrame(c.Compression)
}

// EncodeFrame is a convenience wrapper so callers building requests don't
// need to thread the connection's negotiated compression through by hand.
func (c *CqlConn) EncodeFrame(streamID int16, opcode protocol.Opcode, body []byte, tracing bool) ([]byte, error) {
	return protocol.EncodeRequestFrame(streamID, opcode, body, c.Compression, tracing)
}

// Close closes the underlying socket.
func (c *CqlConn) Close() error { return c.conn.Close() }

// RemoteAddr returns the peer address, used by the registry to key
// reporters by node.
func (c *CqlConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// ShardAwareDial targets a specific shard directly using Scylla's
// documented shard-aware port convention: connecting from an ephemeral
// local port whose value modulo NumShards equals the desired shard
// routes the new connection to that shard without a post-connect shard
// negotiation dance. Each attempt probes the ephemeral range for a free
// local port of the right residue; it tries again, up to maxAttempts
// times, when no port is found, the dial fails, or the handshake reports
// a different shard.
func ShardAwareDial(ctx context.Context, addr string, shardAwarePort uint16, shard, numShards uint16, opts DialOptions, maxAttempts int) (*CqlConn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid address %q: %w", addr, err)
	}
	target := net.JoinHostPort(host, fmt.Sprintf("%d", shardAwarePort))

	for attempt := 0; attempt < maxAttempts; attempt++ {
		localPort, err := freeEphemeralPortForShard(shard, numShards)
		if err != nil {
			continue
		}
		dialer := net.Dialer{
			Timeout:   opts.ConnectTimeout,
			LocalAddr: &net.TCPAddr{Port: localPort},
		}
		conn, err := dialer.DialContext(ctx, "tcp", target)
		if err != nil {
			continue
		}
		tuneSocketBuffers(conn, opts.RecvBufferSize, opts.SendBufferSize)
		comp := opts.Compression
		if comp == nil {
			comp = protocol.Uncompressed{}
		}
		c := &CqlConn{conn: conn, Compression: comp}
		if err := c.handshake(ctx, opts); err != nil {
			conn.Close()
			return nil, err
		}
		if c.Shard.ShardID == shard {
			return c, nil
		}
		c.Close()
	}
	return nil, fmt.Errorf("transport: could not land connection on shard %d after %d attempts", shard, maxAttempts)
}

// DefaultPortDial targets a specific shard on a server that does not (or
// the caller chooses not to) use the shard-aware port: the server assigns
// shards to incoming connections non-deterministically, so the driver
// opens up to maxAttempts connections and holds each open until one
// reports the desired shard, then closes the rest. Fails fast with
// ErrShardOutOfRange-style behavior left to the caller (shard >= numShards
// is rejected by the caller before this is invoked).
func DefaultPortDial(ctx context.Context, addr string, shard, numShards uint16, opts DialOptions, maxAttempts int) (*CqlConn, error) {
	held := make([]*CqlConn, 0, maxAttempts)
	defer func() {
		for _, c := range held {
			c.Close()
		}
	}()
	for attempt := 0; attempt < maxAttempts; attempt++ {
		conn, err := Dial(ctx, addr, opts)
		if err != nil {
			return nil, err
		}
		if conn.Shard.ShardID == shard {
			return conn, nil
		}
		if conn.Shard.NumShards != 0 && numShards != 0 && conn.Shard.NumShards != numShards {
			conn.Close()
			return nil, fmt.Errorf("transport: node shard_count changed mid-discovery (%d != %d)", conn.Shard.NumShards, numShards)
		}
		held = append(held, conn)
	}
	return nil, fmt.Errorf("transport: could not land connection on shard %d after %d held attempts", shard, maxAttempts)
}

// freeEphemeralPortForShard finds an available local port p such that
// p % numShards == shard, within the standard ephemeral range, by probing
// candidates and letting the OS confirm availability via a throwaway
// listen/close.
func freeEphemeralPortForShard(shard, numShards uint16) (int, error) {
	if numShards == 0 {
		return 0, fmt.Errorf("transport: numShards must be > 0")
	}
	const lo, hi = 49152, 65535
	for p := lo; p <= hi; p++ {
		if uint16(p)%numShards != shard {
			continue
		}
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", p))
		if err != nil {
			continue
		}
		l.Close()
		return p, nil
	}
	return 0, fmt.Errorf("transport: no free ephemeral port maps to shard %d", shard)
}
