// File: internal/cqltest/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package cqltest

import (
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/iotaledger/scyllago/internal/protocol"
)

// Handler answers one request frame with a response opcode and body. It
// is called once per non-handshake frame the fake server receives, except
// system.local queries, which the server answers itself; it runs on
// whichever goroutine is servicing that connection.
type Handler func(opcode protocol.Opcode, body []byte) (protocol.Opcode, []byte)

// Server is a single-node fake CQL server: it performs the OPTIONS/
// STARTUP/READY handshake advertising a fixed shard topology, then answers
// system.local queries itself and hands every other frame to a Handler,
// echoing back the client's stream id on the reply. Modeled on the
// teacher's fake net.Conn harness: a small, single-purpose stand-in, not
// a protocol emulator.
type Server struct {
	ln net.Listener

	NumShards      uint16
	IgnoreMSB      uint8
	ShardAwarePort uint16

	handler Handler

	mu      sync.Mutex
	conns   []net.Conn
	nextID  uint16 // shard id handed to the next accepted connection, mod NumShards
	datacenter string
	tokens     []int64
}

// NewServer starts listening on 127.0.0.1:0 and returns a Server that
// will answer SUPPORTED with numShards shards (round-robining ShardID
// across accepted connections) and dispatch everything else to handler.
// A nil handler answers every post-handshake request with an empty
// ResultVoid, which is enough to exercise dial/handshake-only tests.
func NewServer(numShards uint16, handler Handler) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	if numShards == 0 {
		numShards = 1
	}
	if handler == nil {
		handler = func(protocol.Opcode, []byte) (protocol.Opcode, []byte) {
			return protocol.OpResult, protocol.WriteInt(nil, int32(protocol.ResultVoid))
		}
	}
	return &Server{ln: ln, NumShards: numShards, handler: handler}, nil
}

// Addr returns the listener's address, suitable as a driver seed node.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// SetLocalTopology configures the row queryLocalTopology-style bootstrap
// queries against system.local will observe.
func (s *Server) SetLocalTopology(datacenter string, tokens []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datacenter = datacenter
	s.tokens = tokens
}

// Serve accepts connections until the listener is closed. Call it in a
// goroutine; Close unblocks it.
func (s *Server) Serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.serveConn(conn)
	}
}

// Close stops accepting and closes every connection accepted so far.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
	return err
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	s.mu.Lock()
	shardID := s.nextID % s.NumShards
	s.nextID++
	s.mu.Unlock()

	if err := s.handshake(conn, shardID); err != nil {
		return
	}
	for {
		hdr, body, err := readFrame(conn)
		if err != nil {
			return
		}
		if hdr.Opcode == protocol.OpQuery {
			if resp, handled := s.maybeSystemLocal(body); handled {
				writeFrame(conn, hdr.StreamID, protocol.OpResult, resp)
				continue
			}
		}
		respOp, respBody := s.handler(hdr.Opcode, body)
		writeFrame(conn, hdr.StreamID, respOp, respBody)
	}
}

func (s *Server) handshake(conn net.Conn, shardID uint16) error {
	optHdr, _, err := readFrame(conn)
	if err != nil {
		return err
	}
	supported := map[string][]string{
		"CQL_VERSION":      {"3.0.0"},
		"SCYLLA_SHARD":     {strconv.Itoa(int(shardID))},
		"SCYLLA_NR_SHARDS": {strconv.Itoa(int(s.NumShards))},
	}
	if s.IgnoreMSB != 0 {
		supported["SCYLLA_SHARDING_IGNORE_MSB"] = []string{strconv.Itoa(int(s.IgnoreMSB))}
	}
	if s.ShardAwarePort != 0 {
		supported["SCYLLA_SHARD_AWARE_PORT"] = []string{strconv.Itoa(int(s.ShardAwarePort))}
	}
	if err := writeFrame(conn, optHdr.StreamID, protocol.OpSupported, encodeMultimap(supported)); err != nil {
		return err
	}

	startupHdr, _, err := readFrame(conn)
	if err != nil {
		return err
	}
	return writeFrame(conn, startupHdr.StreamID, protocol.OpReady, nil)
}

// maybeSystemLocal answers the driver's bootstrap
// "SELECT data_center, tokens FROM system.local" query with one row built
// from SetLocalTopology, so Client.AddNode can be exercised end to end.
func (s *Server) maybeSystemLocal(body []byte) ([]byte, bool) {
	statement, _, err := protocol.ReadLongString(body)
	if err != nil || !isSystemLocalQuery(statement) {
		return nil, false
	}
	s.mu.Lock()
	dc, tokens := s.datacenter, s.tokens
	s.mu.Unlock()

	tokenStrs := make([][]byte, len(tokens))
	for i, t := range tokens {
		tokenStrs[i] = []byte(strconv.FormatInt(t, 10))
	}
	tokenCol, _ := protocol.EncodeList(tokenStrs)

	buf := protocol.WriteInt(nil, int32(protocol.ResultRows))
	const globalTableSpec = 0x0001
	buf = protocol.WriteInt(buf, int32(globalTableSpec))
	buf = protocol.WriteInt(buf, 2) // column count
	buf = protocol.WriteShortString(buf, "system")
	buf = protocol.WriteShortString(buf, "local")
	buf = protocol.WriteShortString(buf, "data_center")
	buf = protocol.WriteShort(buf, 0x000D) // varchar
	buf = protocol.WriteShortString(buf, "tokens")
	buf = protocol.WriteShort(buf, 0x0022) // set
	buf = protocol.WriteInt(buf, 1)        // row count
	buf = protocol.WriteBytes(buf, []byte(dc))
	buf = protocol.WriteBytes(buf, tokenCol)
	return buf, true
}

func isSystemLocalQuery(statement string) bool {
	for i := 0; i+len("system.local") <= len(statement); i++ {
		if statement[i:i+len("system.local")] == "system.local" {
			return true
		}
	}
	return false
}

func encodeMultimap(m map[string][]string) []byte {
	buf := protocol.WriteShort(nil, uint16(len(m)))
	for k, vals := range m {
		buf = protocol.WriteShortString(buf, k)
		buf = protocol.WriteShort(buf, uint16(len(vals)))
		for _, v := range vals {
			buf = protocol.WriteShortString(buf, v)
		}
	}
	return buf
}

func readFrame(conn net.Conn) (protocol.Header, []byte, error) {
	raw := make([]byte, protocol.HeaderLen)
	if _, err := io.ReadFull(conn, raw); err != nil {
		return protocol.Header{}, nil, err
	}
	hdr, err := protocol.DecodeHeader(raw)
	if err != nil {
		return protocol.Header{}, nil, err
	}
	var body []byte
	if hdr.BodyLen > 0 {
		body = make([]byte, hdr.BodyLen)
		if _, err := io.ReadFull(conn, body); err != nil {
			return hdr, nil, err
		}
	}
	return hdr, body, nil
}

func writeFrame(conn net.Conn, streamID int16, opcode protocol.Opcode, body []byte) error {
	h := protocol.Header{Version: protocol.ResponseVersion, StreamID: streamID, Opcode: opcode, BodyLen: uint32(len(body))}
	buf := protocol.EncodeHeader(h)
	buf = append(buf, body...)
	_, err := conn.Write(buf)
	return err
}
