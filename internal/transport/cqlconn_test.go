package transport

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/iotaledger/scyllago/internal/protocol"
)

// fakeServer accepts one connection, replies SUPPORTED to OPTIONS and
// READY to STARTUP, then closes. It drives Dial's handshake without a
// real Scylla node.
func fakeServer(t *testing.T, ln net.Listener, supportedOpts map[string][]string) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	readReq := func() protocol.Header {
		h := make([]byte, protocol.HeaderLen)
		if _, err := io.ReadFull(conn, h); err != nil {
			t.Fatalf("server read header: %v", err)
		}
		hdr, err := protocol.DecodeHeader(h)
		if err != nil {
			t.Fatalf("server decode header: %v", err)
		}
		if hdr.BodyLen > 0 {
			body := make([]byte, hdr.BodyLen)
			io.ReadFull(conn, body)
		}
		return hdr
	}
	writeResp := func(streamID int16, opcode protocol.Opcode, body []byte) {
		h := protocol.Header{Version: protocol.ResponseVersion, StreamID: streamID, Opcode: opcode, BodyLen: uint32(len(body))}
		buf := protocol.EncodeHeader(h)
		buf = append(buf, body...)
		conn.Write(buf)
	}

	optReq := readReq()
	m, rest, _ := readMultimapBody(supportedOpts)
	_ = rest
	writeResp(optReq.StreamID, protocol.OpSupported, m)

	startupReq := readReq()
	writeResp(startupReq.StreamID, protocol.OpReady, nil)
}

func readMultimapBody(m map[string][]string) ([]byte, []byte, error) {
	buf := protocol.WriteShort(nil, uint16(len(m)))
	for k, vals := range m {
		buf = protocol.WriteShortString(buf, k)
		buf = protocol.WriteShort(buf, uint16(len(vals)))
		for _, v := range vals {
			buf = protocol.WriteShortString(buf, v)
		}
	}
	return buf, nil, nil
}

func TestDialHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	supported := map[string][]string{
		"CQL_VERSION":      {"3.0.0"},
		"SCYLLA_SHARD":     {"3"},
		"SCYLLA_NR_SHARDS": {"8"},
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		fakeServer(t, ln, supported)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := Dial(ctx, ln.Addr().String(), DialOptions{ConnectTimeout: time.Second})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if conn.Shard.ShardID != 3 {
		t.Fatalf("ShardID = %d, want 3", conn.Shard.ShardID)
	}
	if conn.Shard.NumShards != 8 {
		t.Fatalf("NumShards = %d, want 8", conn.Shard.NumShards)
	}
	<-done
}

func TestHeaderBytesOnWire(t *testing.T) {
	frame, err := protocol.EncodeRequestFrame(5, protocol.OpQuery, []byte("x"), protocol.Uncompressed{}, false)
	if err != nil {
		t.Fatal(err)
	}
	if frame[0] != protocol.RequestVersion {
		t.Fatalf("version byte = %x", frame[0])
	}
	gotStream := int16(binary.BigEndian.Uint16(frame[2:4]))
	if gotStream != 5 {
		t.Fatalf("stream = %d, want 5", gotStream)
	}
	if protocol.Opcode(frame[4]) != protocol.OpQuery {
		t.Fatalf("opcode = %x", frame[4])
	}
}
