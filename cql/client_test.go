// File: cql/client_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package cql

import (
	"context"
	"testing"
	"time"

	"github.com/iotaledger/scyllago/internal/cqltest"
	"github.com/iotaledger/scyllago/internal/protocol"
)

func testConfig(addr string) Config {
	cfg := DefaultConfig()
	cfg.LocalDatacenter = "dc1"
	cfg.InitialNodes = []string{addr}
	cfg.ShardAwarePort = 0 // single-shard fake server: default-port dial lands first try
	cfg.ConnectTimeout = 2 * time.Second
	cfg.ReadTimeout = 2 * time.Second
	return cfg
}

func TestConnectAndSelectEndToEnd(t *testing.T) {
	srv, err := cqltest.NewServer(1, func(opcode protocol.Opcode, body []byte) (protocol.Opcode, []byte) {
		if opcode == protocol.OpQuery {
			buf := protocol.WriteInt(nil, int32(protocol.ResultRows))
			buf = protocol.WriteInt(buf, int32(0x0004)) // noMetadata flag
			buf = protocol.WriteInt(buf, 0)             // column count
			buf = protocol.WriteInt(buf, 1)              // row count
			return protocol.OpResult, buf
		}
		return protocol.OpResult, protocol.WriteInt(nil, int32(protocol.ResultVoid))
	})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	srv.SetLocalTopology("dc1", []int64{0})
	go srv.Serve()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client, err := Connect(ctx, testConfig(srv.Addr()))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()
	client.BuildRing(1)

	result, err := client.Select("SELECT * FROM ks.t WHERE k = ?", []byte("key")).GetLocal(ctx)
	if err != nil {
		t.Fatalf("GetLocal: %v", err)
	}
	if result.Kind != protocol.ResultRows {
		t.Fatalf("result kind = %v, want ResultRows", result.Kind)
	}
}

func TestSendLocalFireAndForget(t *testing.T) {
	srv, err := cqltest.NewServer(1, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	srv.SetLocalTopology("dc1", []int64{0})
	go srv.Serve()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client, err := Connect(ctx, testConfig(srv.Addr()))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()
	client.BuildRing(1)

	client.Insert("INSERT INTO ks.t (k, v) VALUES (?, ?)", []byte("key")).Values([]byte("key"), []byte("v")).SendLocal(ctx)
	time.Sleep(100 * time.Millisecond)
}
