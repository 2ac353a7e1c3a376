// File: cmd/cqlbench/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// cqlbench is a load-test client for a scyllago-served cluster, in the
// shape of examples/stest/client: spawn N parallel workers, each issuing
// prepared-statement executes in a loop, and print ok/errors/RPS
// metrics once a second until interrupted.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/iotaledger/scyllago/cql"
	"github.com/iotaledger/scyllago/internal/protocol"
)

func main() {
	nodes := flag.String("nodes", "127.0.0.1:9042", "comma-separated seed node addresses")
	datacenter := flag.String("dc", "dc1", "local datacenter name")
	keyspace := flag.String("keyspace", "bench", "keyspace for the benchmark table")
	table := flag.String("table", "items", "table for the benchmark query")
	concurrency := flag.Int("concurrency", 4, "number of parallel worker goroutines")
	rf := flag.Int("rf", 1, "default replication factor used to build the ring")
	pause := flag.Duration("pause", 0, "pause between requests per worker")
	flag.Parse()

	cfg := cql.DefaultConfig()
	cfg.LocalDatacenter = *datacenter
	cfg.InitialNodes = strings.Split(*nodes, ",")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	client, err := cql.Connect(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cqlbench: connect: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()
	client.BuildRing(*rf)

	statement := fmt.Sprintf("SELECT * FROM %s.%s WHERE id = ?", *keyspace, *table)
	preparedID, err := prepare(ctx, client, statement)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cqlbench: prepare: %v\n", err)
		os.Exit(1)
	}

	var totalOK, totalErr, rpsCount int64

	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for range t.C {
			ok := atomic.LoadInt64(&totalOK)
			fail := atomic.LoadInt64(&totalErr)
			rps := atomic.SwapInt64(&rpsCount, 0)
			fmt.Printf("ok=%d errors=%d RPS=%d\n", ok, fail, rps)
		}
	}()

	for i := 0; i < *concurrency; i++ {
		go worker(ctx, client, preparedID, *pause, &totalOK, &totalErr, &rpsCount)
	}

	<-ctx.Done()
	fmt.Println("cqlbench: shutting down")
	time.Sleep(500 * time.Millisecond)
}

func prepare(ctx context.Context, client *cql.Client, statement string) ([16]byte, error) {
	result, err := client.Prepare(statement).GetLocal(ctx)
	if err != nil {
		return [16]byte{}, err
	}
	return result.PreparedID, nil
}

func worker(
	ctx context.Context,
	client *cql.Client,
	preparedID [16]byte,
	pause time.Duration,
	totalOK, totalErr, rpsCount *int64,
) {
	key := []byte(fmt.Sprintf("worker-%d", time.Now().UnixNano()))
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, err := client.Execute(preparedID, key).Consistency(protocol.ConsistencyOne).Values(key).GetLocal(ctx)
			if err != nil {
				atomic.AddInt64(totalErr, 1)
			} else {
				atomic.AddInt64(totalOK, 1)
			}
			atomic.AddInt64(rpsCount, 1)
			if pause > 0 {
				time.Sleep(pause)
			}
		}
	}
}
