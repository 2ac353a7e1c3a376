package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/iotaledger/scyllago/internal/protocol"
)

type fakeStage struct {
	shardID uint16
	frame   protocol.Frame
	err     error
}

func (f *fakeStage) Send(ctx context.Context, shardHash uint32, opcode protocol.Opcode, body []byte, timeout time.Duration) (protocol.Frame, error) {
	return f.frame, f.err
}
func (f *fakeStage) ShardID() uint16 { return f.shardID }
func (f *fakeStage) Close() error    { return nil }

func TestClusterSendLocalRoutesThroughRegistry(t *testing.T) {
	c := NewCluster("dc1")
	defer c.Close()

	node := NodeInfo{Address: "127.0.0.1:9042", Datacenter: "dc1", Tokens: []int64{0}, MSB: 12, ShardCount: 1}
	c.AddNode(node)
	c.BuildRing(nil, 1)

	want := protocol.Frame{Header: protocol.Header{Opcode: protocol.OpResult}}
	c.Registry.Put(node.Address, 0, &fakeStage{shardID: 0, frame: want})

	got, err := c.SendLocal(context.Background(), NewRouteParams(42, protocol.OpQuery, nil, time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if got.Header.Opcode != protocol.OpResult {
		t.Fatalf("got frame %+v", got)
	}
}

func TestClusterSendLocalNoStageRegistered(t *testing.T) {
	c := NewCluster("dc1")
	defer c.Close()
	c.AddNode(NodeInfo{Address: "127.0.0.1:9042", Datacenter: "dc1", Tokens: []int64{0}, ShardCount: 1})
	c.BuildRing(nil, 1)

	_, err := c.SendLocal(context.Background(), NewRouteParams(42, protocol.OpQuery, nil, time.Second))
	if err == nil {
		t.Fatal("expected error when no stage is registered for the resolved replica")
	}
}

func TestRemoveNodeClearsRegistry(t *testing.T) {
	c := NewCluster("dc1")
	defer c.Close()
	node := NodeInfo{Address: "127.0.0.1:9042", Datacenter: "dc1", Tokens: []int64{0}, ShardCount: 1}
	c.AddNode(node)
	c.Registry.Put(node.Address, 0, &fakeStage{})
	if c.Registry.Len() != 1 {
		t.Fatalf("registry len = %d, want 1", c.Registry.Len())
	}
	c.RemoveNode(node.Address)
	if c.Registry.Len() != 0 {
		t.Fatalf("registry len after remove = %d, want 0", c.Registry.Len())
	}
}
