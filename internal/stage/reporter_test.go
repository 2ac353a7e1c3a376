package stage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eapache/queue"

	"github.com/iotaledger/scyllago/internal/cqlerr"
	"github.com/iotaledger/scyllago/internal/protocol"
)

// newTestQueue builds a FIFO of the given stream ids, exercising the same
// queue type the real Reporter uses for its free list.
func newTestQueue(ids ...int16) *queue.Queue {
	q := queue.New()
	for _, id := range ids {
		q.Add(id)
	}
	return q
}

func TestStreamIDReuseFIFO(t *testing.T) {
	// Build a Reporter over a tiny 4-id partition, exhaust then release ids
	// and confirm allocation order is round-robin (FIFO), not LIFO.
	r := &Reporter{
		pending: make(map[int16]chan outcome),
		closed:  make(chan struct{}),
	}
	r.free = newTestQueue(0, 1, 2, 3)
	r.sem = make(chan struct{}, 4)
	for i := 0; i < 4; i++ {
		r.sem <- struct{}{}
	}

	ctx := context.Background()
	var got []int16
	for i := 0; i < 4; i++ {
		id, err := r.acquireStreamID(ctx)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, id)
	}
	for _, want := range []int16{0, 1, 2, 3} {
		if got[0] != want {
			t.Fatalf("allocation order wrong: got %v", got)
		}
		got = got[1:]
	}

	r.releaseStreamID(1)
	r.releaseStreamID(0)
	next, err := r.acquireStreamID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if next != 1 {
		t.Fatalf("expected FIFO reuse to return 1 first, got %d", next)
	}
}

func TestDrainForcedConsistency(t *testing.T) {
	r := &Reporter{
		pending: make(map[int16]chan outcome),
		closed:  make(chan struct{}),
	}
	ch := make(chan outcome, 1)
	r.pending[7] = ch
	r.DrainForcedConsistency()

	select {
	case o := <-ch:
		if !errors.Is(o.err, cqlerr.ErrLost) {
			t.Fatalf("expected ErrLost, got %v", o.err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for drain cancellation")
	}
}

func TestAcquireStreamIDFailsFastWhenExhausted(t *testing.T) {
	r := &Reporter{
		pending: make(map[int16]chan outcome),
		closed:  make(chan struct{}),
	}
	r.free = newTestQueue(0)
	r.sem = make(chan struct{}, 1)
	r.sem <- struct{}{}

	if _, err := r.acquireStreamID(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	_, err := r.acquireStreamID(context.Background())
	if !errors.Is(err, cqlerr.ErrOverload) {
		t.Fatalf("expected ErrOverload on exhausted pool, got %v", err)
	}
}

func TestDispatchDropsUnregisteredStream(t *testing.T) {
	r := &Reporter{pending: make(map[int16]chan outcome), closed: make(chan struct{})}
	// Should not panic even though nothing is registered for stream 99.
	r.dispatch(protocol.Frame{Header: protocol.Header{StreamID: 99}})
}
