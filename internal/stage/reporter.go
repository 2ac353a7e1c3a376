// File: internal/stage/reporter.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reporter owns one partition of a connection's 32768-wide stream id
// space, the free-list of reclaimed ids, and the table of requests
// awaiting a response. It mirrors the teacher's Executor in shape (a
// queue feeding single-purpose goroutines) but the queue here holds
// reusable stream ids rather than pending tasks.

package stage

import (
	"context"
	"sync"

	"github.com/eapache/queue"

	"github.com/iotaledger/scyllago/internal/cqlerr"
	"github.com/iotaledger/scyllago/internal/logging"
	"github.com/iotaledger/scyllago/internal/protocol"
	"github.com/iotaledger/scyllago/internal/transport"
)

var log = logging.New("stage")

// outcome is delivered to a Reporter.Send caller once the matching
// response frame (or a terminal error) arrives.
type outcome struct {
	frame protocol.Frame
	err   error
}

// Reporter multiplexes requests over [idStart, idEnd) of one connection's
// stream id space. A connection typically hosts several Reporters, each
// given a disjoint id range, so that lock contention on the free-list
// scales with ReportersPerNode.
type Reporter struct {
	conn    *transport.CqlConn
	writeMu sync.Mutex

	freeMu sync.Mutex
	free   *queue.Queue // holds boxed int16 stream ids
	sem    chan struct{}

	pendingMu sync.Mutex
	pending   map[int16]chan outcome

	closed chan struct{}
	once   sync.Once
}

// NewReporter builds a Reporter over [idStart, idEnd) of conn's stream id
// space and starts its response-dispatch registration table.
func NewReporter(conn *transport.CqlConn, idStart, idEnd int16) *Reporter {
	r := &Reporter{
		conn:    conn,
		free:    queue.New(),
		sem:     make(chan struct{}, int(idEnd-idStart)),
		pending: make(map[int16]chan outcome),
		closed:  make(chan struct{}),
	}
	for id := idStart; id < idEnd; id++ {
		r.free.Add(id)
		r.sem <- struct{}{}
	}
	return r
}

// acquireStreamID fails fast with ErrOverload when the partition's free
// list is exhausted, rather than blocking the caller to wait for one to
// free up: the driver never queues a request behind another's response.
func (r *Reporter) acquireStreamID(ctx context.Context) (int16, error) {
	select {
	case <-r.closed:
		return 0, cqlerr.ErrConnClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-r.sem:
	default:
		return 0, cqlerr.ErrOverload
	}
	r.freeMu.Lock()
	id := r.free.Peek().(int16)
	r.free.Remove()
	r.freeMu.Unlock()
	return id, nil
}

// releaseStreamID returns id to the tail of the FIFO free list, so reuse
// is round-robin across the partition rather than LIFO-biased.
func (r *Reporter) releaseStreamID(id int16) {
	r.freeMu.Lock()
	r.free.Add(id)
	r.freeMu.Unlock()
	select {
	case r.sem <- struct{}{}:
	default:
	}
}

// Send encodes and writes one request, then blocks until the matching
// response frame is dispatched by dispatch (called from the owning
// Stage's receive loop) or ctx expires.
func (r *Reporter) Send(ctx context.Context, opcode protocol.Opcode, body []byte, tracing bool) (protocol.Frame, error) {
	id, err := r.acquireStreamID(ctx)
	if err != nil {
		return protocol.Frame{}, err
	}

	ch := make(chan outcome, 1)
	r.pendingMu.Lock()
	r.pending[id] = ch
	r.pendingMu.Unlock()

	frame, err := r.conn.EncodeFrame(id, opcode, body, tracing)
	if err != nil {
		r.forget(id)
		r.releaseStreamID(id)
		return protocol.Frame{}, err
	}

	r.writeMu.Lock()
	writeErr := r.conn.WriteFrame(id, frame)
	r.writeMu.Unlock()
	if writeErr != nil {
		r.forget(id)
		r.releaseStreamID(id)
		return protocol.Frame{}, writeErr
	}

	select {
	case o := <-ch:
		r.releaseStreamID(id)
		return o.frame, o.err
	case <-ctx.Done():
		r.forget(id)
		r.releaseStreamID(id)
		return protocol.Frame{}, ctx.Err()
	case <-r.closed:
		select {
		case o := <-ch: // delivered by DrainForcedConsistency before closed
			r.releaseStreamID(id)
			return o.frame, o.err
		default:
		}
		r.forget(id)
		r.releaseStreamID(id)
		return protocol.Frame{}, cqlerr.ErrConnClosed
	}
}

// dispatch routes one decoded response frame to its waiting Send call, if
// any is still registered (it may have already timed out and released
// its id, in which case the frame is logged and dropped).
func (r *Reporter) dispatch(frame protocol.Frame) {
	r.pendingMu.Lock()
	ch, ok := r.pending[frame.Header.StreamID]
	if ok {
		delete(r.pending, frame.Header.StreamID)
	}
	r.pendingMu.Unlock()
	if !ok {
		log.Debugf("reporter: dropping response for unregistered stream %d", frame.Header.StreamID)
		return
	}
	ch <- outcome{frame: frame}
}

func (r *Reporter) forget(id int16) {
	r.pendingMu.Lock()
	delete(r.pending, id)
	r.pendingMu.Unlock()
}

// DrainForcedConsistency delivers ErrLost to every outstanding request,
// the terminal callback a Stage forces on its Reporters when a
// connection is torn down but some callers are still blocked in Send.
func (r *Reporter) DrainForcedConsistency() {
	r.pendingMu.Lock()
	pending := r.pending
	r.pending = make(map[int16]chan outcome)
	r.pendingMu.Unlock()
	for _, ch := range pending {
		ch <- outcome{err: cqlerr.ErrLost}
	}
}

// Close stops accepting new Send calls and cancels any still pending.
func (r *Reporter) Close() {
	r.once.Do(func() {
		r.DrainForcedConsistency()
		close(r.closed)
	})
}
