// File: internal/stage/stage.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stage supervises one connection: it runs the Receiver loop that reads
// frames off the wire and fans them out to the Reporter owning that
// stream id's partition. On a read error it closes its reporters and
// reports the loss through onDisconnect; the cql client uses that hook to
// dial a replacement connection.

package stage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iotaledger/scyllago/internal/protocol"
	"github.com/iotaledger/scyllago/internal/transport"
)

// Stage owns one connection and its reporters, and runs the receive loop
// that demultiplexes responses to the right reporter.
type Stage struct {
	mu        sync.RWMutex
	conn      *transport.CqlConn
	reporters []*Reporter

	onDisconnect func(err error)

	stop    chan struct{}
	stopped chan struct{}
}

// NewStage wraps conn with numReporters partitions of the stream id
// space and starts the receive loop. onDisconnect, if non-nil, is called
// on its own goroutine once the receive loop exits on a read error; it is
// not called after an explicit Close.
func NewStage(conn *transport.CqlConn, numReporters int, onDisconnect func(err error)) *Stage {
	if numReporters < 1 {
		numReporters = 1
	}
	const totalStreams = 1 << 15 // stream ids are a signed 16-bit range; negatives are reserved for events
	per := totalStreams / numReporters
	reporters := make([]*Reporter, numReporters)
	for i := 0; i < numReporters; i++ {
		start := int16(i * per)
		end := int16((i + 1) * per)
		if i == numReporters-1 {
			end = totalStreams - 1 // int16 cannot hold 1<<15; the last id is 32766
		}
		reporters[i] = NewReporter(conn, start, end)
	}
	s := &Stage{
		conn:         conn,
		reporters:    reporters,
		onDisconnect: onDisconnect,
		stop:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	go s.receiveLoop()
	return s
}

// Reporter returns the reporter assigned to shardHash, load-balancing
// requests across the partition the way the teacher's safeWrapper
// round-robins transport access: by simple modulo, since every reporter
// is equally capable of serving any stream.
func (s *Stage) Reporter(shardHash uint32) *Reporter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reporters[int(shardHash)%len(s.reporters)]
}

func (s *Stage) reporterForStream(streamID int16) *Reporter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	per := (1 << 15) / len(s.reporters)
	idx := int(streamID) / per
	if idx >= len(s.reporters) {
		idx = len(s.reporters) - 1
	}
	return s.reporters[idx]
}

func (s *Stage) receiveLoop() {
	defer close(s.stopped)
	for {
		frame, err := s.conn.ReadFrame()
		if err != nil {
			s.teardown(err)
			return
		}
		if frame.Header.Opcode == protocol.OpEvent {
			// Topology/schema events belong to no reporter's stream and
			// are dropped here.
			continue
		}
		r := s.reporterForStream(frame.Header.StreamID)
		r.dispatch(frame)
	}
}

func (s *Stage) teardown(err error) {
	s.mu.RLock()
	for _, r := range s.reporters {
		r.Close()
	}
	s.mu.RUnlock()
	select {
	case <-s.stop:
		return // explicit Close: no reconnect
	default:
	}
	if s.onDisconnect != nil {
		// Run apart from the receive loop: the handler may replace this
		// stage, which closes it and waits for this loop to finish.
		go s.onDisconnect(err)
	}
}

// Close stops the receive loop and cancels all outstanding requests.
func (s *Stage) Close() error {
	select {
	case <-s.stop:
		return nil
	default:
		close(s.stop)
	}
	err := s.conn.Close()
	<-s.stopped
	return err
}

// Send routes one request through the reporter for shardHash, applying
// timeout as a context deadline.
func (s *Stage) Send(ctx context.Context, shardHash uint32, opcode protocol.Opcode, body []byte, timeout time.Duration) (protocol.Frame, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	r := s.Reporter(shardHash)
	frame, err := r.Send(ctx, opcode, body, false)
	if err != nil {
		return frame, fmt.Errorf("stage: %w", err)
	}
	if frame.Header.Opcode == protocol.OpError {
		resp, decErr := protocol.DecodeResponseBody(protocol.OpError, frame.Body)
		if decErr != nil {
			return frame, decErr
		}
		return frame, resp.Error
	}
	return frame, nil
}

// ShardID reports which physical shard this connection's socket landed
// on, per the SUPPORTED handshake.
func (s *Stage) ShardID() uint16 { return s.conn.Shard.ShardID }
