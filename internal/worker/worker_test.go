package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iotaledger/scyllago/internal/cluster"
	"github.com/iotaledger/scyllago/internal/cqlerr"
	"github.com/iotaledger/scyllago/internal/protocol"
)

// fakeRouter replays a scripted sequence of (frame, error) responses, one
// per call to SendLocal/SendGlobal, recording the opcodes it was asked to
// send so tests can assert on what a worker actually dispatched.
type fakeRouter struct {
	responses []routerResponse
	calls     []protocol.Opcode
}

type routerResponse struct {
	frame protocol.Frame
	err   error
}

func (f *fakeRouter) next(p cluster.RouteParams) (protocol.Frame, error) {
	f.calls = append(f.calls, p.Opcode())
	if len(f.responses) == 0 {
		return protocol.Frame{}, errors.New("fakeRouter: no more scripted responses")
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	return r.frame, r.err
}

func (f *fakeRouter) SendLocal(ctx context.Context, p cluster.RouteParams) (protocol.Frame, error) {
	return f.next(p)
}
func (f *fakeRouter) SendGlobal(ctx context.Context, p cluster.RouteParams) (protocol.Frame, error) {
	return f.next(p)
}

func voidResultFrame() protocol.Frame {
	body := protocol.EncodeInt32(int32(protocol.ResultVoid))
	return protocol.Frame{Header: protocol.Header{Opcode: protocol.OpResult}, Body: body}
}

func preparedResultFrame(id [16]byte) protocol.Frame {
	body := protocol.EncodeInt32(int32(protocol.ResultPrepared))
	body = protocol.WriteBytes(body, id[:])
	// empty prepared metadata: flags=0, no columns; empty result metadata likewise.
	body = append(body, protocol.EncodeInt32(0)...)
	body = append(body, protocol.EncodeInt32(0)...)
	body = append(body, protocol.EncodeInt32(0)...)
	body = append(body, protocol.EncodeInt32(0)...)
	return protocol.Frame{Header: protocol.Header{Opcode: protocol.OpResult}, Body: body}
}

func unpreparedErr(id [16]byte) error {
	return &protocol.ServerError{
		Code:       protocol.ErrCodeUnprepared,
		Message:    "unprepared",
		Additional: map[string]any{"unprepared_id": id},
	}
}

func overloadedErr() error {
	return &protocol.ServerError{Code: protocol.ErrCodeOverloaded, Message: "overloaded"}
}

func invalidErr() error {
	return &protocol.ServerError{Code: protocol.ErrCodeInvalid, Message: "invalid query"}
}

func TestBasicRetryWorkerRetriesOnTransientError(t *testing.T) {
	router := &fakeRouter{responses: []routerResponse{
		{err: overloadedErr()},
		{err: cqlerr.ErrLost},
		{frame: voidResultFrame()},
	}}
	w := NewBasicRetryWorker(router, false, 42, protocol.OpQuery, []byte("body"), time.Second, 2)
	frame, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.Header.Opcode != protocol.OpResult {
		t.Fatalf("got opcode %v", frame.Header.Opcode)
	}
	if len(router.calls) != 3 {
		t.Fatalf("expected 3 send attempts, got %d", len(router.calls))
	}
}

func TestBasicRetryWorkerExhaustsBudget(t *testing.T) {
	router := &fakeRouter{responses: []routerResponse{
		{err: overloadedErr()},
		{err: overloadedErr()},
	}}
	w := NewBasicRetryWorker(router, false, 42, protocol.OpQuery, []byte("body"), time.Second, 1)
	_, err := w.Run(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausting retry budget")
	}
	if len(router.calls) != 2 {
		t.Fatalf("expected 2 send attempts, got %d", len(router.calls))
	}
}

func TestBasicRetryWorkerSurfacesFatalErrorImmediately(t *testing.T) {
	router := &fakeRouter{responses: []routerResponse{
		{err: invalidErr()},
		{frame: voidResultFrame()},
	}}
	w := NewBasicRetryWorker(router, false, 42, protocol.OpQuery, []byte("body"), time.Second, 3)
	_, err := w.Run(context.Background())
	if err == nil {
		t.Fatal("expected Invalid to surface without retrying")
	}
	if len(router.calls) != 1 {
		t.Fatalf("expected exactly 1 send attempt (no retry on a fatal error), got %d", len(router.calls))
	}
}

func TestUnpreparedTriggersReprepareAndRetry(t *testing.T) {
	id := [16]byte{1, 2, 3}
	RememberPrepared(id, "SELECT * FROM t WHERE k = ?")

	router := &fakeRouter{responses: []routerResponse{
		{err: unpreparedErr(id)},       // original execute fails
		{frame: preparedResultFrame(id)}, // re-prepare succeeds
		{frame: voidResultFrame()},       // retried execute succeeds
	}}
	w := NewExecuteValueWorker(router, false, 42, id, protocol.QueryParams{}, time.Second, 0)
	_, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantOps := []protocol.Opcode{protocol.OpExecute, protocol.OpPrepare, protocol.OpExecute}
	if len(router.calls) != len(wantOps) {
		t.Fatalf("got %d calls, want %d", len(router.calls), len(wantOps))
	}
	for i, op := range wantOps {
		if router.calls[i] != op {
			t.Fatalf("call %d: got opcode %v, want %v", i, router.calls[i], op)
		}
	}
}

func TestReprepareFailsTwiceYieldsPrepareLoop(t *testing.T) {
	id := [16]byte{9, 9, 9}
	RememberPrepared(id, "SELECT * FROM t WHERE k = ?")

	router := &fakeRouter{responses: []routerResponse{
		{err: unpreparedErr(id)},
		{err: errors.New("prepare rejected")},
		{err: errors.New("prepare rejected again")},
	}}
	w := NewExecuteValueWorker(router, false, 42, id, protocol.QueryParams{}, time.Second, 0)
	_, err := w.Run(context.Background())
	if err == nil {
		t.Fatal("expected PrepareLoop error")
	}
	if !errors.Is(err, cqlerr.ErrPrepareLoop) {
		t.Fatalf("got %v, want wrapping ErrPrepareLoop", err)
	}
}

func TestReprepareUnknownIDFailsFast(t *testing.T) {
	id := [16]byte{7, 7, 7, 7}
	router := &fakeRouter{responses: []routerResponse{
		{err: unpreparedErr(id)},
	}}
	w := NewExecuteValueWorker(router, false, 42, id, protocol.QueryParams{}, time.Second, 3)
	_, err := w.Run(context.Background())
	if err == nil {
		t.Fatal("expected error for unknown prepared id")
	}
	if len(router.calls) != 1 {
		t.Fatalf("expected no re-prepare attempt for an unknown id, got %d calls", len(router.calls))
	}
}

func TestPrepareWorkerRemembersStatement(t *testing.T) {
	router := &fakeRouter{responses: []routerResponse{
		{frame: preparedResultFrame([16]byte{4, 4, 4})},
	}}
	w := NewPrepareWorker(router, false, 42, "SELECT * FROM t", time.Second, 0)
	id, _, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text, ok := StatementFor(id); !ok || text != "SELECT * FROM t" {
		t.Fatalf("prepared cache missing entry for returned id: %q %v", text, ok)
	}
}

func TestBatchWorkerRepreparesOffendingStatementThenResends(t *testing.T) {
	id := [16]byte{5, 5, 5}
	RememberPrepared(id, "INSERT INTO t (k, v) VALUES (?, ?)")

	router := &fakeRouter{responses: []routerResponse{
		{err: unpreparedErr(id)},
		{frame: preparedResultFrame(id)},
		{frame: voidResultFrame()},
	}}
	w := NewBatchWorker(router, false, 42, protocol.BatchLogged, []protocol.BatchStatement{
		{Kind: protocol.BatchStmtPrepared, PreparedID: id},
	}, protocol.ConsistencyQuorum, protocol.ConsistencyAny, nil, time.Second)
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantOps := []protocol.Opcode{protocol.OpBatch, protocol.OpPrepare, protocol.OpBatch}
	if len(router.calls) != len(wantOps) {
		t.Fatalf("got %d calls, want %d", len(router.calls), len(wantOps))
	}
}

func TestBatchWorkerGivesUpAfterTwoRounds(t *testing.T) {
	id := [16]byte{6, 6, 6}
	RememberPrepared(id, "INSERT INTO t (k, v) VALUES (?, ?)")

	router := &fakeRouter{responses: []routerResponse{
		{err: unpreparedErr(id)},
		{frame: preparedResultFrame(id)},
		{err: unpreparedErr(id)},
	}}
	w := NewBatchWorker(router, false, 42, protocol.BatchLogged, []protocol.BatchStatement{
		{Kind: protocol.BatchStmtPrepared, PreparedID: id},
	}, protocol.ConsistencyQuorum, protocol.ConsistencyAny, nil, time.Second)
	err := w.Run(context.Background())
	if !errors.Is(err, cqlerr.ErrPrepareLoop) {
		t.Fatalf("got %v, want wrapping ErrPrepareLoop", err)
	}
}
