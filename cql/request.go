// File: cql/request.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Request is the fluent builder spec.md §6 names: select/insert/update/
// delete/batch/prepare/execute each return one, chained with consistency/
// timestamp/page_size/paging_state/serial_consistency, then dispatched
// with send_local/send_global (fire-and-forget) or get_local/get_global
// (blocking, decoded result) — implemented directly on top of
// internal/worker's retry/re-prepare workers rather than through an extra
// indirection layer, since those workers already are one-shot per call.

package cql

import (
	"context"
	"crypto/md5"
	"fmt"

	"github.com/iotaledger/scyllago/internal/protocol"
	"github.com/iotaledger/scyllago/internal/worker"
)

// kind discriminates which CQL request body a Request will encode.
type kind int

const (
	kindQuery kind = iota
	kindPrepare
	kindExecute
	kindBatch
)

// Request accumulates a CQL request's parameters before it is dispatched
// through the client's cluster router.
type Request struct {
	client *Client

	kind       kind
	statement  string     // kindQuery, kindPrepare
	preparedID [16]byte   // kindExecute
	batchKind  protocol.BatchKind
	batchStmts []protocol.BatchStatement // kindBatch

	params  protocol.QueryParams
	token   int64
	retries int
}

func newRequest(c *Client, k kind) *Request {
	return &Request{client: c, kind: k, retries: 2}
}

// tokenFromKey computes the partition token from one or more bound
// partition-key column values, following §4.1's TokenEncodeChain rules:
// a single column strips its length prefix before hashing; multiple
// columns are joined with a 0x00 separator.
func tokenFromKey(partitionKey ...[]byte) int64 {
	var chain protocol.TokenEncodeChain
	for _, col := range partitionKey {
		chain.Append(protocol.EncodeColumnForToken(col))
	}
	return chain.Finish()
}

// Select builds a QUERY request for statement, routed by partitionKey.
func (c *Client) Select(statement string, partitionKey ...[]byte) *Request {
	r := newRequest(c, kindQuery)
	r.statement = statement
	r.token = tokenFromKey(partitionKey...)
	return r
}

// Insert builds a QUERY request for an INSERT statement.
func (c *Client) Insert(statement string, partitionKey ...[]byte) *Request {
	return c.Select(statement, partitionKey...)
}

// Update builds a QUERY request for an UPDATE statement.
func (c *Client) Update(statement string, partitionKey ...[]byte) *Request {
	return c.Select(statement, partitionKey...)
}

// Delete builds a QUERY request for a DELETE statement.
func (c *Client) Delete(statement string, partitionKey ...[]byte) *Request {
	return c.Select(statement, partitionKey...)
}

// Prepare builds a PREPARE request. Its routing token is irrelevant (any
// shard can prepare a statement), so it routes through SendLocal's
// replica-pick without a meaningful token.
func (c *Client) Prepare(statement string) *Request {
	r := newRequest(c, kindPrepare)
	r.statement = statement
	return r
}

// PreparedID computes the 16-byte MD5 identifying statement, per §4.7.
func PreparedID(statement string) [16]byte {
	return md5.Sum([]byte(statement))
}

// Execute builds an EXECUTE request for a previously prepared statement,
// routed by partitionKey. The caller is responsible for having prepared
// id (directly or via Prepare().GetLocal()) before calling Execute.
func (c *Client) Execute(id [16]byte, partitionKey ...[]byte) *Request {
	r := newRequest(c, kindExecute)
	r.preparedID = id
	r.token = tokenFromKey(partitionKey...)
	return r
}

// Batch starts a BATCH request routed by partitionKey; add members with
// AddQuery/AddPrepared before dispatching.
func (c *Client) Batch(batchKind protocol.BatchKind, partitionKey ...[]byte) *Request {
	r := newRequest(c, kindBatch)
	r.batchKind = batchKind
	r.token = tokenFromKey(partitionKey...)
	return r
}

// AddQuery appends a raw-statement member to a batch request.
func (r *Request) AddQuery(statement string, values ...[]byte) *Request {
	r.batchStmts = append(r.batchStmts, protocol.BatchStatement{Kind: protocol.BatchStmtQuery, Query: statement, Values: values})
	return r
}

// AddPrepared appends a prepared-statement member to a batch request.
func (r *Request) AddPrepared(id [16]byte, values ...[]byte) *Request {
	r.batchStmts = append(r.batchStmts, protocol.BatchStatement{Kind: protocol.BatchStmtPrepared, PreparedID: id, Values: values})
	return r
}

// Consistency sets the request's consistency level.
func (r *Request) Consistency(c protocol.Consistency) *Request {
	r.params.Consistency = c
	return r
}

// Timestamp sets an explicit client-supplied write timestamp.
func (r *Request) Timestamp(t int64) *Request {
	r.params.Timestamp = &t
	return r
}

// PageSize requests paging at n rows per page.
func (r *Request) PageSize(n int32) *Request {
	r.params.PageSize = n
	return r
}

// PagingState resumes a previous paged query.
func (r *Request) PagingState(s []byte) *Request {
	r.params.PagingState = s
	return r
}

// SerialConsistency sets the consistency level for the request's
// conditional (lightweight-transaction) phase.
func (r *Request) SerialConsistency(c protocol.Consistency) *Request {
	r.params.SerialConsistency = c
	return r
}

// Values sets the request's positional bound values (QUERY/EXECUTE only;
// batch members carry their own values via AddQuery/AddPrepared).
func (r *Request) Values(values ...[]byte) *Request {
	r.params.PositionalValues = values
	return r
}

// Retries overrides the worker's retry budget (default 2). Batch requests
// do not use it: a failed batch is not resent on transient errors.
func (r *Request) Retries(n int) *Request {
	r.retries = n
	return r
}

// Build encodes the request body for its opcode, without stamping a
// stream id (the reporter does that at send time).
func (r *Request) Build() ([]byte, protocol.Opcode, error) {
	switch r.kind {
	case kindQuery:
		return protocol.EncodeQuery(r.statement, r.params), protocol.OpQuery, nil
	case kindPrepare:
		return protocol.EncodePrepare(r.statement), protocol.OpPrepare, nil
	case kindExecute:
		return protocol.EncodeExecute(r.preparedID, r.params), protocol.OpExecute, nil
	case kindBatch:
		return protocol.EncodeBatch(r.batchKind, r.batchStmts, r.params.Consistency, r.params.SerialConsistency, r.params.Timestamp), protocol.OpBatch, nil
	default:
		return nil, 0, fmt.Errorf("cql: unknown request kind %d", r.kind)
	}
}

func (r *Request) run(ctx context.Context, global bool) (*protocol.ResultBody, error) {
	timeout := r.client.cfg.ReadTimeout
	router := r.client.cluster

	switch r.kind {
	case kindQuery:
		w := worker.NewQueryWorker(router, global, r.token, r.statement, r.params, timeout, r.retries)
		return w.Run(ctx)
	case kindPrepare:
		id, meta, err := worker.NewPrepareWorker(router, global, r.token, r.statement, timeout, r.retries).Run(ctx)
		if err != nil {
			return nil, err
		}
		return &protocol.ResultBody{Kind: protocol.ResultPrepared, PreparedID: id, PreparedMeta: meta}, nil
	case kindExecute:
		w := worker.NewExecuteValueWorker(router, global, r.token, r.preparedID, r.params, timeout, r.retries)
		return w.Run(ctx)
	case kindBatch:
		w := worker.NewBatchWorker(router, global, r.token, r.batchKind, r.batchStmts, r.params.Consistency, r.params.SerialConsistency, r.params.Timestamp, timeout)
		if err := w.Run(ctx); err != nil {
			return nil, err
		}
		return &protocol.ResultBody{Kind: protocol.ResultVoid}, nil
	default:
		return nil, fmt.Errorf("cql: unknown request kind %d", r.kind)
	}
}

// SendLocal submits the request to the local datacenter without waiting
// for a response; failures are logged, not returned, matching §6's
// "fire-and-forget" semantics.
func (r *Request) SendLocal(ctx context.Context) {
	go func() {
		if _, err := r.run(ctx, false); err != nil {
			log.Warnf("cql: SendLocal failed: %v", err)
		}
	}()
}

// SendGlobal submits the request to any datacenter without waiting for a
// response.
func (r *Request) SendGlobal(ctx context.Context) {
	go func() {
		if _, err := r.run(ctx, true); err != nil {
			log.Warnf("cql: SendGlobal failed: %v", err)
		}
	}()
}

// GetLocal submits the request to the local datacenter and blocks for the
// decoded result.
func (r *Request) GetLocal(ctx context.Context) (*protocol.ResultBody, error) {
	return r.run(ctx, false)
}

// GetGlobal submits the request to any datacenter and blocks for the
// decoded result.
func (r *Request) GetGlobal(ctx context.Context) (*protocol.ResultBody, error) {
	return r.run(ctx, true)
}
