// Package cqlerr collects the sentinel and structured error types shared
// across the driver, mirroring the split between api.Error's plain
// sentinels and protocol's typed ServerError.
package cqlerr

import (
	"errors"
	"fmt"

	"github.com/iotaledger/scyllago/internal/protocol"
)

// Sentinel errors returned by the connection, cluster and worker layers,
// named to match the language-neutral specification's error taxonomy.
var (
	ErrConnClosed       = fmt.Errorf("cql: connection is closed")
	ErrNoRing           = fmt.Errorf("cql: routing attempted before first BuildRing")
	ErrNoReplicaAvailable = fmt.Errorf("cql: no replica available for token")
	ErrNoDatacenter     = fmt.Errorf("cql: no node registered for requested datacenter")
	ErrShardOutOfRange  = fmt.Errorf("cql: requested shard id does not exist on this node")
	ErrPrepareLoop      = fmt.Errorf("cql: statement failed to prepare twice in a row")
	ErrOverload         = fmt.Errorf("cql: reporter queue overloaded")
	ErrLost             = fmt.Errorf("cql: in-flight request lost to a stage restart")
	ErrStreamsExhausted = fmt.Errorf("cql: reporter has no free stream ids")
	ErrRequestTimeout   = fmt.Errorf("cql: request timed out")
	ErrRequestCancelled = fmt.Errorf("cql: request was cancelled by forced consistency drain")
	ErrNotConnected     = fmt.Errorf("cql: node has no live connections")
	ErrInvalidStatement = fmt.Errorf("cql: statement builder is missing required fields")
)

// Code groups driver-level (non-server) failures for callers that want to
// branch on class rather than on a specific sentinel.
type Code int

const (
	CodeInternal Code = iota
	CodeUnavailable
	CodeTimeout
	CodeCancelled
	CodeInvalidArgument
)

// DriverError is the structured error returned for conditions not reported
// by the server itself (routing failures, stream exhaustion, cancellation).
type DriverError struct {
	Code    Code
	Message string
	Cause   error
}

func (e *DriverError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cql: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("cql: %s", e.Message)
}

func (e *DriverError) Unwrap() error { return e.Cause }

// NewDriverError builds a DriverError wrapping an optional cause.
func NewDriverError(code Code, message string, cause error) *DriverError {
	return &DriverError{Code: code, Message: message, Cause: cause}
}

// ServerError re-exports protocol.ServerError so callers importing cqlerr
// don't also need to import internal/protocol just to type-assert a
// server-sent failure.
type ServerError = protocol.ServerError

// IsTransient reports whether err is one spec.md §7 lists as "transient,
// retried automatically": ReadTimeout, WriteTimeout, Unavailable,
// Overloaded, IsBootstrapping server errors, or a connection lost
// mid-flight (ErrLost). Everything else — syntax/validation failures,
// driver-routing sentinels (NoRing, NoReplicaAvailable, ...), and raw
// connection I/O errors — is fatal to the request and must not be
// retried.
func IsTransient(err error) bool {
	if errors.Is(err, ErrLost) {
		return true
	}
	se, isServerErr := err.(*protocol.ServerError)
	if !isServerErr {
		return false
	}
	switch se.Code {
	case protocol.ErrCodeReadTimeout, protocol.ErrCodeWriteTimeout,
		protocol.ErrCodeUnavailable, protocol.ErrCodeOverloaded, protocol.ErrCodeBootstrapping:
		return true
	default:
		return false
	}
}

// IsUnprepared reports whether err is a server error carrying code 0x2500,
// the trigger for a worker's re-prepare-and-retry path.
func IsUnprepared(err error) (id [16]byte, ok bool) {
	se, isServerErr := err.(*protocol.ServerError)
	if !isServerErr || se.Code != protocol.ErrCodeUnprepared {
		return id, false
	}
	raw, has := se.Additional["unprepared_id"]
	if !has {
		return id, false
	}
	arr, isArr := raw.([16]byte)
	return arr, isArr
}
