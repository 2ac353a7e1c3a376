// Package stage implements one CQL connection's stream multiplexer: a
// Receiver goroutine demultiplexing frames by stream id, and Reporters
// that each own an outstanding-request table and a free stream-id pool
// and write requests to the socket on the caller's goroutine under a
// lock. A Stage supervises the Receiver plus however many Reporters are
// configured per connection; on connection loss it closes them and
// reports the loss through its onDisconnect hook.
package stage
