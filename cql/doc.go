// Package cql is the driver's public surface: Connect bootstraps a
// Client from a seed node list, AddNode/RemoveNode/BuildRing manage
// cluster topology, and the request builders (Select/Insert/Update/
// Delete/Batch/Prepare/Execute) hand back a *Request with the fluent
// .Consistency/.Timestamp/.PageSize/.PagingState/.SerialConsistency
// chain and the four send variants: SendLocal/SendGlobal (fire-and-
// forget submit) and GetLocal/GetGlobal (blocking, decoded result).
package cql
