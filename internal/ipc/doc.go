// Package ipc exposes daemon control over a Unix domain socket.
//
// The server registers a single JSON-RPC service named "Reel" whose methods
// map one-to-one onto daemon operations: status, stop, sync-now, process-now,
// queue maintenance, health diagnostics, and notification testing. The client
// wraps each call with typed request/response structs so CLI commands never
// touch the RPC plumbing directly.
package ipc
