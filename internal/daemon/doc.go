// Package daemon coordinates the long-running reel process.
//
// It wires the queue store, workflow manager, intake syncer, and optional
// metrics listener into a single lifecycle with flock-based locking to
// prevent multiple instances. The daemon exposes queue maintenance helpers
// for IPC callers and owns the start/stop notifications.
//
// Keep orchestration logic here: individual pipeline stages live in their
// respective packages while the daemon focuses on startup, shutdown, and
// high level coordination.
package daemon
