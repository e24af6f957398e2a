// Package daemon coordinates the long-running triage process.
//
// It wires configuration, queue storage, the scheduler, and the GitHub client
// into a single lifecycle with flock-based locking to prevent multiple
// instances. The daemon exposes queue maintenance helpers and enqueue
// operations for IPC callers.
//
// Keep orchestration logic here: per-issue work lives in the agent handler
// while the daemon focuses on startup, shutdown, and high level coordination.
package daemon
