// Package link implements the two PGP transport strategies over a
// device channel.
//
// Ownership boundary:
// - register/command/data transaction values and per-kind counters
// - single-slot mailboxes and the received-data FIFO
// - SyncTransport: blocking single-thread strategy
// - AsyncLink: transmit-sequencer and receive-classifier goroutines
package link
