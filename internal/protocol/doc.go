// Package protocol owns the PGP wire contract and frame primitives.
//
// Ownership boundary:
// - 32-bit word frame representation and byte conversion
// - register/command/run/data frame encode and decode
// - frame-level error taxonomy
package protocol
