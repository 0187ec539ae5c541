// Package memo provides transparent, disk-backed memoization of function
// calls.
//
// It provides a Cacher that wraps functions, canonical fingerprinting of call
// arguments, per-call store routing with run-time control flags, and a
// size-bounded filesystem storage engine.
package memo
