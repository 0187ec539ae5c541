// Package health provides health-check primitives for cache stores.
//
// It defines a small Checker contract and a store-backed checker reporting
// usability, free space, and resident size of a memo.Store.
package health
