// Package observe provides observability primitives for cache operations.
//
// It is a pure instrumentation library: no storage, no policy, no I/O beyond
// exporter setup. Consumers wire the Monitor into a memo.Cacher as its
// Events sink.
package observe
