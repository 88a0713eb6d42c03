// Package store manages the local persistent cache of dictionary payloads.
//
// # Architecture Overview
//
//   - Backend: one opened key-value collection ("dictionary") keyed by resource identifier.
//     Implementations live in the sqlite, fsstore and memstore subpackages.
//   - Handle: owns the single Backend for its lifetime. Opening is lazy and memoized,
//     so concurrent callers share one in-flight open. Any failure degrades the handle
//     permanently instead of surfacing an error.
//   - Reader and Writer: borrow the Handle's current Backend for single-record
//     reads and upserts. Neither ever reports a store fault to its caller.
//
// # Degraded Mode
//
// When no opener is configured, the capability probe reports false, or the open
// fails, the Handle resolves to a degraded sentinel. From then on every read is
// a miss and every write is skipped. The store is an optimization, never a
// dependency for correctness.
package store
