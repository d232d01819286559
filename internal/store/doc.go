// Package store is a persistent, content-addressed block store for
// directed acyclic graphs of immutable, hash-identified blocks, built on
// an embedded SQLite database.
//
// Blocks carry opaque payloads and an ordered set of child hashes
// (links). The store supports durable named pins, transient
// (crash-safe) session pins, reachability queries over the link graph,
// and incremental, bounded-time garbage collection driven by a
// pluggable CacheTracker eviction policy.
//
// Block encoding and hash validation are the caller's responsibility:
// PutBlock takes a hash, payload, and link hashes exactly as supplied,
// with no recomputation or verification.
package store
