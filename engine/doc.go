// Package engine defines the capability contract the library requires from
// an underlying storage engine, together with two reference adapters.
//
// The contract is deliberately small: open a named ordered key/value
// namespace, get/put/delete by key, and traverse in key order with seek.
// Everything engine-specific stays behind it; the segment store depends on
// exactly this and nothing more.
//
// # Adapters
//
//   - [Memory]: btree-backed, volatile; cursors iterate a copy-on-write
//     clone so mutation during traversal is safe. Used in tests and for
//     scratch databases.
//   - [Bolt]: bbolt-backed, one database file per namespace, so each
//     namespace is exactly one on-disk artifact under the archive naming
//     contract.
//
// Adapter failures other than an honest key miss surface as [*EngineError].
// The library never retries them; retry policy belongs to the caller.
package engine
