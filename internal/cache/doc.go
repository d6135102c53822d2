// Package cache provides a byte-bounded LRU for segment payloads.
//
// The PayloadCache keeps recently read (store, key) payloads so repeated
// index lookups under the same key avoid a store round trip. Capacity is
// counted in payload bytes, optionally charged against a shared
// resource.Controller memory budget.
//
// Stored and returned slices are treated as immutable by contract. A nil
// *PayloadCache is valid and caches nothing.
package cache
