// Package archive captures a file's artifacts as one recoverable unit.
//
// A deferred update rewrites index segments in place with no transaction
// protecting it, so the database archives the file first and restores it if
// the run fails. The unit of capture is the file's whole artifact set: a
// per-field file bundles every field store plus its ebm and segment stores
// into one tar.zst; a combined-layout file compresses its single store into
// an lz4 frame.
//
// Validity hangs off a small guard artifact written after the bundle: JSON
// naming the bundle, its CRC-32C, and the member sizes. Restore refuses to
// run without a guard and verifies the checksum before touching any live
// artifact. Writes go to a temp name and are renamed into place after sync,
// so an interrupted archive or restore never leaves a half-written artifact
// under a live name.
//
// With a vault configured the bundle and guard are also kept off-box, and
// Restore falls back to downloading when the local bundle is gone.
package archive
