// Package vault abstracts off-box storage for archive bundles.
//
// The archive manager writes bundles and guard files to the local
// filesystem first; when a Vault is configured it then uploads both, so a
// restore can fall back to the vault when the local copy is gone.
//
// # Implementations
//
//   - Memory: in-memory map, for tests
//   - s3.Vault: Amazon S3 (streaming multipart uploads, paginated lists)
//   - minio.Vault: MinIO and other S3-compatible stores
//
// Object names are flat strings; implementations may map them onto keys
// under a configured root prefix. All implementations must report a missing
// object from Get as an error satisfying errors.Is(err, ErrNotFound).
package vault
