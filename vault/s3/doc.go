// Package s3 provides an Amazon S3 implementation of vault.Vault, plus a
// DynamoDB-backed catalog of committed archives.
//
// # Usage
//
//	v, err := s3.NewFromDefaultConfig(ctx, "chess-archives", "backups/")
//	if err != nil {
//	    return err
//	}
//
//	mgr, err := archive.NewManager(spec, dir, archive.WithVault(v))
//
// # Features
//
//   - Streaming multipart uploads for large bundles
//   - Automatic pagination for listing
//   - Configurable root prefix for multi-tenant buckets
//   - Optional Catalog with conditional-write commit versions
package s3
