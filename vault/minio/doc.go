// Package minio provides a vault.Vault implementation using the MinIO
// client, for MinIO itself and other S3-compatible stores (Ceph, Garage,
// SeaweedFS).
//
// # Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    return err
//	}
//
//	v := miniovault.New(client, "chess-archives", "backups/")
//	mgr, err := archive.NewManager(spec, dir, archive.WithVault(v))
//
// Air-gap friendly: no AWS dependencies required.
package minio
