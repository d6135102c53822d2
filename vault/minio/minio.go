package minio

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/RogerMarsh/solentware-base-sub003/vault"
)

// Vault stores archive objects in a MinIO bucket. It implements
// vault.Vault and works against any S3-compatible endpoint.
type Vault struct {
	client *minio.Client
	bucket string
	prefix string
}

// New creates a MinIO vault.
// rootPrefix is prepended to all object names (e.g. "backups/").
func New(client *minio.Client, bucket, rootPrefix string) *Vault {
	return &Vault{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

func (v *Vault) key(name string) string {
	return path.Join(v.prefix, name)
}

// Put streams r into the bucket under name. Pass size -1 when the length
// is unknown; the client falls back to a multipart upload.
func (v *Vault) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	_, err := v.client.PutObject(ctx, v.bucket, v.key(name), r, size, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("minio vault: put %q: %w", name, err)
	}
	return nil
}

// Get opens the named object for reading.
func (v *Vault) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := v.client.GetObject(ctx, v.bucket, v.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio vault: get %q: %w", name, err)
	}

	// GetObject is lazy; stat so an absent object surfaces here rather
	// than at the first read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNotFound(err) {
			return nil, fmt.Errorf("minio vault: get %q: %w", name, vault.ErrNotFound)
		}
		return nil, fmt.Errorf("minio vault: get %q: %w", name, err)
	}

	return obj, nil
}

// Delete removes the named object. Absent objects are ignored.
func (v *Vault) Delete(ctx context.Context, name string) error {
	err := v.client.RemoveObject(ctx, v.bucket, v.key(name), minio.RemoveObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("minio vault: delete %q: %w", name, err)
	}
	return nil
}

// List returns the names of all objects with the given prefix, sorted,
// with the root prefix stripped.
func (v *Vault) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for obj := range v.client.ListObjects(ctx, v.bucket, minio.ListObjectsOptions{
		Prefix:    v.key(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("minio vault: list %q: %w", prefix, obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, v.prefix)
		name = strings.TrimPrefix(name, "/")
		if name != "" {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names, nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
