// Package s3 stores archive bundles in Amazon S3 and records committed
// archives in a DynamoDB catalog.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/RogerMarsh/solentware-base-sub003/vault"
)

// API is the subset of the S3 client used by Vault.
// *s3.Client satisfies it.
type API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// UploadConfig tunes multipart uploads of archive bundles.
type UploadConfig struct {
	// PartSize is the part size for multipart uploads.
	// Default: 8MB (larger than the SDK default of 5MB, bundles are big).
	PartSize int64

	// Concurrency is the number of concurrent part uploads.
	// Default: 5 (matches the SDK default).
	Concurrency int
}

// DefaultUploadConfig returns upload settings suited to archive bundles.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		PartSize:    8 * 1024 * 1024,
		Concurrency: 5,
	}
}

// Vault stores archive objects in an S3 bucket under a root prefix.
// It implements vault.Vault.
type Vault struct {
	client   API
	uploader *manager.Uploader
	bucket   string
	prefix   string
	upload   UploadConfig
}

// Option configures a Vault.
type Option func(*Vault)

// WithUploadConfig overrides the multipart upload settings.
func WithUploadConfig(cfg UploadConfig) Option {
	return func(v *Vault) {
		v.upload = cfg
	}
}

// New creates an S3 vault.
// rootPrefix is prepended to all object names (e.g. "backups/").
func New(client API, bucket, rootPrefix string, opts ...Option) *Vault {
	v := &Vault{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
		upload: DefaultUploadConfig(),
	}

	for _, opt := range opts {
		opt(v)
	}

	v.uploader = manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = v.upload.PartSize
		u.Concurrency = v.upload.Concurrency
	})

	return v
}

// NewFromDefaultConfig creates an S3 vault using the ambient AWS
// configuration (environment, shared config files, instance role).
func NewFromDefaultConfig(ctx context.Context, bucket, rootPrefix string, opts ...Option) (*Vault, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3 vault: load aws config: %w", err)
	}
	return New(s3.NewFromConfig(cfg), bucket, rootPrefix, opts...), nil
}

func (v *Vault) key(name string) string {
	return path.Join(v.prefix, name)
}

// Put streams r into the bucket under name. Large objects are split into
// concurrent multipart uploads, so the size does not need to be known up
// front.
func (v *Vault) Put(ctx context.Context, name string, r io.Reader, _ int64) error {
	_, err := v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(name)),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("s3 vault: put %q: %w", name, err)
	}
	return nil
}

// Get opens the named object for reading.
func (v *Vault) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := v.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3 vault: get %q: %w", name, vault.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 vault: get %q: %w", name, err)
	}
	return resp.Body, nil
}

// Delete removes the named object. S3 treats deleting an absent key as
// success, matching the vault contract.
func (v *Vault) Delete(ctx context.Context, name string) error {
	_, err := v.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("s3 vault: delete %q: %w", name, err)
	}
	return nil
}

// List returns the names of all objects with the given prefix, sorted,
// with the root prefix stripped.
func (v *Vault) List(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(v.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(v.bucket),
		Prefix: aws.String(v.key(prefix)),
	})

	var names []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 vault: list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), v.prefix)
			name = strings.TrimPrefix(name, "/")
			if name != "" {
				names = append(names, name)
			}
		}
	}

	sort.Strings(names)
	return names, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}
