package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/tasktrack/apiserver/config"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const attachmentCacheControl = "private, no-store"

// GCSClient keeps attachment bodies in a private Google Cloud Storage bucket.
type GCSClient struct {
	client    *storage.Client
	bucket    *storage.BucketHandle
	name      string
	projectID string
}

// NewGCSClient constructs a GCS client from config. Without a credentials
// file the SDK falls back to application default credentials.
func NewGCSClient(ctx context.Context, cfg config.GCSConfig) (*GCSClient, error) {
	name := strings.TrimSpace(cfg.Bucket)
	if name == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}

	return &GCSClient{
		client:    client,
		bucket:    client.Bucket(name),
		name:      name,
		projectID: strings.TrimSpace(cfg.ProjectID),
	}, nil
}

// EnsureBucket creates the bucket with uniform access and public access
// prevention when it does not exist yet.
func (g *GCSClient) EnsureBucket(ctx context.Context) error {
	_, err := g.bucket.Attrs(ctx)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, storage.ErrBucketNotExist):
		return err
	case g.projectID == "":
		return errors.New("gcs project id is required to create bucket")
	}

	return g.bucket.Create(ctx, g.projectID, &storage.BucketAttrs{
		UniformBucketLevelAccess: storage.UniformBucketLevelAccess{Enabled: true},
		PublicAccessPrevention:   storage.PublicAccessPreventionEnforced,
	})
}

// Put streams r into the object. A body whose length differs from a
// non-negative size is discarded and reported as ErrSizeMismatch.
func (g *GCSClient) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer := g.bucket.Object(key).NewWriter(writeCtx)
	writer.ChunkSize = uploadChunkSize(size)
	writer.CacheControl = attachmentCacheControl
	if contentType = strings.TrimSpace(contentType); contentType != "" {
		writer.ContentType = contentType
	}

	written, err := io.Copy(writer, r)
	if err == nil && size >= 0 && written != size {
		err = fmt.Errorf("%w: wrote %d of %d bytes", ErrSizeMismatch, written, size)
	}
	if err != nil {
		// Cancelling before Close aborts the upload.
		cancel()
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

func (g *GCSClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := g.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return reader, err
}

// Delete treats an already missing object as deleted.
func (g *GCSClient) Delete(ctx context.Context, key string) error {
	err := g.bucket.Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (g *GCSClient) Bucket() string {
	return g.name
}

// uploadChunkSize sends bodies known to fit in one chunk as a single
// request instead of a resumable upload.
func uploadChunkSize(size int64) int {
	if size >= 0 && size < googleapi.DefaultUploadChunkSize {
		return 0
	}
	return googleapi.DefaultUploadChunkSize
}
