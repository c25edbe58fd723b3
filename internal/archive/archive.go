// Package archive stores receipt images in a GCS bucket so previews and
// audits can reference them after the in-memory task is gone. It assumes
// Application Default Credentials are configured (gcloud auth
// application-default login).
package archive

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/mizutanik/kakeibo/internal/tasks"
)

const uploadTimeout = 2 * time.Minute

// Archive writes task images to a bucket and reads them back by URI.
type Archive struct {
	client *storage.Client
	bucket string
}

var _ tasks.PreviewStore = (*Archive)(nil)

// New creates an archive over the given bucket.
func New(ctx context.Context, bucket string) (*Archive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: creating storage client: %w", err)
	}
	return &Archive{client: client, bucket: bucket}, nil
}

// StorePreview uploads one task image and returns its gs:// URI.
func (a *Archive) StorePreview(ctx context.Context, taskID string, index int, f tasks.File) (string, error) {
	object := fmt.Sprintf("previews/%s/%d-%s", taskID, index, path.Base(f.Name))

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	if f.ContentType != "" {
		w.ContentType = f.ContentType
	}
	if _, err := w.Write(f.Data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("archive: writing %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("archive: finalizing %s: %w", object, err)
	}

	return fmt.Sprintf("gs://%s/%s", a.bucket, object), nil
}

// Fetch downloads the bytes behind a gs:// URI produced by StorePreview.
func (a *Archive) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := splitURI(uri)
	if err != nil {
		return nil, err
	}

	rc, err := a.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: reading %s: %w", uri, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("archive: reading bytes of %s: %w", uri, err)
	}
	return data, nil
}

// Close releases the underlying storage client.
func (a *Archive) Close() error {
	return a.client.Close()
}

// splitURI breaks "gs://bucket/path/to/object" into its parts.
func splitURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("archive: invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", fmt.Errorf("archive: invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}
