// Package archive uploads collection snapshots to Google Cloud Storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// Upload writes data to a GCS bucket under the given object name.
// It assumes Application Default Credentials are configured (gcloud auth application-default login).
func Upload(ctx context.Context, bucketName, objectName, contentType string, data []byte) error {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("Upload: create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	defer func() {
		// Ensure the writer is closed even on early returns
		_ = w.Close()
	}()

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("Upload: copy to GCS writer: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("Upload: finalize upload: %w", err)
	}

	return nil
}

// SnapshotObjectName builds a dated, unique object name for a CSV
// snapshot, e.g. "exports/2026/02/24/receipts-<uuid>.csv".
func SnapshotObjectName(now time.Time) string {
	return fmt.Sprintf("exports/%s/receipts-%s.csv", now.UTC().Format("2006/01/02"), uuid.New().String())
}
