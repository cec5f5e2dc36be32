package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"
)

// UploadArchive keeps a copy of every uploaded spreadsheet in one bucket,
// under <source>/<yyyy>/<mm>/.
type UploadArchive struct {
	store  StorageService
	bucket string
	now    func() time.Time
}

func NewUploadArchive(store StorageService, bucket string) *UploadArchive {
	return &UploadArchive{store: store, bucket: bucket, now: time.Now}
}

// Archive stores content and returns its object key.
func (a *UploadArchive) Archive(ctx context.Context, sourceID, fileName string, content []byte) (string, error) {
	if err := a.store.ValidateFileSize(int64(len(content))); err != nil {
		return "", err
	}
	now := a.now().UTC()
	folder := path.Join(sourceID, now.Format("2006"), now.Format("01"))
	key, err := a.store.UploadFile(ctx, a.bucket, folder, fileName, ContentTypeFor(fileName), bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("archive upload: %w", err)
	}
	return key, nil
}

// Open streams an archived file. The caller closes it.
func (a *UploadArchive) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return a.store.DownloadFile(ctx, a.bucket, key)
}

// DownloadURL presigns a download link for an archived file.
func (a *UploadArchive) DownloadURL(ctx context.Context, key string) (*PresignedURL, error) {
	return a.store.GenerateDownloadURL(ctx, a.bucket, key)
}

// Remove deletes an archived file.
func (a *UploadArchive) Remove(ctx context.Context, key string) error {
	return a.store.DeleteObject(ctx, a.bucket, key)
}
