package offload

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"mber/internal/config"
)

// MinIOUploader implements the Uploader interface using MinIO SDK
type MinIOUploader struct {
	Client    *minio.Client
	Bucket    string
	PublicURL string
}

// NewMinIOUploader initializes a MinIO client.
func NewMinIOUploader(cfg config.OffloadConfig) (*MinIOUploader, error) {
	// The client expects host:port
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	base := cfg.PublicURL
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, endpoint, cfg.Bucket)
	}

	return &MinIOUploader{Client: client, Bucket: cfg.Bucket, PublicURL: base}, nil
}

func (u *MinIOUploader) Upload(ctx context.Context, localPath, key string) (string, error) {
	// MinIO SDK handles multipart automatically for large files
	_, err := u.Client.FPutObject(ctx, u.Bucket, key, localPath, minio.PutObjectOptions{
		ContentType:  contentType(localPath),
		CacheControl: CacheControl,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	return publicURL(u.PublicURL, key), nil
}
