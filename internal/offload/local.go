package offload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"mber/internal/config"
)

// LocalUploader implements the Uploader interface by copying into a directory,
// typically a mounted CDN origin.
type LocalUploader struct {
	BasePath  string
	PublicURL string
}

// NewLocalUploader creates the target directory if needed.
func NewLocalUploader(cfg config.OffloadConfig) (*LocalUploader, error) {
	if err := os.MkdirAll(cfg.Bucket, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create offload directory: %w", err)
	}
	base := cfg.PublicURL
	if base == "" {
		base = "file://" + filepath.ToSlash(cfg.Bucket)
	}
	return &LocalUploader{BasePath: cfg.Bucket, PublicURL: base}, nil
}

func (u *LocalUploader) Upload(ctx context.Context, localPath, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	in, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", localPath, err)
	}
	defer in.Close()

	fullPath := filepath.Join(u.BasePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	out, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(fullPath) // Clean up on error
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}

	return publicURL(u.PublicURL, key), nil
}
