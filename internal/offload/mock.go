package offload

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// MockUploader implements the Uploader interface for tests and dry runs.
type MockUploader struct {
	BaseURL string
	// FailOn makes Upload fail for the given key.
	FailOn string

	mu       sync.Mutex
	uploaded map[string]string // key -> local path
}

func (m *MockUploader) Upload(ctx context.Context, localPath, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if key == m.FailOn {
		return "", fmt.Errorf("mock failure for %s", key)
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", localPath, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploaded == nil {
		m.uploaded = make(map[string]string)
	}
	m.uploaded[key] = localPath

	baseURL := m.BaseURL
	if baseURL == "" {
		baseURL = "https://cdn.example.com"
	}
	return publicURL(baseURL, key), nil
}

// Uploaded returns a copy of key -> local path for every successful upload.
func (m *MockUploader) Uploaded() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.uploaded))
	for k, v := range m.uploaded {
		out[k] = v
	}
	return out
}
