package offload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mber/internal/config"
	"mber/internal/manifest"
)

func publishedTree(t *testing.T) (string, manifest.AssetManifest) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	for _, name := range []string{"assets/application-aa.js", "assets/vendor-bb.js", "assets/application-cc.css"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, filepath.FromSlash(name)), []byte(name), 0o644))
	}
	m := manifest.Build(map[string]string{
		"/assets/application.js":  "/assets/application-aa.js",
		"/assets/vendor.js":       "/assets/vendor-bb.js",
		"/assets/application.css": "/assets/application-cc.css",
	})
	return dir, m
}

func TestOffloadAssets(t *testing.T) {
	dir, m := publishedTree(t)
	mock := &MockUploader{BaseURL: "https://cdn.test"}
	cfg := config.OffloadConfig{Prefix: "frontend/v1", Concurrency: 2}

	urls, err := OffloadAssets(context.Background(), cfg, mock, dir, m)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"assets/application.js":  "https://cdn.test/frontend/v1/assets/application-aa.js",
		"assets/vendor.js":       "https://cdn.test/frontend/v1/assets/vendor-bb.js",
		"assets/application.css": "https://cdn.test/frontend/v1/assets/application-cc.css",
	}, urls)

	uploaded := mock.Uploaded()
	assert.Len(t, uploaded, 3)
	assert.NotContains(t, uploaded, "frontend/v1/"+manifest.SelfPath)
	assert.Equal(t, filepath.Join(dir, "assets", "vendor-bb.js"), uploaded["frontend/v1/assets/vendor-bb.js"])
}

func TestOffloadAssetsFailure(t *testing.T) {
	dir, m := publishedTree(t)
	mock := &MockUploader{FailOn: "assets/vendor-bb.js"}

	_, err := OffloadAssets(context.Background(), config.OffloadConfig{Concurrency: 1, RateLimit: 100}, mock, dir, m)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "assets/vendor.js")
}

func TestOffloadAssetsMissingFile(t *testing.T) {
	dir, m := publishedTree(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "assets", "application-aa.js")))

	_, err := OffloadAssets(context.Background(), config.OffloadConfig{}, &MockUploader{}, dir, m)
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "assets/app-1.js", Key("", "/assets/app-1.js"))
	assert.Equal(t, "cdn/assets/app-1.js", Key("cdn", "assets/app-1.js"))
}

func TestContentType(t *testing.T) {
	assert.Contains(t, contentType("a.css"), "text/css")
	assert.Equal(t, "application/octet-stream", contentType("a.unknownext"))
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), config.OffloadConfig{Provider: "ftp"})
	assert.Error(t, err)
}

func TestNewMinIOUploader(t *testing.T) {
	upl, err := New(context.Background(), config.OffloadConfig{
		Provider:  "minio",
		Endpoint:  "http://localhost:9000",
		Bucket:    "assets",
		AccessKey: "minio",
		SecretKey: "minio123",
	})
	require.NoError(t, err)
	minioUpl, ok := upl.(*MinIOUploader)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:9000/assets", minioUpl.PublicURL)
}

func TestLocalUploader(t *testing.T) {
	dir, m := publishedTree(t)
	target := filepath.Join(t.TempDir(), "origin")

	upl, err := New(context.Background(), config.OffloadConfig{Provider: "local", Bucket: target, PublicURL: "https://static.test"})
	require.NoError(t, err)

	urls, err := OffloadAssets(context.Background(), config.OffloadConfig{Prefix: "v1", Concurrency: 2}, upl, dir, m)
	require.NoError(t, err)
	assert.Equal(t, "https://static.test/v1/assets/vendor-bb.js", urls["assets/vendor.js"])

	data, err := os.ReadFile(filepath.Join(target, "v1", "assets", "vendor-bb.js"))
	require.NoError(t, err)
	assert.Equal(t, "assets/vendor-bb.js", string(data))
}
