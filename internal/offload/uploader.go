// Package offload uploads published assets to object storage so they can be
// served from a CDN instead of the application host.
package offload

import (
	"context"
	"fmt"
	"math"
	"mime"
	"path"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"mber/internal/config"
	"mber/internal/manifest"
)

// CacheControl is set on every uploaded object. Published names are content
// hashed, so objects never change under a given key.
const CacheControl = "public, max-age=31536000, immutable"

// Uploader defines the interface for uploading files to a remote store.
type Uploader interface {
	// Upload stores the file at localPath under key and returns its public URL.
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// New builds the Uploader for the configured provider.
func New(ctx context.Context, cfg config.OffloadConfig) (Uploader, error) {
	switch cfg.Provider {
	case "s3", "":
		return NewS3Uploader(ctx, cfg)
	case "minio":
		return NewMinIOUploader(cfg)
	case "local":
		return NewLocalUploader(cfg)
	default:
		return nil, fmt.Errorf("unknown offload provider %q", cfg.Provider)
	}
}

// Key returns the object key for a published path under prefix.
func Key(prefix, published string) string {
	published = manifest.Normalize(published)
	if prefix == "" {
		return published
	}
	return path.Join(prefix, published)
}

// OffloadAssets uploads every hashed asset in m from outputDir. It returns a map
// of logical path to public URL. The first upload error cancels the rest.
func OffloadAssets(ctx context.Context, cfg config.OffloadConfig, upl Uploader, outputDir string, m manifest.AssetManifest) (map[string]string, error) {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	limiter := rate.NewLimiter(limit, int(math.Max(1, cfg.RateLimit)))

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var (
		mu     sync.Mutex
		result = make(map[string]string)
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, logical := range m.Keys() {
		if logical == manifest.SelfPath {
			continue
		}
		published := m.Assets[logical]
		g.Go(func() error {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			localPath := filepath.Join(outputDir, filepath.FromSlash(published))
			url, err := upl.Upload(ctx, localPath, Key(cfg.Prefix, published))
			if err != nil {
				return fmt.Errorf("failed to upload %s: %w", logical, err)
			}
			mu.Lock()
			result[logical] = url
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func contentType(localPath string) string {
	if ct := mime.TypeByExtension(filepath.Ext(localPath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func publicURL(base, key string) string {
	return fmt.Sprintf("%s/%s", base, key)
}
