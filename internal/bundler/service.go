package bundler

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mber/internal/config"
	"mber/internal/fastboot"
	"mber/internal/hashing"
	"mber/internal/history"
	"mber/internal/logging"
	"mber/internal/manifest"
	"mber/internal/metrics"
	"mber/internal/offload"
	"mber/internal/publish"
	"mber/internal/report"
	"mber/internal/watch"
)

// Service runs builds for one project. Builds on the same Service are
// serialized; two Services must not share an output directory.
type Service struct {
	cfg      *config.Config
	hasher   *hashing.Hasher
	cache    *hashing.DigestCache
	metrics  *metrics.Metrics
	history  *history.Store
	uploader offload.Uploader
	logger   *zap.Logger
	out      io.Writer
	mu       sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the base logger. Each build adds a build_id field.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics records build metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithHistory records each build and reports size deltas against the previous one.
func WithHistory(store *history.Store) Option {
	return func(s *Service) { s.history = store }
}

// WithUploader offloads published assets after each build when cfg.Offload is set.
func WithUploader(u offload.Uploader) Option {
	return func(s *Service) { s.uploader = u }
}

// WithOutput sets where the size report is printed. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(s *Service) { s.out = w }
}

// WithDigestCache shares a digest cache, typically across watch rebuilds.
func WithDigestCache(cache *hashing.DigestCache) Option {
	return func(s *Service) { s.cache = cache }
}

// NewService creates a bundler service
func NewService(cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{cfg: cfg, out: os.Stdout}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.cache == nil {
		cache, err := hashing.NewDigestCache(hashing.DefaultCacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}

	hasher, err := hashing.New(cfg.HashAlgorithm, s.cache)
	if err != nil {
		return nil, err
	}
	s.hasher = hasher
	return s, nil
}

// GetCacheStats returns digest cache statistics
func (s *Service) GetCacheStats() hashing.CacheStats {
	return s.cache.Stats()
}

// Build runs Reset, Discover, Hash, Publish, Describe and Report in order and
// stops at the first fatal error, which is a *StageError. The output directory
// is invalid until Build returns without error.
func (s *Service) Build(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{BuildID: uuid.NewString()}
	logger := logging.ForBuild(s.logger, result.BuildID)
	start := time.Now()

	logger.Info("BUNDLING: " + s.cfg.ApplicationName + "...")
	err := s.run(ctx, logger, result, start)
	result.Duration = time.Since(start)

	if s.metrics != nil {
		s.metrics.RecordBuild(err, result.Duration)
		stats := s.cache.Stats()
		s.metrics.RecordCache(stats.Hits, stats.Misses, stats.Size)
		if s.cfg.MetricsFile != "" {
			if werr := s.metrics.WriteTextfile(s.cfg.MetricsFile); werr != nil {
				logger.Warn("cannot write metrics textfile", zap.Error(werr))
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) run(ctx context.Context, logger *zap.Logger, result *Result, start time.Time) error {
	cfg := s.cfg

	var (
		entries  []EntryPoint
		files    []string
		hashed   map[string]string
		contents map[string][]byte
		previous map[string]int64
	)

	// Reset
	if err := s.stage(logger, StageReset, func() error {
		if err := publish.ResetOutput(cfg.OutputDir); err != nil {
			return &StageError{Stage: StageReset, Path: cfg.OutputDir, Err: err}
		}
		return nil
	}); err != nil {
		return err
	}

	// Discover
	if err := s.stage(logger, StageDiscover, func() error {
		entries = EntryPoints(cfg)
		if err := discover(entries); err != nil {
			return err
		}
		files = BuildFileSet(entries)
		return nil
	}); err != nil {
		return err
	}

	// Hash
	if err := s.stage(logger, StageHash, func() error {
		var err error
		hashed, contents, err = s.hashFiles(files)
		return err
	}); err != nil {
		return err
	}

	// Publish
	if err := s.stage(logger, StagePublish, func() error {
		documents := make([]publish.Document, 0, len(entries))
		for _, entry := range entries {
			documents = append(documents, publish.Document{
				Name:       string(entry.Kind),
				TargetPath: entry.TargetPath,
				Content:    entry.content,
			})
		}

		writer := publish.NewWriter(cfg.OutputDir, cfg.PublicDir, logger)
		if err := writer.Publish(documents, hashed, contents); err != nil {
			return &StageError{Stage: StagePublish, Err: err}
		}

		result.Manifest = manifest.Build(hashed)
		if err := manifest.Write(cfg.OutputDir, result.Manifest); err != nil {
			return &StageError{Stage: StagePublish, Path: manifest.SelfPath, Err: err}
		}

		if s.metrics != nil {
			var total int64
			for _, content := range contents {
				total += int64(len(content))
			}
			s.metrics.RecordPublished(len(result.Manifest.Published()), total)
		}
		return nil
	}); err != nil {
		return err
	}

	// Describe
	if cfg.Fastboot {
		if err := s.stage(logger, StageDescribe, func() error {
			descriptor, err := fastboot.Build(result.Manifest, cfg)
			if err != nil {
				return &StageError{Stage: StageDescribe, Err: err}
			}
			if err := fastboot.Write(cfg.OutputDir, descriptor); err != nil {
				return &StageError{Stage: StageDescribe, Path: fastboot.FileName, Err: err}
			}
			result.Descriptor = descriptor
			return nil
		}); err != nil {
			return err
		}
	}

	// Report
	if err := s.stage(logger, StageReport, func() error {
		logicalOf := make(map[string]string, len(result.Manifest.Assets))
		for logical, published := range result.Manifest.Assets {
			logicalOf[published] = logical
		}

		reports, err := report.Measure(ctx, cfg.OutputDir, logicalOf)
		if err != nil {
			logger.Warn("cannot measure published assets", zap.Error(err))
			return nil
		}
		for _, r := range reports {
			if r.Err != nil {
				logger.Warn("cannot compute compressed size", zap.String("file", r.Name), zap.Error(r.Err))
			}
		}
		result.Files = reports
		previous = s.previousSizes(ctx, logger)
		return nil
	}); err != nil {
		return err
	}

	logger.Info(fmt.Sprintf("BUNDLED: %s in %s", cfg.ApplicationName,
		report.FormatTimePassed(time.Since(start).Milliseconds())))
	fmt.Fprintf(s.out, "Built project successfully. Stored in %q:\n", cfg.OutputDir)
	report.Print(s.out, result.Files, previous)

	// Offload
	if cfg.Offload && s.uploader != nil {
		if err := s.stage(logger, StageOffload, func() error {
			urls, err := offload.OffloadAssets(ctx, cfg.OffloadTarget, s.uploader, cfg.OutputDir, result.Manifest)
			if s.metrics != nil {
				s.metrics.RecordUpload(cfg.OffloadTarget.Provider, err)
			}
			if err != nil {
				return &StageError{Stage: StageOffload, Err: err}
			}
			result.Offloaded = urls
			logger.Info("offloaded assets", zap.Int("files", len(urls)), zap.String("bucket", cfg.OffloadTarget.Bucket))
			return nil
		}); err != nil {
			return err
		}
	}

	s.recordHistory(ctx, logger, result, time.Since(start))
	logger.Debug("stage", zap.String("stage", string(StageDone)))
	return nil
}

// stage runs fn and records its duration.
func (s *Service) stage(logger *zap.Logger, stage Stage, fn func() error) error {
	logger.Debug("stage", zap.String("stage", string(stage)))
	start := time.Now()
	err := fn()
	if s.metrics != nil {
		s.metrics.RecordStage(string(stage), time.Since(start))
	}
	return err
}

// hashFiles loads every logical path from staging and derives its published
// path. The maps are keyed by logical path as referenced in the HTML.
func (s *Service) hashFiles(files []string) (map[string]string, map[string][]byte, error) {
	hashed := make(map[string]string, len(files))
	contents := make(map[string][]byte, len(files))

	for _, logical := range files {
		if err := hashing.ValidateExtension(logical); err != nil {
			return nil, nil, &StageError{Stage: StageHash, Path: logical, Err: err}
		}

		source := stagedPath(s.cfg.StagingDir, logical)
		info, err := os.Stat(source)
		if err != nil {
			return nil, nil, &StageError{Stage: StageHash, Path: logical, Err: fmt.Errorf("%w: %w", ErrStagingRead, err)}
		}
		if info.IsDir() {
			return nil, nil, &StageError{Stage: StageHash, Path: logical, Err: fmt.Errorf("%w: %s is a directory", ErrStagingRead, source)}
		}
		content, err := os.ReadFile(source)
		if err != nil {
			return nil, nil, &StageError{Stage: StageHash, Path: logical, Err: fmt.Errorf("%w: %w", ErrStagingRead, err)}
		}

		published, err := s.hasher.DerivePublishedPathCached(logical, content)
		if err != nil {
			return nil, nil, &StageError{Stage: StageHash, Path: logical, Err: err}
		}
		hashed[logical] = published
		contents[logical] = content
	}
	return hashed, contents, nil
}

func (s *Service) previousSizes(ctx context.Context, logger *zap.Logger) map[string]int64 {
	if s.history == nil {
		return nil
	}
	sizes, err := s.history.PreviousSizes(ctx, s.cfg.Environment)
	if err != nil {
		logger.Warn("cannot load build history", zap.Error(err))
		return nil
	}
	return sizes
}

func (s *Service) recordHistory(ctx context.Context, logger *zap.Logger, result *Result, duration time.Duration) {
	if s.history == nil {
		return
	}
	build := &history.Build{
		BuildID:     result.BuildID,
		Environment: s.cfg.Environment,
		DurationMS:  duration.Milliseconds(),
		TotalSize:   report.TotalSize(result.Files),
	}
	for _, f := range result.Files {
		if f.Logical == "" {
			continue
		}
		build.Files = append(build.Files, history.BuildFile{
			LogicalPath:   f.Logical,
			PublishedPath: f.Name,
			Size:          f.Size,
			GzipSize:      f.GzipSize,
		})
	}
	if err := s.history.Record(ctx, build); err != nil {
		logger.Warn("cannot record build history", zap.Error(err))
	}
}

// Watch builds once, then rebuilds on every change under the staging directory
// until ctx is cancelled. Rebuild failures are logged and do not stop the loop.
func (s *Service) Watch(ctx context.Context, debounce time.Duration) error {
	if _, err := s.Build(ctx); err != nil {
		s.logger.Error("build failed", zap.Error(err))
	}

	w := watch.New(s.cfg.StagingDir, debounce, func(ctx context.Context) error {
		_, err := s.Build(ctx)
		return err
	}, s.logger, s.cfg.OutputDir)
	if err := w.Start(); err != nil {
		return fmt.Errorf("cannot watch %s: %w", s.cfg.StagingDir, err)
	}
	s.logger.Info("watching for changes", zap.String("dir", s.cfg.StagingDir))
	return w.Run(ctx)
}
