// Package config builds the immutable configuration for one mber invocation.
// Values come from defaults, mber.toml, .env / MBER_* variables and CLI flags,
// in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"mber/internal/hashing"
)

// Environment constants
const (
	EnvProduction  = "production"
	EnvStaging     = "staging"
	EnvDevelopment = "development"
	EnvTest        = "test"
)

// Defaults
const (
	DefaultStagingDir  = "tmp"
	DefaultOutputDir   = "dist"
	DefaultPublicDir   = "public"
	DefaultHistoryPath = ".mber/history.db"
	DefaultOffloadRate = 20
)

// HistoryConfig controls the build history store.
type HistoryConfig struct {
	Enabled bool
	Path    string // absolute
}

// OffloadConfig describes the object storage target for published assets.
type OffloadConfig struct {
	Provider    string // "s3", "minio" or "local"
	Bucket      string // directory for "local"
	Region      string
	Endpoint    string
	Prefix      string
	PublicURL   string
	AccessKey   string
	SecretKey   string
	UseSSL      bool
	Concurrency int
	RateLimit   float64 // uploads per second, 0 means unlimited
}

// Config is the resolved configuration for a build. Treat it as read-only.
type Config struct {
	ProjectRoot     string
	ApplicationName string
	Environment     string

	// Feature flags
	Testing  bool
	Fastboot bool
	Watch    bool
	Offload  bool

	// Directories, absolute
	StagingDir string
	OutputDir  string
	PublicDir  string

	HashAlgorithm hashing.Algorithm

	// Env is the selected application environment from config/environment.json.
	Env *AppEnv

	History       HistoryConfig
	OffloadTarget OffloadConfig

	MetricsFile string
	JSONLogs    bool
	Debug       bool
}

// Overrides carries CLI flag values. Nil pointers and empty strings mean "not set".
type Overrides struct {
	ProjectRoot string
	Environment string
	Testing     *bool
	Fastboot    *bool
	Watch       *bool
	Offload     *bool
	HashAlgo    string
	OutputDir   string
	MetricsFile string
	JSONLogs    *bool
	Debug       *bool
}

// ShouldBuildTests reports whether the test runner page is part of this build.
func (c *Config) ShouldBuildTests() bool {
	return c.Testing && c.Environment != EnvProduction
}

// IsProduction reports whether the build targets production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Load resolves the configuration for the project containing startDir.
func Load(startDir string, o Overrides) (*Config, error) {
	root := o.ProjectRoot
	if root == "" {
		found, err := FindProjectRoot(startDir)
		if err != nil {
			return nil, err
		}
		root = found
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	pf, err := LoadProjectFile(root)
	if err != nil {
		return nil, err
	}

	dotenv, err := godotenv.Read(filepath.Join(root, ".env"))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}
	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return dotenv[key]
	}

	cfg := &Config{ProjectRoot: root}
	cfg.ApplicationName = firstNonEmpty(pf.Project.Name, packageName(root), filepath.Base(root))
	cfg.Environment = firstNonEmpty(o.Environment, lookup("MBER_ENV"), pf.Project.Environment, EnvDevelopment)

	cfg.Testing = resolveBool(false, pf.Build.Testing, lookup("MBER_TESTING"), o.Testing)
	cfg.Fastboot = resolveBool(true, pf.Fastboot.Enabled, lookup("MBER_FASTBOOT"), o.Fastboot)
	cfg.Watch = resolveBool(false, nil, lookup("MBER_WATCH"), o.Watch)
	cfg.Offload = resolveBool(false, nil, lookup("MBER_OFFLOAD"), o.Offload)
	cfg.JSONLogs = resolveBool(false, nil, lookup("MBER_JSON_LOGS"), o.JSONLogs)
	cfg.Debug = resolveBool(false, nil, lookup("MBER_DEBUG"), o.Debug)
	if cfg.IsProduction() {
		cfg.Testing = false
	}

	cfg.StagingDir = absUnder(root, firstNonEmpty(pf.Build.Staging, DefaultStagingDir))
	cfg.OutputDir = absUnder(root, firstNonEmpty(o.OutputDir, lookup("MBER_OUTPUT"), pf.Build.Output, DefaultOutputDir))
	cfg.PublicDir = absUnder(root, firstNonEmpty(pf.Build.Public, DefaultPublicDir))

	cfg.HashAlgorithm, err = hashing.ParseAlgorithm(firstNonEmpty(o.HashAlgo, lookup("MBER_HASH"), pf.Build.Hash))
	if err != nil {
		return nil, err
	}

	cfg.History = HistoryConfig{
		Enabled: resolveBool(false, pf.History.Enabled, lookup("MBER_HISTORY"), nil),
		Path:    absUnder(root, firstNonEmpty(lookup("MBER_HISTORY_PATH"), pf.History.Path, DefaultHistoryPath)),
	}

	off := pf.Offload
	cfg.OffloadTarget = OffloadConfig{
		Provider:    strings.ToLower(firstNonEmpty(lookup("MBER_OFFLOAD_PROVIDER"), off.Provider, "s3")),
		Bucket:      firstNonEmpty(lookup("MBER_OFFLOAD_BUCKET"), off.Bucket),
		Region:      firstNonEmpty(lookup("MBER_OFFLOAD_REGION"), lookup("AWS_REGION"), off.Region, "us-east-1"),
		Endpoint:    firstNonEmpty(lookup("MBER_OFFLOAD_ENDPOINT"), off.Endpoint),
		Prefix:      strings.Trim(firstNonEmpty(lookup("MBER_OFFLOAD_PREFIX"), off.Prefix), "/"),
		PublicURL:   strings.TrimRight(firstNonEmpty(lookup("MBER_OFFLOAD_PUBLIC_URL"), off.PublicURL), "/"),
		AccessKey:   firstNonEmpty(lookup("MBER_OFFLOAD_ACCESS_KEY"), lookup("AWS_ACCESS_KEY_ID")),
		SecretKey:   firstNonEmpty(lookup("MBER_OFFLOAD_SECRET_KEY"), lookup("AWS_SECRET_ACCESS_KEY")),
		UseSSL:      resolveBool(true, off.UseSSL, lookup("MBER_OFFLOAD_USE_SSL"), nil),
		Concurrency: off.Concurrency,
		RateLimit:   off.RateLimit,
	}
	if cfg.OffloadTarget.Provider == "local" && cfg.OffloadTarget.Bucket != "" {
		cfg.OffloadTarget.Bucket = absUnder(root, cfg.OffloadTarget.Bucket)
	}
	if cfg.OffloadTarget.Concurrency <= 0 {
		cfg.OffloadTarget.Concurrency = 4
	}
	if cfg.OffloadTarget.RateLimit == 0 {
		cfg.OffloadTarget.RateLimit = DefaultOffloadRate
	}

	if mf := firstNonEmpty(o.MetricsFile, lookup("MBER_METRICS_FILE")); mf != "" {
		cfg.MetricsFile = absUnder(root, mf)
	}

	cfg.Env, err = LoadAppEnv(root, cfg.Environment, cfg.ApplicationName)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveBool(def bool, file *bool, env string, flag *bool) bool {
	value := def
	if file != nil {
		value = *file
	}
	if env != "" {
		if parsed, err := strconv.ParseBool(env); err == nil {
			value = parsed
		}
	}
	if flag != nil {
		value = *flag
	}
	return value
}

func absUnder(root, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(root, path)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
