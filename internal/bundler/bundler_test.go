// Package bundler - Tests for the bundler package
package bundler

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"mber/internal/config"
	"mber/internal/fastboot"
	"mber/internal/hashing"
	"mber/internal/history"
	"mber/internal/manifest"
	"mber/internal/metrics"
	"mber/internal/offload"
)

func md5Hex(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return string(data)
}

// newProject stages the example scenario: application.js "X" and vendor.js "Y"
// referenced by index.html.
func newProject(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		ProjectRoot:     root,
		ApplicationName: "dummyapp",
		Environment:     config.EnvDevelopment,
		Fastboot:        true,
		StagingDir:      filepath.Join(root, "tmp"),
		OutputDir:       filepath.Join(root, "dist"),
		PublicDir:       filepath.Join(root, "public"),
		HashAlgorithm:   hashing.MD5,
		Env:             config.NewAppEnv(config.EnvDevelopment, "dummyapp"),
	}

	writeFile(t, filepath.Join(cfg.StagingDir, "assets", "application.js"), "X")
	writeFile(t, filepath.Join(cfg.StagingDir, "assets", "vendor.js"), "Y")
	writeFile(t, filepath.Join(cfg.StagingDir, "index.html"), `<!DOCTYPE html>
<html>
  <head>
    <link rel="stylesheet" href="https://fonts.example.com/font.css">
  </head>
  <body>
    <script src="/assets/vendor.js"></script>
    <script src="/assets/application.js"></script>
    <script src="//cdn.example.com/analytics.js"></script>
  </body>
</html>`)
	return cfg
}

func newService(t *testing.T, cfg *config.Config, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithOutput(&bytes.Buffer{})}, opts...)
	service, err := NewService(cfg, opts...)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	return service
}

func build(t *testing.T, service *Service) *Result {
	t.Helper()
	result, err := service.Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return result
}

// snapshot returns every file under dir keyed by slash-separated relative path.
func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()
	files := map[string]string{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		files[filepath.ToSlash(rel)] = readFile(t, path)
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to walk %s: %v", dir, err)
	}
	return files
}

func TestEntryPoints(t *testing.T) {
	cfg := newProject(t)

	entries := EntryPoints(cfg)
	if len(entries) != 1 || entries[0].Kind != EntryIndex || entries[0].TargetPath != "index.html" {
		t.Fatalf("Expected only the index entry, got %+v", entries)
	}

	cfg.Testing = true
	cfg.Env.Documentation.Enabled = true
	cfg.Env.Documentation.Path = "/docs/guide"
	entries = EntryPoints(cfg)
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[1].Kind != EntryTests || entries[1].SourcePath != filepath.Join(cfg.StagingDir, "tests", "index.html") {
		t.Errorf("Unexpected tests entry: %+v", entries[1])
	}
	if entries[2].TargetPath != "docs/guide.html" {
		t.Errorf("Expected documentation target 'docs/guide.html', got '%s'", entries[2].TargetPath)
	}

	cfg.Environment = config.EnvProduction
	for _, entry := range EntryPoints(cfg) {
		if entry.Kind == EntryTests {
			t.Error("Expected no tests entry in production")
		}
	}
}

func TestBuildFileSet(t *testing.T) {
	entries := []EntryPoint{
		{References: []string{"/assets/vendor.js", "/assets/application.js", "/assets/vendor.js"}},
		{References: []string{"/assets/tests.js", "/assets/application.js"}},
	}

	got := BuildFileSet(entries)
	expected := []string{"/assets/application.js", "/assets/tests.js", "/assets/vendor.js"}
	if strings.Join(got, ",") != strings.Join(expected, ",") {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestBuildExampleScenario(t *testing.T) {
	cfg := newProject(t)
	result := build(t, newService(t, cfg))

	application := "assets/application-" + md5Hex("X") + ".js"
	vendor := "assets/vendor-" + md5Hex("Y") + ".js"

	if got := readFile(t, filepath.Join(cfg.OutputDir, application)); got != "X" {
		t.Errorf("Expected application content 'X', got '%s'", got)
	}
	if got := readFile(t, filepath.Join(cfg.OutputDir, vendor)); got != "Y" {
		t.Errorf("Expected vendor content 'Y', got '%s'", got)
	}

	index := readFile(t, filepath.Join(cfg.OutputDir, "index.html"))
	for _, expected := range []string{`src="/` + application + `"`, `src="/` + vendor + `"`, "https://fonts.example.com/font.css", "//cdn.example.com/analytics.js"} {
		if !strings.Contains(index, expected) {
			t.Errorf("Expected index.html to contain %s", expected)
		}
	}

	var onDisk manifest.AssetManifest
	if err := json.Unmarshal([]byte(readFile(t, filepath.Join(cfg.OutputDir, manifest.SelfPath))), &onDisk); err != nil {
		t.Fatalf("Failed to parse manifest: %v", err)
	}
	expected := map[string]string{
		"assets/application.js": application,
		"assets/vendor.js":      vendor,
		manifest.SelfPath:       manifest.SelfPath,
	}
	if len(onDisk.Assets) != len(expected) {
		t.Fatalf("Expected %d manifest keys, got %v", len(expected), onDisk.Assets)
	}
	for key, value := range expected {
		if onDisk.Assets[key] != value {
			t.Errorf("Expected manifest[%s] = %s, got %s", key, value, onDisk.Assets[key])
		}
	}
	if onDisk.Prepend != "" {
		t.Errorf("Expected empty prepend, got '%s'", onDisk.Prepend)
	}

	if result.Descriptor == nil {
		t.Fatal("Expected a fastboot descriptor")
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, fastboot.FileName)); err != nil {
		t.Errorf("Expected package.json in output: %v", err)
	}
	if result.Descriptor.Fastboot.Manifest.AppFiles[0] != application {
		t.Errorf("Expected appFiles to point at %s, got %v", application, result.Descriptor.Fastboot.Manifest.AppFiles)
	}

	if len(result.Files) != 2 {
		t.Errorf("Expected 2 measured files, got %d", len(result.Files))
	}
	if result.BuildID == "" {
		t.Error("Expected a build id")
	}
}

func TestBuildManifestClosure(t *testing.T) {
	cfg := newProject(t)
	writeFile(t, filepath.Join(cfg.StagingDir, "assets", "styles", "application.css"), "body{}")
	writeFile(t, filepath.Join(cfg.StagingDir, "index.html"), `<html><head>
<link rel="stylesheet" href="/assets/styles/application.css">
<script src="http://localhost:4200/assets/application.js"></script>
<script src="/assets/vendor.js?v=1"></script>
</head></html>`)

	result := build(t, newService(t, cfg))
	index := readFile(t, filepath.Join(cfg.OutputDir, "index.html"))

	for logical, published := range result.Manifest.Assets {
		if logical == manifest.SelfPath {
			continue
		}
		content, err := os.ReadFile(filepath.Join(cfg.OutputDir, published))
		if err != nil {
			t.Errorf("Manifest value %s does not exist: %v", published, err)
			continue
		}
		staged := readFile(t, filepath.Join(cfg.StagingDir, logical))
		if !strings.Contains(published, md5Hex(staged)) || string(content) != staged {
			t.Errorf("Published %s does not match staged %s", published, logical)
		}
		if filepath.Ext(published) != filepath.Ext(logical) {
			t.Errorf("Expected extension of %s preserved in %s", logical, published)
		}
		if filepath.Dir(published) != filepath.Dir(logical) {
			t.Errorf("Expected directory of %s preserved in %s", logical, published)
		}
		if !strings.Contains(index, published) {
			t.Errorf("Expected index.html to reference %s", published)
		}
	}

	if !strings.Contains(index, "http://localhost:4200/assets/application-"+md5Hex("X")+".js") {
		t.Errorf("Expected localhost reference rewritten in place, got %s", index)
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	cfg := newProject(t)
	service := newService(t, cfg)

	build(t, service)
	first := snapshot(t, cfg.OutputDir)
	build(t, service)
	second := snapshot(t, cfg.OutputDir)

	if len(first) != len(second) {
		t.Fatalf("Expected identical trees, got %d and %d files", len(first), len(second))
	}
	for path, content := range first {
		if second[path] != content {
			t.Errorf("Expected %s to be byte-identical across builds", path)
		}
	}

	stats := service.GetCacheStats()
	if stats.Hits != 2 {
		t.Errorf("Expected 2 digest cache hits on rebuild, got %d", stats.Hits)
	}
}

func TestRebuildRenamesSameSizeContentWithPinnedModTime(t *testing.T) {
	cfg := newProject(t)
	service := newService(t, cfg)
	source := filepath.Join(cfg.StagingDir, "assets", "application.js")

	info, err := os.Stat(source)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	first := build(t, service)

	writeFile(t, source, "Z")
	if err := os.Chtimes(source, info.ModTime(), info.ModTime()); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}
	second := build(t, service)

	before, _ := first.Manifest.Lookup("assets/application.js")
	after, _ := second.Manifest.Lookup("assets/application.js")
	if before == after {
		t.Fatalf("Expected a new published path after content changed, got %s twice", after)
	}
	if want := "assets/application-" + md5Hex("Z") + ".js"; after != want {
		t.Errorf("Expected %s, got %s", want, after)
	}
	if got := readFile(t, filepath.Join(cfg.OutputDir, filepath.FromSlash(after))); got != "Z" {
		t.Errorf("Expected published content Z, got %q", got)
	}
}

func TestBuildRemovesStaleOutputAndUnreferencedAssets(t *testing.T) {
	cfg := newProject(t)
	writeFile(t, filepath.Join(cfg.OutputDir, "assets", "application-stale.js"), "old")
	writeFile(t, filepath.Join(cfg.StagingDir, "assets", "unused.js"), "never referenced")

	build(t, newService(t, cfg))

	files := snapshot(t, cfg.OutputDir)
	if _, ok := files["assets/application-stale.js"]; ok {
		t.Error("Expected stale output to be removed")
	}
	for path := range files {
		if strings.Contains(path, "unused") {
			t.Errorf("Expected unreferenced asset not to be published, found %s", path)
		}
	}
}

func TestBuildCopiesPublicFolder(t *testing.T) {
	cfg := newProject(t)
	writeFile(t, filepath.Join(cfg.PublicDir, "robots.txt"), "User-agent: *")
	writeFile(t, filepath.Join(cfg.PublicDir, "images", "logo.svg"), "<svg/>")

	build(t, newService(t, cfg))

	if got := readFile(t, filepath.Join(cfg.OutputDir, "robots.txt")); got != "User-agent: *" {
		t.Errorf("Expected robots.txt copied verbatim, got '%s'", got)
	}
	if got := readFile(t, filepath.Join(cfg.OutputDir, "images", "logo.svg")); got != "<svg/>" {
		t.Errorf("Expected images/logo.svg copied verbatim, got '%s'", got)
	}
}

func TestBuildTestsAndDocumentationShareHashedFiles(t *testing.T) {
	cfg := newProject(t)
	cfg.Testing = true
	cfg.Env.Documentation.Enabled = true
	writeFile(t, filepath.Join(cfg.StagingDir, "assets", "tests.js"), "T")
	writeFile(t, filepath.Join(cfg.StagingDir, "tests", "index.html"),
		`<script src="/assets/application.js"></script><script src="/assets/tests.js"></script>`)
	writeFile(t, filepath.Join(cfg.StagingDir, "styleguide.html"),
		`<script src="/assets/vendor.js"></script><script src="/assets/application.js"></script>`)

	result := build(t, newService(t, cfg))

	application := "/assets/application-" + md5Hex("X") + ".js"
	for _, name := range []string{"index.html", "tests.html", "styleguide.html"} {
		if !strings.Contains(readFile(t, filepath.Join(cfg.OutputDir, name)), application) {
			t.Errorf("Expected %s to reference %s", name, application)
		}
	}
	if _, ok := result.Manifest.Lookup("assets/tests.js"); !ok {
		t.Error("Expected tests.js in the manifest")
	}
}

func TestBuildMissingStagedAsset(t *testing.T) {
	cfg := newProject(t)
	if err := os.Remove(filepath.Join(cfg.StagingDir, "assets", "vendor.js")); err != nil {
		t.Fatal(err)
	}

	_, err := newService(t, cfg).Build(context.Background())
	if !errors.Is(err, ErrStagingRead) {
		t.Fatalf("Expected ErrStagingRead, got %v", err)
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("Expected a StageError, got %T", err)
	}
	if stageErr.Stage != StageHash || stageErr.Path != "/assets/vendor.js" {
		t.Errorf("Expected hash stage failure on /assets/vendor.js, got %s %s", stageErr.Stage, stageErr.Path)
	}
}

func TestBuildMissingEntryPoint(t *testing.T) {
	cfg := newProject(t)
	cfg.Testing = true

	_, err := newService(t, cfg).Build(context.Background())
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageDiscover {
		t.Fatalf("Expected a discover stage error, got %v", err)
	}
	if !errors.Is(err, ErrStagingRead) {
		t.Errorf("Expected ErrStagingRead, got %v", err)
	}
}

func TestBuildRejectsReferencesOutsideStaging(t *testing.T) {
	for _, reference := range []string{"../x.js", "/assets/../../x.js", "http://localhost:4200/../x.js"} {
		cfg := newProject(t)
		writeFile(t, filepath.Join(cfg.ProjectRoot, "x.js"), "outside")
		writeFile(t, filepath.Join(cfg.StagingDir, "index.html"), `<script src="`+reference+`"></script>`)

		_, err := newService(t, cfg).Build(context.Background())
		if !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("%s: expected ErrOutsideRoot, got %v", reference, err)
			continue
		}
		var stageErr *StageError
		if !errors.As(err, &stageErr) || stageErr.Stage != StageDiscover {
			t.Errorf("%s: expected a discover stage error, got %v", reference, err)
		}
		matches, _ := filepath.Glob(filepath.Join(cfg.ProjectRoot, "x-*.js"))
		if len(matches) != 0 {
			t.Errorf("%s: expected nothing written outside the output directory, got %v", reference, matches)
		}
	}
}

func TestBuildLeavesIconAndCanonicalLinksAlone(t *testing.T) {
	cfg := newProject(t)
	writeFile(t, filepath.Join(cfg.PublicDir, "favicon.ico"), "icon")
	writeFile(t, filepath.Join(cfg.StagingDir, "index.html"), `<head>
<link rel="icon" href="/favicon.ico">
<link rel="canonical" href="/">
</head>
<script src="/assets/vendor.js"></script><script src="/assets/application.js"></script>`)

	result := build(t, newService(t, cfg))

	if len(result.Manifest.Assets) != 3 {
		t.Errorf("Expected 3 manifest entries, got %v", result.Manifest.Assets)
	}
	index := readFile(t, filepath.Join(cfg.OutputDir, "index.html"))
	if !strings.Contains(index, `href="/favicon.ico"`) || !strings.Contains(index, `href="/"`) {
		t.Errorf("Expected icon and canonical links untouched, got %s", index)
	}
	if got := readFile(t, filepath.Join(cfg.OutputDir, "favicon.ico")); got != "icon" {
		t.Errorf("Expected favicon copied from public, got %q", got)
	}
}

func TestBuildMissingExtension(t *testing.T) {
	cfg := newProject(t)
	writeFile(t, filepath.Join(cfg.StagingDir, "assets", "LICENSE"), "MIT")
	writeFile(t, filepath.Join(cfg.StagingDir, "index.html"), `<link rel="stylesheet" href="/assets/LICENSE">`)

	_, err := newService(t, cfg).Build(context.Background())
	if !errors.Is(err, hashing.ErrMissingExtension) {
		t.Fatalf("Expected ErrMissingExtension, got %v", err)
	}
}

func TestBuildFastbootRequiresVendor(t *testing.T) {
	cfg := newProject(t)
	writeFile(t, filepath.Join(cfg.StagingDir, "index.html"), `<script src="/assets/application.js"></script>`)

	_, err := newService(t, cfg).Build(context.Background())
	if !errors.Is(err, fastboot.ErrManifestIncomplete) {
		t.Fatalf("Expected ErrManifestIncomplete, got %v", err)
	}

	cfg.Fastboot = false
	result := build(t, newService(t, cfg))
	if result.Descriptor != nil {
		t.Error("Expected no descriptor with fastboot disabled")
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, fastboot.FileName)); !os.IsNotExist(err) {
		t.Error("Expected no package.json with fastboot disabled")
	}
}

func TestBuildCancelledContext(t *testing.T) {
	cfg := newProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newService(t, cfg).Build(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(cfg.OutputDir); !os.IsNotExist(err) {
		t.Error("Expected a cancelled build not to touch the output directory")
	}
}

func TestBuildRecordsHistoryAndMetrics(t *testing.T) {
	cfg := newProject(t)
	cfg.MetricsFile = filepath.Join(cfg.ProjectRoot, "metrics", "mber.prom")

	store, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open history: %v", err)
	}
	defer store.Close()
	m := metrics.New()
	var out bytes.Buffer

	service := newService(t, cfg, WithHistory(store), WithMetrics(m), WithOutput(&out))
	build(t, service)
	writeFile(t, filepath.Join(cfg.StagingDir, "assets", "application.js"), "XX")
	build(t, service)

	builds, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Failed to list history: %v", err)
	}
	if len(builds) != 2 {
		t.Fatalf("Expected 2 recorded builds, got %d", len(builds))
	}
	if len(builds[0].Files) != 2 {
		t.Errorf("Expected 2 recorded files, got %d", len(builds[0].Files))
	}

	if !strings.Contains(out.String(), "(+0.00 kB)") || !strings.Contains(out.String(), "(unchanged)") {
		t.Errorf("Expected size deltas in the report, got:\n%s", out.String())
	}

	if got := testutil.ToFloat64(m.BuildsTotal.WithLabelValues(metrics.StatusSuccess)); got != 2 {
		t.Errorf("Expected 2 successful builds, got %v", got)
	}
	if got := testutil.ToFloat64(m.PublishedFilesTotal); got != 4 {
		t.Errorf("Expected 4 published files, got %v", got)
	}
	if _, err := os.Stat(cfg.MetricsFile); err != nil {
		t.Errorf("Expected metrics textfile: %v", err)
	}
}

func TestBuildOffload(t *testing.T) {
	cfg := newProject(t)
	cfg.Offload = true
	cfg.OffloadTarget = config.OffloadConfig{Provider: "s3", Bucket: "assets", Prefix: "dummyapp", Concurrency: 2}
	mock := &offload.MockUploader{BaseURL: "https://cdn.test"}

	result := build(t, newService(t, cfg, WithUploader(mock)))

	expected := "https://cdn.test/dummyapp/assets/vendor-" + md5Hex("Y") + ".js"
	if result.Offloaded["assets/vendor.js"] != expected {
		t.Errorf("Expected vendor offloaded to %s, got %s", expected, result.Offloaded["assets/vendor.js"])
	}
	if len(mock.Uploaded()) != 2 {
		t.Errorf("Expected 2 uploads, got %d", len(mock.Uploaded()))
	}
}

func TestBuildXXHash(t *testing.T) {
	cfg := newProject(t)
	cfg.HashAlgorithm = hashing.XXHash

	result := build(t, newService(t, cfg))
	published, _ := result.Manifest.Lookup("assets/application.js")
	digest := strings.TrimSuffix(strings.TrimPrefix(published, "assets/application-"), ".js")
	if len(digest) != 16 {
		t.Errorf("Expected a 16 hex digit xxhash digest, got '%s'", digest)
	}
}
