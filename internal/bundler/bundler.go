// Package bundler assembles the distributable output directory from the staging
// tree: it discovers the assets each HTML entry point references, hashes them,
// publishes rewritten HTML plus hashed assets, and writes the asset manifest and
// the FastBoot descriptor.
package bundler

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mber/internal/config"
	"mber/internal/fastboot"
	"mber/internal/htmlassets"
	"mber/internal/manifest"
	"mber/internal/report"
)

// Stage names one step of a build, in execution order.
type Stage string

const (
	StageReset    Stage = "reset"
	StageDiscover Stage = "discover"
	StageHash     Stage = "hash"
	StagePublish  Stage = "publish"
	StageDescribe Stage = "describe"
	StageReport   Stage = "report"
	StageOffload  Stage = "offload"
	StageDone     Stage = "done"
)

var (
	// ErrStagingRead is returned when an entry point or a referenced asset has no
	// staged file.
	ErrStagingRead = errors.New("staged file is missing or unreadable")
	// ErrOutsideRoot is returned for references that resolve above the staging root.
	ErrOutsideRoot = errors.New("reference resolves outside the staging directory")
)

// StageError reports the stage and the file a build failed on.
type StageError struct {
	Stage Stage
	// Path is the offending file, empty when the failure is not file specific.
	Path string
	Err  error
}

func (e *StageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// EntryKind distinguishes the HTML documents that take part in a build.
type EntryKind string

const (
	EntryIndex         EntryKind = "index"
	EntryTests         EntryKind = "tests"
	EntryDocumentation EntryKind = "documentation"
)

// EntryPoint is one HTML document to rewrite and publish.
type EntryPoint struct {
	Kind EntryKind
	// SourcePath is the absolute staged location.
	SourcePath string
	// TargetPath is the slash-separated location relative to the output directory.
	TargetPath string
	// References are the logical paths found in the raw HTML, in document order.
	References []string

	content []byte
}

// EntryPoints lists the entry points active for cfg: the application shell
// always, the test runner page when tests are built, and the documentation page
// when documentation is enabled.
func EntryPoints(cfg *config.Config) []EntryPoint {
	entries := []EntryPoint{{
		Kind:       EntryIndex,
		SourcePath: filepath.Join(cfg.StagingDir, "index.html"),
		TargetPath: "index.html",
	}}

	if cfg.ShouldBuildTests() {
		entries = append(entries, EntryPoint{
			Kind:       EntryTests,
			SourcePath: filepath.Join(cfg.StagingDir, "tests", "index.html"),
			TargetPath: "tests.html",
		})
	}

	if cfg.Env != nil && cfg.Env.Documentation.Enabled {
		target := strings.TrimPrefix(cfg.Env.Documentation.Path, "/") + ".html"
		entries = append(entries, EntryPoint{
			Kind:       EntryDocumentation,
			SourcePath: filepath.Join(cfg.StagingDir, filepath.FromSlash(target)),
			TargetPath: target,
		})
	}

	return entries
}

// discover reads every entry point and fills in its references.
func discover(entries []EntryPoint) error {
	for i := range entries {
		content, err := os.ReadFile(entries[i].SourcePath)
		if err != nil {
			return &StageError{Stage: StageDiscover, Path: entries[i].SourcePath, Err: fmt.Errorf("%w: %w", ErrStagingRead, err)}
		}
		assets, err := htmlassets.FindInternalAssetsInBytes(content)
		if err != nil {
			return &StageError{Stage: StageDiscover, Path: entries[i].SourcePath, Err: err}
		}

		references := make([]string, 0, len(assets.Scripts)+len(assets.Stylesheets))
		for _, reference := range assets.All() {
			logical := htmlassets.NormalizeReference(reference)
			if escapesRoot(logical) {
				return &StageError{Stage: StageDiscover, Path: logical, Err: ErrOutsideRoot}
			}
			references = append(references, logical)
		}
		entries[i].References = references
		entries[i].content = content
	}
	return nil
}

// BuildFileSet returns the sorted, deduplicated union of the entry points'
// references.
func BuildFileSet(entries []EntryPoint) []string {
	seen := make(map[string]struct{})
	var files []string
	for _, entry := range entries {
		for _, reference := range entry.References {
			if _, ok := seen[reference]; ok {
				continue
			}
			seen[reference] = struct{}{}
			files = append(files, reference)
		}
	}
	sort.Strings(files)
	return files
}

// escapesRoot reports whether logical climbs above the root once cleaned.
func escapesRoot(logical string) bool {
	cleaned := path.Clean(strings.TrimPrefix(logical, "/"))
	return cleaned == ".." || strings.HasPrefix(cleaned, "../")
}

// stagedPath maps a logical path to its location under the staging directory.
func stagedPath(stagingDir, logical string) string {
	return filepath.Join(stagingDir, filepath.FromSlash(strings.TrimPrefix(logical, "/")))
}

// Result summarizes a successful build.
type Result struct {
	BuildID  string
	Manifest manifest.AssetManifest
	// Files are the measured .js and .css assets, sorted by name.
	Files    []report.FileReport
	Duration time.Duration
	// Descriptor is nil when FastBoot support is disabled.
	Descriptor *fastboot.Descriptor
	// Offloaded maps logical paths to public URLs when offload ran.
	Offloaded map[string]string
}
