// Package publish writes the final output directory: rewritten HTML entry points,
// content-hashed assets and the verbatim public folder.
package publish

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrHashCollision is returned when a published path already holds different bytes.
	ErrHashCollision = errors.New("published path already holds different content")
	// ErrOutputReset is returned when the output skeleton cannot be recreated.
	ErrOutputReset = errors.New("cannot reset output directory")
)

// Document is one HTML entry point ready to be rewritten.
type Document struct {
	// Name identifies the entry point in logs ("index", "tests", "documentation").
	Name string
	// TargetPath is the slash-separated output location relative to the output directory.
	TargetPath string
	// Content is the raw staged HTML.
	Content []byte
}

// ResetOutput removes outputDir entirely and recreates it with an empty assets/
// subdirectory, so no stale hashed file survives into the new build.
func ResetOutput(outputDir string) error {
	if err := os.RemoveAll(outputDir); err != nil {
		return fmt.Errorf("%w %s: %w", ErrOutputReset, outputDir, err)
	}
	if err := os.MkdirAll(filepath.Join(outputDir, "assets"), 0o755); err != nil {
		return fmt.Errorf("%w %s: %w", ErrOutputReset, outputDir, err)
	}
	return nil
}

// Writer publishes into one output directory. A Writer is not safe for concurrent
// use, and two Writers must not target the same directory at once.
type Writer struct {
	outputDir string
	publicDir string
	logger    *zap.Logger
}

// NewWriter creates a Writer. publicDir may be empty or missing, in which case no
// static files are copied.
func NewWriter(outputDir, publicDir string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{outputDir: outputDir, publicDir: publicDir, logger: logger}
}

// Publish copies the public folder, rewrites every document against the same
// hashed map, then writes each hashed asset's original bytes to its published path.
// The first I/O error aborts; the output directory is then left partially written.
func (w *Writer) Publish(documents []Document, hashed map[string]string, contents map[string][]byte) error {
	if err := CopyPublic(w.publicDir, w.outputDir); err != nil {
		return err
	}

	references := sortedKeys(hashed)
	for _, pair := range OverlappingReferences(references) {
		w.logger.Warn("logical path is a substring of another reference; rewrite may be wrong",
			zap.String("inner", pair[0]), zap.String("outer", pair[1]))
	}

	for _, document := range documents {
		rewritten := RewriteHTML(document.Content, hashed)
		target := filepath.Join(w.outputDir, filepath.FromSlash(strings.TrimPrefix(document.TargetPath, "/")))
		if err := writeFile(target, rewritten); err != nil {
			return fmt.Errorf("failed to write %s html: %w", document.Name, err)
		}
		w.logger.Debug("wrote entry point", zap.String("entry", document.Name), zap.String("path", target))
	}

	for _, logical := range references {
		content, ok := contents[logical]
		if !ok {
			return fmt.Errorf("no content loaded for %s", logical)
		}
		target := filepath.Join(w.outputDir, filepath.FromSlash(strings.TrimPrefix(hashed[logical], "/")))
		if err := writeAsset(target, content); err != nil {
			return fmt.Errorf("failed to publish %s: %w", logical, err)
		}
	}
	return nil
}

// RewriteHTML replaces every occurrence of every logical path in document with its
// published path. Replacement is textual, in lexicographic order of logical paths.
// A logical path that is a substring of another one can corrupt the longer
// reference; OverlappingReferences reports such pairs.
func RewriteHTML(document []byte, hashed map[string]string) []byte {
	html := string(document)
	for _, logical := range sortedKeys(hashed) {
		html = strings.ReplaceAll(html, logical, hashed[logical])
	}
	return []byte(html)
}

// OverlappingReferences returns [inner, outer] pairs where inner occurs inside outer.
func OverlappingReferences(references []string) [][2]string {
	var pairs [][2]string
	for _, inner := range references {
		for _, outer := range references {
			if inner != outer && strings.Contains(outer, inner) {
				pairs = append(pairs, [2]string{inner, outer})
			}
		}
	}
	return pairs
}

// CopyPublic mirrors publicDir into outputDir without renaming anything. A missing
// publicDir is not an error.
func CopyPublic(publicDir, outputDir string) error {
	if publicDir == "" {
		return nil
	}
	info, err := os.Stat(publicDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat public folder: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("public folder %s is not a directory", publicDir)
	}

	return filepath.WalkDir(publicDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(publicDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(outputDir, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := copyFile(path, target); err != nil {
			return fmt.Errorf("failed to copy public file %s: %w", rel, err)
		}
		return nil
	})
}

// writeAsset refuses to replace an existing file that holds different bytes.
func writeAsset(target string, content []byte) error {
	existing, err := os.ReadFile(target)
	switch {
	case err == nil:
		if bytes.Equal(existing, content) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrHashCollision, target)
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}
	return writeFile(target, content)
}

func writeFile(target string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, content, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
