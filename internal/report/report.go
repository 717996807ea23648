// Package report measures the published bundles for the operator: raw size plus
// gzip and brotli equivalents.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"
)

// FileReport holds the measurements for one published file. Err is set when a
// compressed size could not be computed; Size is still valid in that case.
type FileReport struct {
	// Name is the published path relative to the output directory.
	Name string
	// Logical is the pre-hash path, when known.
	Logical    string
	Size       int64
	GzipSize   int64
	BrotliSize int64
	Err        error
}

// Measure reports every .js and .css file directly under <outputDir>/assets,
// sorted by name. logicalOf maps published to logical paths and may be nil.
// Only a failure to list the directory is returned as an error.
func Measure(ctx context.Context, outputDir string, logicalOf map[string]string) ([]FileReport, error) {
	entries, err := os.ReadDir(filepath.Join(outputDir, "assets"))
	if err != nil {
		return nil, fmt.Errorf("failed to list published assets: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".js", ".css":
			names = append(names, "assets/"+entry.Name())
		}
	}
	sort.Strings(names)

	reports := make([]FileReport, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, name := range names {
		reports[i] = FileReport{Name: name, Logical: logicalOf[name]}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				reports[i].Err = err
				return nil
			}
			measureFile(filepath.Join(outputDir, filepath.FromSlash(name)), &reports[i])
			return nil
		})
	}
	_ = g.Wait()
	return reports, nil
}

func measureFile(path string, r *FileReport) {
	content, err := os.ReadFile(path)
	if err != nil {
		r.Err = err
		return
	}
	r.Size = int64(len(content))

	r.GzipSize, err = compressedSize(content, func(w io.Writer) (io.WriteCloser, error) {
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	})
	if err != nil {
		r.Err = fmt.Errorf("gzip: %w", err)
		return
	}

	r.BrotliSize, err = compressedSize(content, func(w io.Writer) (io.WriteCloser, error) {
		return brotli.NewWriterLevel(w, brotli.BestCompression), nil
	})
	if err != nil {
		r.Err = fmt.Errorf("brotli: %w", err)
	}
}

func compressedSize(content []byte, newWriter func(io.Writer) (io.WriteCloser, error)) (int64, error) {
	var buf bytes.Buffer
	w, err := newWriter(&buf)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(content); err != nil {
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return int64(buf.Len()), nil
}

// TotalSize sums the raw sizes.
func TotalSize(reports []FileReport) int64 {
	var total int64
	for _, r := range reports {
		total += r.Size
	}
	return total
}

// Print writes one line per report:
//
//	- assets/application-<hash>.js: 12.30 kB [4.10 kB gzipped] (+0.20 kB)
//
// previous holds the last build's raw sizes by logical path; the delta is omitted
// when there is no previous size.
func Print(w io.Writer, reports []FileReport, previous map[string]int64) {
	for _, r := range reports {
		var line strings.Builder
		fmt.Fprintf(&line, " - %s: %s", r.Name, FormatSize(r.Size))
		if r.Err == nil {
			fmt.Fprintf(&line, " [%s gzipped]", FormatSize(r.GzipSize))
		}
		if before, ok := previous[r.Logical]; ok && r.Logical != "" {
			line.WriteString(" " + formatDelta(r.Size-before))
		}
		fmt.Fprintln(w, line.String())
	}
}

func formatDelta(delta int64) string {
	if delta == 0 {
		return "(unchanged)"
	}
	sign := "+"
	if delta < 0 {
		sign = "-"
		delta = -delta
	}
	return fmt.Sprintf("(%s%s)", sign, FormatSize(delta))
}
