// Package manifest builds assets/assetMap.json, the logical to published path map
// handed to the SSR host and to client-side cache invalidation.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SelfPath is the manifest's own logical path. The manifest is never hashed, so it
// maps to itself.
const SelfPath = "assets/assetMap.json"

// AssetManifest is the JSON shape of assets/assetMap.json. Prepend is reserved and
// always empty.
type AssetManifest struct {
	Assets  map[string]string `json:"assets"`
	Prepend string            `json:"prepend"`
}

// Build normalizes every pair of hashed to its root-relative form and adds the
// self-referential entry.
func Build(hashed map[string]string) AssetManifest {
	assets := make(map[string]string, len(hashed)+1)
	for logical, published := range hashed {
		assets[Normalize(logical)] = Normalize(published)
	}
	assets[SelfPath] = SelfPath
	return AssetManifest{Assets: assets}
}

// Normalize strips a single leading slash.
func Normalize(p string) string {
	return strings.TrimPrefix(p, "/")
}

// Lookup returns the published path for a logical path given in either form.
func (m AssetManifest) Lookup(logical string) (string, bool) {
	published, ok := m.Assets[Normalize(logical)]
	return published, ok
}

// Keys returns the logical paths in lexicographic order.
func (m AssetManifest) Keys() []string {
	keys := make([]string, 0, len(m.Assets))
	for key := range m.Assets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Published returns the published paths of every hashed entry, sorted, without the
// self entry.
func (m AssetManifest) Published() []string {
	var out []string
	for _, key := range m.Keys() {
		if key == SelfPath {
			continue
		}
		out = append(out, m.Assets[key])
	}
	return out
}

// Marshal renders pretty-printed JSON. encoding/json emits map keys sorted, so the
// output is stable across builds.
func (m AssetManifest) Marshal() ([]byte, error) {
	if m.Assets == nil {
		m.Assets = map[string]string{}
	}
	return json.MarshalIndent(m, "", "  ")
}

// Write stores the manifest at <outputDir>/assets/assetMap.json.
func Write(outputDir string, m AssetManifest) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode asset map: %w", err)
	}
	target := filepath.Join(outputDir, filepath.FromSlash(SelfPath))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create assets directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return nil
}

// Read loads a previously written manifest from outputDir.
func Read(outputDir string) (AssetManifest, error) {
	target := filepath.Join(outputDir, filepath.FromSlash(SelfPath))
	data, err := os.ReadFile(target)
	if err != nil {
		return AssetManifest{}, fmt.Errorf("cannot read %s: %w", target, err)
	}
	var m AssetManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return AssetManifest{}, fmt.Errorf("parse error in %s: %w", target, err)
	}
	if m.Assets == nil {
		m.Assets = map[string]string{}
	}
	return m, nil
}
