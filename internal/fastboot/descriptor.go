// Package fastboot builds package.json, the descriptor a FastBoot server reads to
// locate the hashed bundles and the application configuration.
package fastboot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"mber/internal/config"
	"mber/internal/manifest"
)

// FileName is the descriptor's location relative to the output directory.
const FileName = "package.json"

// Well-known bundle logical paths.
const (
	ApplicationBundle = "assets/application.js"
	VendorBundle      = "assets/vendor.js"
	MemserverBundle   = "assets/memserver.js"
)

// AppVersion is the version string stamped into the booted application config.
const AppVersion = "0.0.0+b5f80b0d"

// SchemaVersion is the FastBoot manifest schema this descriptor follows.
const SchemaVersion = 3

// ModuleWhitelist lists the node modules the sandbox may require.
var ModuleWhitelist = []string{"node-fetch", "abortcontroller-polyfill"}

// ErrManifestIncomplete is returned when a bundle the SSR host needs has no
// manifest entry.
var ErrManifestIncomplete = errors.New("asset manifest is missing a bundle required by fastboot")

// Descriptor is the JSON shape of package.json.
type Descriptor struct {
	Dependencies map[string]string `json:"dependencies"`
	Fastboot     Section           `json:"fastboot"`
}

// Section is the "fastboot" object.
type Section struct {
	AppName         string                    `json:"appName"`
	Config          map[string]map[string]any `json:"config"`
	HostWhitelist   []string                  `json:"hostWhitelist"`
	Manifest        Files                     `json:"manifest"`
	ModuleWhitelist []string                  `json:"moduleWhitelist"`
	SchemaVersion   int                       `json:"schemaVersion"`
}

// Files points the SSR host at the hashed bundles.
type Files struct {
	AppFiles    []string `json:"appFiles"`
	HTMLFile    string   `json:"htmlFile"`
	VendorFiles []string `json:"vendorFiles"`
}

// Build derives the descriptor from the final manifest and the build configuration.
// It has no side effects.
func Build(m manifest.AssetManifest, cfg *config.Config) (*Descriptor, error) {
	application, err := bundlePath(m, ApplicationBundle)
	if err != nil {
		return nil, err
	}
	vendor, err := bundlePath(m, VendorBundle)
	if err != nil {
		return nil, err
	}

	appFiles := []string{application}
	if cfg.Env.Memserver.Enabled {
		memserver, err := bundlePath(m, MemserverBundle)
		if err != nil {
			return nil, err
		}
		appFiles = append(appFiles, memserver)
	}

	hostWhitelist := cfg.Env.Fastboot.HostWhitelist
	if hostWhitelist == nil {
		hostWhitelist = []string{}
	}

	return &Descriptor{
		Dependencies: map[string]string{},
		Fastboot: Section{
			AppName:       cfg.ApplicationName,
			Config:        map[string]map[string]any{cfg.ApplicationName: bootConfig(cfg.Env)},
			HostWhitelist: append([]string(nil), hostWhitelist...),
			Manifest: Files{
				AppFiles:    appFiles,
				HTMLFile:    "index.html",
				VendorFiles: []string{vendor},
			},
			ModuleWhitelist: append([]string(nil), ModuleWhitelist...),
			SchemaVersion:   SchemaVersion,
		},
	}, nil
}

// bootConfig is the environment object as the SSR host boots it: APP gains
// autoboot, name and version, and the module flags are switched on.
func bootConfig(env *config.AppEnv) map[string]any {
	raw := env.Raw()

	app, _ := raw["APP"].(map[string]any)
	if app == nil {
		app = map[string]any{}
	}
	app["autoboot"] = false
	app["name"] = env.ModulePrefix
	app["version"] = AppVersion

	raw["APP"] = app
	raw["exportApplicationGlobal"] = true
	raw["isModuleUnification"] = true
	return raw
}

func bundlePath(m manifest.AssetManifest, logical string) (string, error) {
	published, ok := m.Lookup(logical)
	if !ok || published == "" {
		return "", fmt.Errorf("%w: %s", ErrManifestIncomplete, logical)
	}
	return published, nil
}

// Marshal renders the descriptor as indented JSON.
func (d *Descriptor) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// Write stores the descriptor at <outputDir>/package.json.
func Write(outputDir string, d *Descriptor) error {
	data, err := d.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", FileName, err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, FileName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}
	return nil
}
