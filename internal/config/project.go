package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ProjectFileName is the optional per-project build configuration file.
const ProjectFileName = "mber.toml"

// ErrProjectNotFound is returned when no project marker exists in any parent directory.
var ErrProjectNotFound = errors.New("not inside an mber project (no mber.toml or package.json found)")

// ProjectFile mirrors mber.toml.
type ProjectFile struct {
	Project struct {
		Name        string `toml:"name"`
		Environment string `toml:"environment"`
	} `toml:"project"`

	Build struct {
		Staging string `toml:"staging"`
		Output  string `toml:"output"`
		Public  string `toml:"public"`
		Hash    string `toml:"hash"`
		Testing *bool  `toml:"testing"`
	} `toml:"build"`

	Fastboot struct {
		Enabled *bool `toml:"enabled"`
	} `toml:"fastboot"`

	History struct {
		Enabled *bool  `toml:"enabled"`
		Path    string `toml:"path"`
	} `toml:"history"`

	Offload struct {
		Provider    string  `toml:"provider"`
		Bucket      string  `toml:"bucket"`
		Region      string  `toml:"region"`
		Endpoint    string  `toml:"endpoint"`
		Prefix      string  `toml:"prefix"`
		PublicURL   string  `toml:"public_url"`
		UseSSL      *bool   `toml:"use_ssl"`
		Concurrency int     `toml:"concurrency"`
		RateLimit   float64 `toml:"rate_limit"`
	} `toml:"offload"`
}

// FindProjectRoot walks up from startDir until it finds mber.toml or package.json.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		for _, marker := range []string{ProjectFileName, "package.json"} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrProjectNotFound
		}
		dir = parent
	}
}

// LoadProjectFile reads mber.toml from root. A missing file is an empty ProjectFile.
func LoadProjectFile(root string) (*ProjectFile, error) {
	var pf ProjectFile
	path := filepath.Join(root, ProjectFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &pf, nil
		}
		return nil, fmt.Errorf("reading %s: %w", ProjectFileName, err)
	}
	if err := toml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ProjectFileName, err)
	}
	return &pf, nil
}

// packageName returns the "name" field of package.json under root, or "".
func packageName(root string) string {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return ""
	}
	var pkg struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(data, &pkg) != nil {
		return ""
	}
	return pkg.Name
}
