package config

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ValidationError collects every problem found in a configuration.
type ValidationError struct {
	Invalid []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Invalid, "; "))
}

// HasErrors returns true if any field is invalid.
func (e *ValidationError) HasErrors() bool {
	return len(e.Invalid) > 0
}

// Validate checks the fields the build depends on.
func (c *Config) Validate() error {
	result := &ValidationError{}

	if c.Env == nil {
		result.Invalid = append(result.Invalid, "application environment is not loaded")
	} else {
		if strings.TrimSpace(c.Env.ModulePrefix) == "" {
			result.Invalid = append(result.Invalid, "modulePrefix must not be empty")
		}
		if !strings.HasPrefix(c.Env.Documentation.Path, "/") {
			result.Invalid = append(result.Invalid,
				fmt.Sprintf("documentation.path %q must start with /", c.Env.Documentation.Path))
		} else if path.Clean(c.Env.Documentation.Path) == "/" || strings.Contains(c.Env.Documentation.Path, "..") {
			result.Invalid = append(result.Invalid,
				fmt.Sprintf("documentation.path %q must name a page below the root", c.Env.Documentation.Path))
		}
	}

	if c.StagingDir == c.OutputDir {
		result.Invalid = append(result.Invalid, "staging and output directories must differ")
	}
	if rel, err := filepath.Rel(c.OutputDir, c.StagingDir); err == nil && !strings.HasPrefix(rel, "..") && rel != "." {
		result.Invalid = append(result.Invalid, "staging directory must not live inside the output directory")
	}

	if c.Offload {
		if c.OffloadTarget.Bucket == "" {
			result.Invalid = append(result.Invalid, "offload bucket is required when offload is enabled")
		}
		switch c.OffloadTarget.Provider {
		case "s3", "minio", "local":
		default:
			result.Invalid = append(result.Invalid,
				fmt.Sprintf("unknown offload provider %q", c.OffloadTarget.Provider))
		}
		if c.OffloadTarget.Provider == "minio" && c.OffloadTarget.Endpoint == "" {
			result.Invalid = append(result.Invalid, "offload endpoint is required for minio")
		}
	}

	if result.HasErrors() {
		return result
	}
	return nil
}
