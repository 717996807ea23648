package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// EnvironmentFile is the project-relative location of the application environments.
const EnvironmentFile = "config/environment.json"

// DefaultDocumentationPath is used when documentation.path is not set.
const DefaultDocumentationPath = "/styleguide"

// DocumentationConfig is the documentation block of an application environment.
type DocumentationConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MemserverConfig is the memserver block of an application environment.
type MemserverConfig struct {
	Enabled bool `json:"enabled"`
}

// FastbootConfig is the fastboot block of an application environment.
type FastbootConfig struct {
	HostWhitelist []string `json:"hostWhitelist"`
}

// AppEnv is one application environment. The typed fields are the keys the build
// reads; the full object is kept verbatim for the SSR descriptor.
type AppEnv struct {
	Environment   string              `json:"environment"`
	ModulePrefix  string              `json:"modulePrefix"`
	Documentation DocumentationConfig `json:"documentation"`
	Memserver     MemserverConfig     `json:"memserver"`
	Fastboot      FastbootConfig      `json:"fastboot"`

	raw map[string]any
}

// ParseAppEnv decodes a single environment object.
func ParseAppEnv(data []byte) (*AppEnv, error) {
	var env AppEnv
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&env.raw); err != nil {
		return nil, err
	}
	if env.raw == nil {
		return nil, errors.New("environment must be a JSON object")
	}

	if env.Documentation.Path == "" {
		env.Documentation.Path = DefaultDocumentationPath
	}
	return &env, nil
}

// NewAppEnv builds a minimal environment for projects without an environment file.
func NewAppEnv(environment, modulePrefix string) *AppEnv {
	data, _ := json.Marshal(map[string]any{"environment": environment, "modulePrefix": modulePrefix})
	env, _ := ParseAppEnv(data)
	return env
}

// Raw returns a deep copy of the untyped environment object.
func (e *AppEnv) Raw() map[string]any {
	copied, _ := deepCopy(e.raw).(map[string]any)
	if copied == nil {
		copied = map[string]any{}
	}
	return copied
}

// LoadAppEnv reads config/environment.json under root and selects environment.
// The file maps environment names to environment objects. A missing file yields
// NewAppEnv(environment, modulePrefix).
func LoadAppEnv(root, environment, modulePrefix string) (*AppEnv, error) {
	path := filepath.Join(root, filepath.FromSlash(EnvironmentFile))
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewAppEnv(environment, modulePrefix), nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var environments map[string]json.RawMessage
	if err := json.Unmarshal(data, &environments); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	selected, ok := environments[environment]
	if !ok {
		return nil, fmt.Errorf("environment %q is not defined in %s", environment, path)
	}

	env, err := ParseAppEnv(selected)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s (%s): %w", path, environment, err)
	}
	if strings.TrimSpace(env.Environment) == "" {
		env.Environment = environment
		env.raw["environment"] = environment
	}
	if strings.TrimSpace(env.ModulePrefix) == "" {
		env.ModulePrefix = modulePrefix
		env.raw["modulePrefix"] = modulePrefix
	}
	return env, nil
}

func deepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}
