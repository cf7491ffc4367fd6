package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	tt "github.com/gnolang/txmigrate/internal/types"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk migration configuration.
type Config struct {
	Name     string           `yaml:"name"`
	Strategy tt.Strategy      `yaml:"strategy"`
	Helper   tt.RewriteTarget `yaml:"helper"`

	// ResourceTypes lists tracked resources as "import/path.Type".
	ResourceTypes []string `yaml:"resource-types"`

	// IgnorePaths are root-relative path prefixes excluded from scanning.
	IgnorePaths []string `yaml:"ignore-paths"`

	// SkipTests excludes _test.go files from processing.
	SkipTests bool `yaml:"skip-tests"`
}

// DefaultConfig targets the bundled closure helpers and tracks database/sql.
func DefaultConfig() Config {
	return Config{
		Name:     "txmigrate",
		Strategy: tt.StrategyClosure,
		Helper: tt.RewriteTarget{
			ImportPath: "github.com/gnolang/txmigrate/txutil",
			Call:       "txutil.WithTx",
		},
		ResourceTypes: []string{"database/sql.DB"},
		SkipTests:     true,
	}
}

// Validate rejects contradictory or incomplete configurations before any
// file is touched.
func (c Config) Validate() error {
	switch c.Strategy {
	case tt.StrategyClosure, tt.StrategyManager:
	case "":
		return fmt.Errorf("strategy must be set")
	default:
		return fmt.Errorf("unknown strategy %q, want closure or manager", c.Strategy)
	}

	if c.Helper.Call == "" {
		return fmt.Errorf("helper.call must be set")
	}
	if strings.Contains(c.Helper.Call, ".") && c.Helper.ImportPath == "" {
		return fmt.Errorf("helper.call %q is package-qualified but helper.import is empty", c.Helper.Call)
	}
	if !strings.Contains(c.Helper.Call, ".") && c.Helper.ImportPath != "" {
		return fmt.Errorf("helper.import is set but helper.call %q is unqualified", c.Helper.Call)
	}

	if len(c.ResourceTypes) == 0 {
		return fmt.Errorf("at least one resource type is required")
	}
	seen := make(map[string]bool)
	for _, rt := range c.ResourceTypes {
		if _, err := tt.ParseResourceType(rt); err != nil {
			return err
		}
		if seen[rt] {
			return fmt.Errorf("duplicate resource type %q", rt)
		}
		seen[rt] = true
	}
	return nil
}

// EngineConfig converts the file form into the resolved form the engine
// consumes. Validate must have passed.
func (c Config) EngineConfig() (tt.EngineConfig, error) {
	if err := c.Validate(); err != nil {
		return tt.EngineConfig{}, err
	}
	ec := tt.EngineConfig{
		Strategy: c.Strategy,
		Target:   c.Helper,
	}
	for _, s := range c.ResourceTypes {
		rt, err := tt.ParseResourceType(s)
		if err != nil {
			return tt.EngineConfig{}, err
		}
		ec.ResourceTypes = append(ec.ResourceTypes, rt)
	}
	return ec, nil
}

var (
	configCacheMu sync.Mutex
	configCache   = make(map[string]Config)
)

// LoadConfig reads and validates a configuration file, memoized by its
// cleaned absolute path. An empty path yields the default configuration.
func LoadConfig(configurationPath string) (Config, error) {
	if configurationPath == "" {
		return DefaultConfig(), nil
	}

	abs, err := filepath.Abs(filepath.Clean(configurationPath))
	if err != nil {
		return Config{}, err
	}

	configCacheMu.Lock()
	defer configCacheMu.Unlock()
	if cfg, ok := configCache[abs]; ok {
		return cfg, nil
	}

	f, err := os.Open(abs)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	config := DefaultConfig()
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	configCache[abs] = config
	return config, nil
}

// ClearConfigCache drops all memoized configurations. Tests use it between
// cases that rewrite the same path.
func ClearConfigCache() {
	configCacheMu.Lock()
	defer configCacheMu.Unlock()
	configCache = make(map[string]Config)
}
