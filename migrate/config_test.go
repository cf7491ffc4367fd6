package migrate

import (
	"os"
	"path/filepath"
	"testing"

	tt "github.com/gnolang/txmigrate/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing strategy",
			mutate:  func(c *Config) { c.Strategy = "" },
			wantErr: "strategy must be set",
		},
		{
			name:    "unknown strategy",
			mutate:  func(c *Config) { c.Strategy = "inline" },
			wantErr: "unknown strategy",
		},
		{
			name:    "missing helper call",
			mutate:  func(c *Config) { c.Helper.Call = "" },
			wantErr: "helper.call must be set",
		},
		{
			name:    "qualified call without import",
			mutate:  func(c *Config) { c.Helper.ImportPath = "" },
			wantErr: "package-qualified but helper.import is empty",
		},
		{
			name: "unqualified call with import",
			mutate: func(c *Config) {
				c.Helper.Call = "WithTx"
			},
			wantErr: "is unqualified",
		},
		{
			name:    "no resource types",
			mutate:  func(c *Config) { c.ResourceTypes = nil },
			wantErr: "at least one resource type is required",
		},
		{
			name: "malformed resource type",
			mutate: func(c *Config) {
				c.ResourceTypes = []string{"database/sql"}
			},
			wantErr: "resource type",
		},
		{
			name: "duplicate resource type",
			mutate: func(c *Config) {
				c.ResourceTypes = []string{"database/sql.DB", "database/sql.DB"}
			},
			wantErr: "duplicate resource type",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestConfigEngineConfig(t *testing.T) {
	t.Parallel()

	ec, err := DefaultConfig().EngineConfig()
	require.NoError(t, err)

	assert.Equal(t, tt.StrategyClosure, ec.Strategy)
	assert.Equal(t, "txutil.WithTx", ec.Target.Call)
	require.Len(t, ec.ResourceTypes, 1)
	assert.Equal(t, "database/sql", ec.ResourceTypes[0].Pkg)
	assert.Equal(t, "DB", ec.ResourceTypes[0].Name)
}

func TestLoadConfigEmptyPathIsDefault(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".txmigrate.yaml")
	content := `name: payments
strategy: closure
helper:
  import: example.com/payments/dbx
  call: dbx.InTx
resource-types:
  - database/sql.DB
ignore-paths:
  - vendor
skip-tests: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Cleanup(ClearConfigCache)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "payments", cfg.Name)
	assert.Equal(t, "dbx.InTx", cfg.Helper.Call)
	assert.Equal(t, "example.com/payments/dbx", cfg.Helper.ImportPath)
	assert.False(t, cfg.SkipTests)
	assert.Equal(t, []string{"vendor"}, cfg.IgnorePaths)
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".txmigrate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strategy: inline\n"), 0o644))
	t.Cleanup(ClearConfigCache)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
}

func TestLoadConfigMemoizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".txmigrate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: first\n"), 0o644))
	t.Cleanup(ClearConfigCache)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "first", cfg.Name)

	// the path is memoized, a rewrite is not observed until the cache is
	// cleared
	require.NoError(t, os.WriteFile(path, []byte("name: second\n"), 0o644))

	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "first", cfg.Name)

	ClearConfigCache()

	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "second", cfg.Name)
}
