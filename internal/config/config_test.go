package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "datasets", cfg.StorePath)
	assert.Equal(t, "", cfg.Directory)
	assert.Equal(t, 3000, cfg.PollingMs)
	assert.Equal(t, int64(1048576), cfg.MaxCSVLength)
}

func TestLoad_HCLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashfold.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
store_path     = "/var/lib/dashfold/datasets"
deploy_dir     = "/var/lib/dashfold/deploy"
polling_ms     = 500
max_csv_length = 2048
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/dashfold/datasets", cfg.StorePath)
	assert.Equal(t, "/var/lib/dashfold/deploy", cfg.Directory)
	assert.Equal(t, 500, cfg.PollingMs)
	assert.Equal(t, int64(2048), cfg.MaxCSVLength)
	// Untouched keys keep their defaults.
	assert.Equal(t, "dashfold-audit.db", cfg.AuditDB)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashfold.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`polling_ms = 500`), 0o644))

	t.Setenv("DASHFOLD_POLLING_MS", "0")
	t.Setenv("DASHFOLD_DEPLOY_DIR", "/tmp/deploy")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.PollingMs)
	assert.Equal(t, "/tmp/deploy", cfg.Directory)
}

func TestLoad_MalformedHCL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashfold.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`polling_ms = `), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
