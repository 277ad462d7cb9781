package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Batcher.MaxBatchSize)
	assert.Equal(t, "fx-ticks", cfg.Lake.Bucket)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte("batcher:\n  max_batch_size: 500\nlake:\n  bucket: custom-bucket\n"), 0o600))

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Batcher.MaxBatchSize)
	assert.Equal(t, "custom-bucket", cfg.Lake.Bucket)
}

func TestLoad_EnvOverridesDSN(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://u:p@localhost/ticks")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost/ticks", cfg.Postgres.DSN)
}

func TestValidate_RejectsNonPositiveBatchSize(t *testing.T) {
	cfg := Default()
	cfg.Batcher.MaxBatchSize = 0
	assert.Error(t, cfg.Validate())
}
