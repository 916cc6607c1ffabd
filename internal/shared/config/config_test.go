package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CHARTYAP_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "http://localhost:8000", cfg.AnalysisBaseURL)
	assert.Equal(t, 120*time.Second, cfg.AnalysisTimeout)
	assert.Equal(t, 1, cfg.AnalysisRetries)
	assert.Equal(t, 5000, cfg.MaxDatasetRows)
	assert.Equal(t, 480, cfg.PreviewMaxDimension)
	assert.Equal(t, 40_000_000, cfg.PreviewMaxPixels)
	assert.Equal(t, 2*time.Hour, cfg.SessionIdleTTL)
	assert.Equal(t, "local", cfg.ObjectStoreType)
	assert.Empty(t, cfg.ConfigFile)
}

func TestLoadFileThenEnvPrecedence(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "custom.yaml")
	yaml := "port: \"9000\"\nanalysis_base_url: http://analyzer:8000/\nmax_dataset_rows: 100\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	t.Setenv("CHARTYAP_CONFIG", path)
	t.Setenv("MAX_DATASET_ROWS", "250")
	t.Setenv("CORS_ALLOW_ORIGINS", "http://a.test, ,http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "http://analyzer:8000", cfg.AnalysisBaseURL)
	assert.Equal(t, 250, cfg.MaxDatasetRows)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowOrigin)
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestLoadRejectsS3WithoutBucket(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CHARTYAP_CONFIG", "")
	t.Setenv("OBJECT_STORE", "s3")
	t.Setenv("S3_BUCKET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestNormalizeEnv(t *testing.T) {
	assert.Equal(t, "production", normalizeEnv("PROD"))
	assert.Equal(t, "dev", normalizeEnv("whatever"))
}
