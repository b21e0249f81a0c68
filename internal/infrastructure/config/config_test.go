package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Reconcile.SuppressionTTL())
	assert.Equal(t, 1000, cfg.Reconcile.FetchPageSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Reconcile.BulkInsertDelay())
	assert.Equal(t, time.Minute, cfg.Reconcile.OverdueCheckInterval())
	assert.Equal(t, "Europe/Prague", cfg.Biz.Timezone)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "redis", cfg.Queue.Backend)
	assert.Same(t, cfg, Get())
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
reconcile:
  suppression_ttl_seconds: 8
queue:
  backend: file
  file_path: /var/lib/ntconsole/queue.json
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("NTCONSOLE_REDIS_HOST", "redis.internal")

	cfg, err := Load("debug", path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, 8*time.Second, cfg.Reconcile.SuppressionTTL())
	assert.Equal(t, "file", cfg.Queue.Backend)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.GetAddr())
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
