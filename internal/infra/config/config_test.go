package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestMustLoadIngressDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
redis:
  addr: localhost:6379
nats:
  url: nats://localhost:4222
  subject: clips.jobs
minio:
  endpoint: localhost:9000
  bucket: clips
artifact:
  retention: 24h
cors_origins: ["*"]
`)

	cfg := MustLoadIngress(path)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 2*time.Hour, cfg.MaxClipDuration)
	assert.Equal(t, "96k", cfg.DefaultBitrate)
	assert.Equal(t, BackendMinIO, cfg.Artifact.Backend)
	assert.Equal(t, "AUDIO_CLIPS", cfg.NATS.Stream)
	assert.Equal(t, 24*time.Hour, cfg.Artifact.Retention)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestMustLoadDistributor(t *testing.T) {
	path := writeConfig(t, `
redis:
  addr: localhost:6379
nats:
  subject: clips.jobs
  stream: CLIPS
artifact:
  backend: local
  local_dir: /tmp/clips
  retention: 1h
job_budget: 10m
terminal_reserve: 20s
secret:
  backend: file
  path: /etc/clip/cookies.json
`)

	cfg := MustLoadDistributor(path)

	assert.Equal(t, 10*time.Minute, cfg.JobBudget)
	assert.Equal(t, 20*time.Second, cfg.TerminalReserve)
	assert.Equal(t, 2*time.Hour, cfg.RecordTTL)
	assert.Equal(t, "yt-dlp", cfg.YTDLPPath)
	assert.Equal(t, SecretFile, cfg.Secret.Backend)
	assert.Equal(t, "CLIPS", cfg.NATS.Stream)
	assert.Empty(t, cfg.ConverterAddr)
}

func TestLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, Level("DEBUG"))
	assert.Equal(t, slog.LevelWarn, Level("warning"))
	assert.Equal(t, slog.LevelError, Level("error"))
	assert.Equal(t, slog.LevelInfo, Level("whatever"))
}
