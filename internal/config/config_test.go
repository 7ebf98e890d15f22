package config

import (
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
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "operator:\n  jwt_secret: s3cret\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 0.3, cfg.RAG.ConfidenceThreshold)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, "memory", cfg.Clarify.Backend)
	assert.Equal(t, 15*time.Minute, cfg.Clarify.TTL)
	assert.Equal(t, 12*time.Hour, cfg.Operator.TokenTTL)
	assert.Equal(t, "0.0.0.0:8000", cfg.Address())
	assert.False(t, cfg.TelegramEnabled())
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
rag:
  confidence_threshold: 0.5
clarify:
  backend: redis
operator:
  jwt_secret: s3cret
telegram:
  bot_token: token
  chat_id: "-100"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 0.5, cfg.RAG.ConfidenceThreshold)
	assert.Equal(t, "redis", cfg.Clarify.Backend)
	assert.True(t, cfg.TelegramEnabled())
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "operator:\n  jwt_secret: s3cret\n")
	t.Setenv("HELPDESK_SERVER_PORT", "7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing secret", "server:\n  port: 8000\n"},
		{"threshold out of range", "operator:\n  jwt_secret: x\nrag:\n  confidence_threshold: 1.5\n"},
		{"unknown clarify backend", "operator:\n  jwt_secret: x\nclarify:\n  backend: memcached\n"},
		{"unknown provider", "operator:\n  jwt_secret: x\nllm:\n  provider: bard\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
