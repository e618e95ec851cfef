package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/signage-server/signage-gateway-pro/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "device-gateway.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
server:
  name: device-gateway
  version: 1.0.0
database:
  dsn: postgres://localhost/gateway?sslmode=disable
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, 9000, cfg.Gateway.Port)
	require.Equal(t, 500, cfg.Gateway.MaxConnections)
	require.Equal(t, 30*time.Second, cfg.Gateway.ConnectionTimeout)
	require.Equal(t, 60*time.Second, cfg.Gateway.ClientTimeout)
	require.Equal(t, 1024, cfg.Gateway.BufferSize)
	require.Equal(t, "^", cfg.Gateway.FrameStart)
	require.Equal(t, "+", cfg.Gateway.FrameDelimiter)
	require.Equal(t, "~", cfg.Gateway.FrameEnd)
	require.Equal(t, 60, cfg.Gateway.RateLimitPerMinute)
	require.Equal(t, 3, cfg.Gateway.MaxUnapprovedAttempts)
	require.Equal(t, 30*time.Minute, cfg.Gateway.BlacklistDuration)
	require.Equal(t, 10*time.Second, cfg.Redis.RuleTTL)

	m := cfg.Gateway.Markers()
	require.Equal(t, byte('^'), m.Start)
	require.Equal(t, byte('+'), m.Delimiter)
	require.Equal(t, byte('~'), m.End)
}

func TestLoad_CustomFraming(t *testing.T) {
	path := writeConfig(t, `
gateway:
  port: 9100
  frame_start: "<"
  frame_delimiter: "|"
  frame_end: ">"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "<", cfg.Gateway.FrameStart)
	require.Equal(t, ":9100", cfg.Gateway.Addr())
}

func TestLoad_RejectsMultiCharMarker(t *testing.T) {
	path := writeConfig(t, `
gateway:
  frame_start: "^^"
`)

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsDuplicateMarkers(t *testing.T) {
	path := writeConfig(t, `
gateway:
  frame_start: "+"
`)

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: postgres://localhost/gateway
gateway:
  port: 9000
`)

	t.Setenv("DATABASE_URL", "postgres://other/db")
	t.Setenv("GATEWAY_PORT", "9555")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "postgres://other/db", cfg.Database.DSN)
	require.Equal(t, 9555, cfg.Gateway.Port)
	require.Equal(t, "env-secret", cfg.JWT.Secret)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}
