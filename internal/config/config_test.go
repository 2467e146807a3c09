package config

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	cmd := &cobra.Command{Use: "msg-viewer"}
	require.NoError(t, RegisterFlags(cmd))
	require.NoError(t, cmd.ParseFlags(args))
	return LoadConfig(cmd)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "localhost:8080", cfg.Address())
	assert.Equal(t, "http://localhost:8080", cfg.URL())
	assert.Contains(t, cfg.DBPath, ".msg-viewer")
	assert.Equal(t, StringsDrop, cfg.StringsMode)
	assert.Empty(t, cfg.ParserOptions())
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("MSG_VIEWER_EMAILS", "")

	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, "emails", cfg.EmailsPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 0, cfg.Codepage)
	assert.Empty(t, cfg.CORSOrigins)
}

func TestLoadConfig_Flags(t *testing.T) {
	cfg, err := load(t,
		"--emails", "/data/mail/",
		"--db", "/tmp/index.db",
		"--port", "9090",
		"--codepage", "1251",
		"--strings", "REPLACE",
		"--workers", "3",
		"--log-level", "WARNING",
		"--cors-origin", "http://a.test,http://b.test",
	)
	require.NoError(t, err)
	assert.Equal(t, "/data/mail", cfg.EmailsPath)
	assert.Equal(t, "/tmp/index.db", cfg.DBPath)
	assert.Equal(t, "localhost:9090", cfg.Address())
	assert.Equal(t, 1251, cfg.Codepage)
	assert.Equal(t, StringsReplace, cfg.StringsMode)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Len(t, cfg.ParserOptions(), 2)
}

func TestLoadConfig_EmailsFromEnv(t *testing.T) {
	t.Setenv("MSG_VIEWER_EMAILS", "/srv/archive")

	cfg, err := load(t)
	require.NoError(t, err)
	assert.Equal(t, "/srv/archive", cfg.EmailsPath)

	cfg, err = load(t, "--emails", "/explicit")
	require.NoError(t, err)
	assert.Equal(t, "/explicit", cfg.EmailsPath, "An explicit flag wins over the environment")
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad port", []string{"--port", "http"}, "--port"},
		{"port out of range", []string{"--port", "70000"}, "--port"},
		{"negative codepage", []string{"--codepage=-1"}, "--codepage"},
		{"no workers", []string{"--workers", "0"}, "--workers"},
		{"unknown strings mode", []string{"--strings", "lossy"}, "--strings"},
		{"unknown log level", []string{"--log-level", "trace"}, "--log-level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
