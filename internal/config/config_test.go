// ABOUTME: Tests for TOML configuration loading and validation.
// ABOUTME: Covers env expansion, duration parsing, defaults, and required fields.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		path := writeConfig(t, `
[api]
base_url = "https://api.example.com"

[live]
url = "wss://live.example.com/socket"
connect_timeout = "5s"

[auth]
token_file = "/tmp/token"

[logging]
level = "debug"
format = "json"
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "https://api.example.com", cfg.API.BaseURL)
		assert.Equal(t, "wss://live.example.com/socket", cfg.Live.URL)
		assert.Equal(t, 5*time.Second, cfg.Live.ConnectTimeout)
		assert.Equal(t, "/tmp/token", cfg.Auth.TokenFile)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "json", cfg.Logging.Format)
	})

	t.Run("defaults applied", func(t *testing.T) {
		path := writeConfig(t, `
[api]
base_url = "http://localhost:8080"

[live]
url = "ws://localhost:8080/socket"
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, DefaultConnectTimeout, cfg.Live.ConnectTimeout)
		assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
		assert.Equal(t, DefaultLogFormat, cfg.Logging.Format)
	})

	t.Run("env vars expanded", func(t *testing.T) {
		t.Setenv("CONSULT_TEST_API", "https://api.example.com")

		path := writeConfig(t, `
[api]
base_url = "${CONSULT_TEST_API}"

[live]
url = "ws://localhost:8080/socket"
`)

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "https://api.example.com", cfg.API.BaseURL)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		assert.Error(t, err)
	})

	t.Run("invalid toml", func(t *testing.T) {
		path := writeConfig(t, "[api\nbase_url = ")
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing api base url",
			content: "[live]\nurl = \"ws://x/socket\"\n",
			wantErr: "api.base_url is required",
		},
		{
			name:    "non-http api url",
			content: "[api]\nbase_url = \"ftp://x\"\n[live]\nurl = \"ws://x/socket\"\n",
			wantErr: "api.base_url must be an http(s) URL",
		},
		{
			name:    "missing live url",
			content: "[api]\nbase_url = \"http://x\"\n",
			wantErr: "live.url is required",
		},
		{
			name:    "non-ws live url",
			content: "[api]\nbase_url = \"http://x\"\n[live]\nurl = \"http://x/socket\"\n",
			wantErr: "live.url must be a ws(s) URL",
		},
		{
			name:    "bad log level",
			content: "[api]\nbase_url = \"http://x\"\n[live]\nurl = \"ws://x\"\n[logging]\nlevel = \"loud\"\n",
			wantErr: "logging.level",
		},
		{
			name:    "bad log format",
			content: "[api]\nbase_url = \"http://x\"\n[live]\nurl = \"ws://x\"\n[logging]\nformat = \"xml\"\n",
			wantErr: "logging.format",
		},
		{
			name:    "bad connect timeout",
			content: "[api]\nbase_url = \"http://x\"\n[live]\nurl = \"ws://x\"\nconnect_timeout = \"fast\"\n",
			wantErr: "parsing connect_timeout",
		},
		{
			name:    "negative connect timeout",
			content: "[api]\nbase_url = \"http://x\"\n[live]\nurl = \"ws://x\"\nconnect_timeout = \"-1s\"\n",
			wantErr: "connect_timeout must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPath(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		t.Setenv("CONSULT_CONFIG", "/etc/consult/client.toml")
		assert.Equal(t, "/etc/consult/client.toml", Path())
	})

	t.Run("xdg config home", func(t *testing.T) {
		t.Setenv("CONSULT_CONFIG", "")
		t.Setenv("XDG_CONFIG_HOME", "/home/u/.config")
		assert.Equal(t, "/home/u/.config/consult/client.toml", Path())
	})
}
