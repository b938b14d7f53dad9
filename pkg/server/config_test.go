package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTOMLConfig(t *testing.T) {
	config := DefaultTOMLConfig()
	assert.Equal(t, ":5555", config.Server.ListenAddr)
	assert.Empty(t, config.Server.WSAddr)
	assert.Equal(t, "127.0.0.1:9090", config.Server.MetricsAddr)
	assert.Equal(t, "~/.certroom", config.Server.DataDir)
	assert.True(t, config.Audit.Enabled)
}

func TestLoadConfigCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":5555", config.Server.ListenAddr)

	// The default file was written and parses back to the same values
	_, err = os.Stat(path)
	require.NoError(t, err)
	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config, again)
}

func TestLoadConfigParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
listen_addr = ":7777"
ws_addr = ":7778"
metrics_addr = ""
data_dir = "/tmp/certroom-test"

[tls]
cert_file = "/etc/certroom/server.crt"
key_file = "/etc/certroom/server.key"
ca_file = "/etc/certroom/ca.crt"

[audit]
enabled = false
database_path = "/tmp/certroom-test/audit.db"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":7777", config.Server.ListenAddr)
	assert.Equal(t, ":7778", config.Server.WSAddr)
	assert.Empty(t, config.Server.MetricsAddr)
	assert.Equal(t, "/etc/certroom/server.crt", config.TLS.CertFile)
	assert.False(t, config.Audit.Enabled)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	t.Setenv("CERTROOM_SERVER_LISTEN_ADDR", ":9999")
	t.Setenv("CERTROOM_TLS_CA_FILE", "/override/ca.crt")
	t.Setenv("CERTROOM_AUDIT_ENABLED", "false")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", config.Server.ListenAddr)
	assert.Equal(t, "/override/ca.crt", config.TLS.CAFile)
	assert.False(t, config.Audit.Enabled)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".certroom"), expandHome("~/.certroom"))
	assert.Equal(t, "/absolute/path", expandHome("/absolute/path"))
	assert.Equal(t, "relative", expandHome("relative"))
}
