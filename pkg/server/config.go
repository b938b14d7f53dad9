package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// TOMLConfig represents the structure of the server config file.
type TOMLConfig struct {
	Server ServerSection `toml:"server"`
	TLS    TLSSection    `toml:"tls"`
	Audit  AuditSection  `toml:"audit"`
}

// ServerSection configures the listeners. Connection reads carry no
// deadline: a connected-but-silent peer holds its handler until it
// disconnects. That is a deliberate choice, not an oversight - the protocol
// has no keepalive, and killing quiet clients would disconnect idle but
// healthy GUI sessions.
type ServerSection struct {
	ListenAddr  string `toml:"listen_addr"`
	WSAddr      string `toml:"ws_addr"`      // WebSocket transport ("" = disabled)
	MetricsAddr string `toml:"metrics_addr"` // Internal /metrics + /health ("" = disabled)
	DataDir     string `toml:"data_dir"`     // Log files live here
}

type TLSSection struct {
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
	CAFile   string `toml:"ca_file"`
}

type AuditSection struct {
	Enabled      bool   `toml:"enabled"`
	DatabasePath string `toml:"database_path"`
}

// DefaultTOMLConfig returns the default configuration.
func DefaultTOMLConfig() TOMLConfig {
	return TOMLConfig{
		Server: ServerSection{
			ListenAddr:  ":5555",
			WSAddr:      "",
			MetricsAddr: "127.0.0.1:9090",
			DataDir:     "~/.certroom",
		},
		TLS: TLSSection{
			CertFile: "~/.certroom/server.crt",
			KeyFile:  "~/.certroom/server.key",
			CAFile:   "~/.certroom/ca.crt",
		},
		Audit: AuditSection{
			Enabled:      true,
			DatabasePath: "~/.certroom/audit.db",
		},
	}
}

// LoadConfig loads configuration from a TOML file, creates a default file
// if none exists, and applies environment variable overrides.
func LoadConfig(path string) (TOMLConfig, error) {
	path = expandHome(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := DefaultTOMLConfig()
		if err := writeDefaultConfig(path, config); err != nil {
			// If we can't write, just run on defaults
			// (might be a permissions issue, but we can still serve)
			return applyEnvOverrides(config), nil
		}
		return applyEnvOverrides(config), nil
	}

	var config TOMLConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return applyEnvOverrides(config), nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Variables follow the pattern CERTROOM_SECTION_KEY, e.g.
// CERTROOM_SERVER_LISTEN_ADDR=":6555".
func applyEnvOverrides(config TOMLConfig) TOMLConfig {
	// Server section
	if val := os.Getenv("CERTROOM_SERVER_LISTEN_ADDR"); val != "" {
		config.Server.ListenAddr = val
	}
	if val := os.Getenv("CERTROOM_SERVER_WS_ADDR"); val != "" {
		config.Server.WSAddr = val
	}
	if val := os.Getenv("CERTROOM_SERVER_METRICS_ADDR"); val != "" {
		config.Server.MetricsAddr = val
	}
	if val := os.Getenv("CERTROOM_SERVER_DATA_DIR"); val != "" {
		config.Server.DataDir = val
	}

	// TLS section
	if val := os.Getenv("CERTROOM_TLS_CERT_FILE"); val != "" {
		config.TLS.CertFile = val
	}
	if val := os.Getenv("CERTROOM_TLS_KEY_FILE"); val != "" {
		config.TLS.KeyFile = val
	}
	if val := os.Getenv("CERTROOM_TLS_CA_FILE"); val != "" {
		config.TLS.CAFile = val
	}

	// Audit section
	if val := os.Getenv("CERTROOM_AUDIT_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			config.Audit.Enabled = enabled
		}
	}
	if val := os.Getenv("CERTROOM_AUDIT_DATABASE_PATH"); val != "" {
		config.Audit.DatabasePath = val
	}

	return config
}

// writeDefaultConfig writes the default config file, creating the directory
// if needed.
func writeDefaultConfig(path string, config TOMLConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(config)
}

// expandHome expands a leading ~/ to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, path[2:])
}
