package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// DaemonConfig is the top-level mcman.toml read from the daemon's working
// directory at startup. Unknown keys are rejected.
type DaemonConfig struct {
	UnitDirectories []string `toml:"unit_directories"`
	Autostart       []string `toml:"autostart"`
	SocketFile      string   `toml:"socket_file"`
}

// LoadDaemonConfig reads and strictly decodes path, rejecting unknown keys.
// Daemon-level I/O failures here are fatal at startup per the error
// handling design — callers should treat a non-nil error as cause to exit.
func LoadDaemonConfig(path string) (*DaemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read daemon config %s: %w", path, err)
	}

	var cfg DaemonConfig
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse daemon config %s: %w", path, err)
	}
	if cfg.SocketFile == "" {
		return nil, fmt.Errorf("daemon config %s: socket_file is required", path)
	}
	return &cfg, nil
}
