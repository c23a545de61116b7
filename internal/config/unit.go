package config

import (
	"bytes"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/mcfleet/mcfleet/internal/version"
)

// ServerKind enumerates the Minecraft server flavors a unit can wrap. Only
// Paper has an implemented install/update pipeline; the others are valid
// unit kinds with no repository-backed automation yet.
type ServerKind string

const (
	KindVanilla ServerKind = "Vanilla"
	KindPaper   ServerKind = "Paper"
	KindBukkit  ServerKind = "Bukkit"
	KindSpigot  ServerKind = "Spigot"
)

func ParseServerKind(s string) (ServerKind, error) {
	switch ServerKind(s) {
	case KindVanilla, KindPaper, KindBukkit, KindSpigot:
		return ServerKind(s), nil
	default:
		return "", fmt.Errorf("unsupported server kind %q", s)
	}
}

// UnitConfig is the common header every unit file carries, regardless of
// kind.
type UnitConfig struct {
	ID   string `toml:"id"`
	Kind string `toml:"type"`
}

// simpleUnitConfig is the first-stage parse used to decide whether a unit
// file is worth parsing further. TOML keys are nested under [unit].
type simpleUnitConfig struct {
	Unit UnitConfig `toml:"unit"`
}

// ServerConfig is the on-disk server-specific half of a unit file.
type ServerConfig struct {
	DisplayName     string     `toml:"display_name"`
	InstallPath     string     `toml:"install_path"`
	Kind            ServerKind `toml:"kind"`
	LauncherArtifact string    `toml:"launcher_artifact"`
	Version         string     `toml:"version"`
	MemoryGB        int        `toml:"memory_gb"`
}

// ServerUnitConfig is UnitConfig ∧ ServerConfig — the full on-disk form for
// type = "server" unit files.
type ServerUnitConfig struct {
	Unit   UnitConfig   `toml:"unit"`
	Server ServerConfig `toml:"server"`

	// Path is the unit file's location on disk, populated by the loader
	// and not part of the TOML document itself.
	Path string `toml:"-"`
}

// ParsedVersion parses the on-disk version string into a comparable
// version.Version.
func (c *ServerUnitConfig) ParsedVersion() (version.Version, error) {
	return version.Parse(c.Server.Version)
}

// loadServerUnitConfig fully parses a unit file already known (via the
// first-stage parse) to declare type = "server".
func loadServerUnitConfig(path string, data []byte) (*ServerUnitConfig, error) {
	var cfg ServerUnitConfig
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	if _, err := ParseServerKind(string(cfg.Server.Kind)); err != nil {
		return nil, err
	}
	cfg.Path = path
	return &cfg, nil
}

// WriteServerUnitFile TOML-encodes cfg's [unit] and [server] tables and
// atomically writes them to path. cfg.Path is not consulted.
func WriteServerUnitFile(path string, cfg *ServerUnitConfig) error {
	data, err := toml.Marshal(struct {
		Unit   UnitConfig   `toml:"unit"`
		Server ServerConfig `toml:"server"`
	}{cfg.Unit, cfg.Server})
	if err != nil {
		return fmt.Errorf("marshal unit file: %w", err)
	}
	return AtomicWriteFile(path, data, 0644)
}

// ScanUnitFiles recursively walks every directory in dirs for *.toml
// files, two-stage parsing each as a candidate unit file. Files that fail
// to read or parse are skipped with a warning. Files that declare a type
// other than "server" are skipped silently (non-server unit kinds are
// valid but outside the Paper-only supervisor's scope), as are non-.toml
// and non-file entries.
func ScanUnitFiles(dirs []string, logger *slog.Logger) []*ServerUnitConfig {
	var found []*ServerUnitConfig

	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logger.Warn("unit scan: walk error", "path", path, "error", err)
				return nil
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".toml") {
				return nil
			}

			data, err := os.ReadFile(path)
			if err != nil {
				logger.Warn("unit scan: read failed", "path", path, "error", err)
				return nil
			}

			var simple simpleUnitConfig
			dec := toml.NewDecoder(bytes.NewReader(data))
			if err := dec.Decode(&simple); err != nil {
				logger.Warn("unit scan: parse failed", "path", path, "error", err)
				return nil
			}
			if simple.Unit.Kind != "server" {
				return nil
			}

			cfg, err := loadServerUnitConfig(path, data)
			if err != nil {
				logger.Warn("unit scan: server config parse failed", "path", path, "error", err)
				return nil
			}
			found = append(found, cfg)
			return nil
		})
		if err != nil {
			logger.Warn("unit scan: directory walk failed", "dir", dir, "error", err)
		}
	}

	return found
}
