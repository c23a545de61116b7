package daemon

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mcfleet/mcfleet/internal/config"
	"github.com/mcfleet/mcfleet/internal/protocol"
	"github.com/mcfleet/mcfleet/internal/repo"
	"github.com/mcfleet/mcfleet/internal/version"
)

// runUpdate drives the update pipeline described in §4.7: resolve a target
// version, refuse if the unit's current build already dominates it,
// otherwise download and patch a fresh jar and replace the unit's on-disk
// record. It runs detached from the dispatcher goroutine, the same way
// runInstall does, and reuses patchJar from install.go.
func runUpdate(d *Dispatcher, unitID string, unit *Unit, reqVersion *string) {
	ctx := context.Background()
	step := uint64(0)

	raiseProgress := func(action string) {
		step++
		s := step
		d.subs.enqueue(eventManagerCmd{kind: cmdDispatchEvent, event: protocol.ServerEvent{
			UnitID: unitID, Kind: protocol.EventActionProgress, Action: action, Step: &s,
		}})
	}
	fail := func(message string) {
		d.subs.enqueue(eventManagerCmd{kind: cmdDispatchEvent, event: protocol.ServerEvent{
			UnitID: unitID, Kind: protocol.EventUpdateFailed, Error: message,
		}})
	}

	cfg := unit.Config
	if cfg.Server.Kind != config.KindPaper {
		fail(fmt.Sprintf("unsupported server kind %q", cfg.Server.Kind))
		return
	}

	current, err := cfg.ParsedVersion()
	if err != nil {
		fail(fmt.Sprintf("parse current version: %v", err))
		return
	}

	raiseProgress("resolving version")
	var target version.Version
	if reqVersion != nil {
		target, err = version.Parse(*reqVersion)
		if err != nil {
			fail(err.Error())
			return
		}
	} else {
		target, err = d.repository.LatestVersion(ctx)
		if err != nil {
			fail(err.Error())
			return
		}
	}

	raiseProgress("resolving artifact")
	var artifact repo.Artifact
	artifact, err = d.repository.GetArtifact(ctx, target)
	if err != nil {
		fail(err.Error())
		return
	}

	resolved := artifact.Version()
	if current.Dominates(resolved) {
		fail(fmt.Sprintf("already up to date: %s dominates %s", current.String(), resolved.String()))
		return
	}

	jarName := "paper_" + resolved.JarSuffix() + ".jar"
	jarPath := filepath.Join(cfg.Server.InstallPath, jarName)

	raiseProgress("downloading jar")
	if err := artifact.DownloadTo(ctx, jarPath); err != nil {
		fail(err.Error())
		return
	}

	raiseProgress("patching jar")
	if err := patchJar(cfg.Server.InstallPath, jarName); err != nil {
		fail(err.Error())
		return
	}

	updated := &config.ServerUnitConfig{
		Unit: cfg.Unit,
		Server: config.ServerConfig{
			DisplayName:      cfg.Server.DisplayName,
			InstallPath:      cfg.Server.InstallPath,
			Kind:             cfg.Server.Kind,
			LauncherArtifact: jarName,
			Version:          resolved.String(),
			MemoryGB:         cfg.Server.MemoryGB,
		},
	}

	raiseProgress("writing unit file")
	if err := config.WriteServerUnitFile(cfg.Path, updated); err != nil {
		fail(fmt.Sprintf("write unit file: %v", err))
		return
	}

	d.subs.enqueue(eventManagerCmd{kind: cmdDispatchEvent, event: protocol.ServerEvent{
		UnitID: unitID, Kind: protocol.EventUpdateComplete,
	}})
	d.Enqueue(daemonEvent{kind: evtReplaceServerUnit, unitConfig: updated, unitFilePath: cfg.Path})
}
