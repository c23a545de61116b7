package daemon

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/mcfleet/mcfleet/internal/config"
	"github.com/mcfleet/mcfleet/internal/protocol"
	"github.com/mcfleet/mcfleet/internal/version"
)

// defaultInstallMemoryGB is written into a newly installed unit's file,
// since the install request doesn't carry a memory allocation. Updates keep
// whatever memory_gb the unit file already holds, and launch reads it from
// there. Chosen as a conservative default a server operator will
// typically adjust via the unit file afterward.
const defaultInstallMemoryGB = 2

// runInstall drives the Paper install pipeline described in §4.6. It runs
// detached from the dispatcher goroutine; every step raises ActionProgress
// via the subscription manager before executing, and the worker posts
// AddServerUnit back to the dispatcher on success so the unit table stays
// single-writer.
func runInstall(d *Dispatcher, req protocol.InstallServerRequest) {
	ctx := context.Background()
	step := uint64(0)

	raiseProgress := func(action string) {
		step++
		s := step
		d.subs.enqueue(eventManagerCmd{kind: cmdDispatchEvent, event: protocol.ServerEvent{
			UnitID: req.UnitID, Kind: protocol.EventActionProgress, Action: action, Step: &s,
		}})
	}
	fail := func(message string) {
		d.subs.enqueue(eventManagerCmd{kind: cmdDispatchEvent, event: protocol.ServerEvent{
			UnitID: req.UnitID, Kind: protocol.EventInstallationFailed, Error: message,
		}})
	}

	kind, err := config.ParseServerKind(req.Kind)
	if err != nil {
		fail(err.Error())
		return
	}
	if kind != config.KindPaper {
		fail(fmt.Sprintf("unsupported server kind %q", kind))
		return
	}

	raiseProgress("creating server directory")
	if _, err := os.Stat(req.InstallPath); err == nil {
		fail("install path already exists")
		return
	}
	if err := config.EnsureDir(req.InstallPath, 0755); err != nil {
		fail(fmt.Sprintf("create directory: %v", err))
		return
	}

	if req.AcceptEula {
		raiseProgress("creating initial server configuration")
		eulaPath := filepath.Join(req.InstallPath, "eula.txt")
		if err := os.WriteFile(eulaPath, []byte("eula=true\n"), 0644); err != nil {
			fail(fmt.Sprintf("write eula.txt: %v", err))
			return
		}
	}

	raiseProgress("resolving version")
	var target version.Version
	if req.Version != nil {
		target, err = version.Parse(*req.Version)
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
	artifact, err := d.repository.GetArtifact(ctx, target)
	if err != nil {
		fail(err.Error())
		return
	}
	resolved := artifact.Version()
	jarName := "paper_" + resolved.JarSuffix() + ".jar"
	jarPath := filepath.Join(req.InstallPath, jarName)

	raiseProgress("downloading jar")
	if err := artifact.DownloadTo(ctx, jarPath); err != nil {
		fail(err.Error())
		return
	}

	raiseProgress("patching jar")
	if err := patchJar(req.InstallPath, jarName); err != nil {
		fail(err.Error())
		return
	}

	if req.UnitFilePath == "" {
		// Resolved open question: the source returns DirExists here,
		// which is the wrong variant — an absent unit file path is a
		// configuration problem, not a directory collision.
		fail("unsupported configuration: no unit_file_path was provided to persist the installed unit")
		return
	}

	displayName := req.UnitID
	if req.DisplayName != nil {
		displayName = *req.DisplayName
	}

	cfg := &config.ServerUnitConfig{
		Unit: config.UnitConfig{ID: req.UnitID, Kind: "server"},
		Server: config.ServerConfig{
			DisplayName:      displayName,
			InstallPath:      req.InstallPath,
			Kind:             config.KindPaper,
			LauncherArtifact: jarName,
			Version:          resolved.String(),
			MemoryGB:         defaultInstallMemoryGB,
		},
	}

	raiseProgress("writing unit file")
	if err := config.WriteServerUnitFile(req.UnitFilePath, cfg); err != nil {
		fail(fmt.Sprintf("write unit file: %v", err))
		return
	}
	cfg.Path = req.UnitFilePath

	d.subs.enqueue(eventManagerCmd{kind: cmdDispatchEvent, event: protocol.ServerEvent{
		UnitID: req.UnitID, Kind: protocol.EventInstallationComplete,
	}})
	d.Enqueue(daemonEvent{kind: evtAddServerUnit, unitConfig: cfg, unitFilePath: req.UnitFilePath})
}

// patchJar spawns `java -Dpaperclip.patchonly=true -jar <name>` in
// installPath and waits for it to exit, as PaperClip requires to unpack
// its bundled Paper jar on first run. It is a package variable so tests can
// replace the java invocation.
var patchJar = func(installPath, jarName string) error {
	cmd := exec.Command("java", "-Dpaperclip.patchonly=true", "-jar", jarName)
	cmd.Dir = installPath
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("patch jar: %s", stderr.String())
	}
	return nil
}
