package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcfleet/mcfleet/internal/config"
	"github.com/mcfleet/mcfleet/internal/protocol"
)

func TestRunUpdateSuccessfulUpgrade(t *testing.T) {
	stubPatchJar(t)
	installPath := t.TempDir()
	unitFile := filepath.Join(t.TempDir(), "u1.toml")

	cfg := paperUnitConfig(installPath)
	cfg.Server.Version = "1.20.1+195"
	cfg.Path = unitFile
	unit := NewUnit(cfg, discardLogger())

	fr := newFakeRepository(t, "1.20.1+196")
	d := NewDispatcher(fr, t.TempDir(), "test-version", discardLogger())
	d.units["u1"] = unit

	runUpdate(d, "u1", unit, nil)

	events := drainEvents(t, d)
	require.NotEmpty(t, events)
	assert.Equal(t, protocol.EventUpdateComplete, events[len(events)-1].Kind)
	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, protocol.EventActionProgress, ev.Kind)
	}
	assert.True(t, actionsInOrder(events, []string{
		"resolving version",
		"resolving artifact",
		"downloading jar",
		"patching jar",
		"writing unit file",
	}), "expected the canonical update actions in order, got %+v", events)

	jarPath := filepath.Join(installPath, "paper_1.20.1-196.jar")
	_, err := os.Stat(jarPath)
	require.NoError(t, err)

	data, err := os.ReadFile(unitFile)
	require.NoError(t, err)
	var written config.ServerUnitConfig
	require.NoError(t, toml.Unmarshal(data, &written))
	assert.Equal(t, "1.20.1+196", written.Server.Version)
	assert.Equal(t, "paper_1.20.1-196.jar", written.Server.LauncherArtifact)

	select {
	case ev := <-d.events:
		assert.Equal(t, evtReplaceServerUnit, ev.kind)
		assert.Equal(t, unitFile, ev.unitFilePath)
	default:
		t.Fatal("expected evtReplaceServerUnit on the dispatcher's event channel")
	}
}

func TestRunUpdateAlreadyUpToDate(t *testing.T) {
	installPath := t.TempDir()
	unitFile := filepath.Join(t.TempDir(), "u1.toml")

	cfg := paperUnitConfig(installPath)
	cfg.Server.Version = "1.20.1+196"
	cfg.Path = unitFile
	require.NoError(t, config.WriteServerUnitFile(unitFile, cfg))
	unit := NewUnit(cfg, discardLogger())

	fr := newFakeRepository(t, "1.20.1+196")
	d := NewDispatcher(fr, t.TempDir(), "test-version", discardLogger())
	d.units["u1"] = unit

	runUpdate(d, "u1", unit, nil)

	events := drainEvents(t, d)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, protocol.EventUpdateFailed, last.Kind)
	assert.Contains(t, last.Error, "already up to date")

	data, err := os.ReadFile(unitFile)
	require.NoError(t, err)
	var onDisk config.ServerUnitConfig
	require.NoError(t, toml.Unmarshal(data, &onDisk))
	assert.Equal(t, "1.20.1+196", onDisk.Server.Version)

	assert.Empty(t, d.events)
}

func TestRunUpdateRejectsUnsupportedKind(t *testing.T) {
	cfg := paperUnitConfig(t.TempDir())
	cfg.Server.Kind = config.KindVanilla
	unit := NewUnit(cfg, discardLogger())

	d := NewDispatcher(nil, t.TempDir(), "test-version", discardLogger())
	d.units["u1"] = unit

	runUpdate(d, "u1", unit, nil)

	kinds := drainEventKinds(t, d)
	require.Len(t, kinds, 1)
	assert.Equal(t, protocol.EventUpdateFailed, kinds[0])
}
