package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcfleet/mcfleet/internal/config"
	"github.com/mcfleet/mcfleet/internal/protocol"
	"github.com/mcfleet/mcfleet/internal/repo"
	"github.com/mcfleet/mcfleet/internal/version"
)

// fakeArtifact is a repo.Artifact that writes canned bytes instead of
// reaching the network.
type fakeArtifact struct {
	v       version.Version
	content string
}

func (a *fakeArtifact) Version() version.Version { return a.v }

func (a *fakeArtifact) DownloadTo(ctx context.Context, destPath string) error {
	return os.WriteFile(destPath, []byte(a.content), 0644)
}

// fakeRepository is a repo.Repository returning one canned version/artifact,
// regardless of the request, matching the install/update test scenarios.
type fakeRepository struct {
	latest   version.Version
	artifact repo.Artifact
}

func (r *fakeRepository) ListVersions(ctx context.Context) ([]version.Version, error) {
	return []version.Version{r.latest}, nil
}

func (r *fakeRepository) ListBuilds(ctx context.Context, v version.Version) ([]version.Version, error) {
	return []version.Version{r.latest}, nil
}

func (r *fakeRepository) GetArtifact(ctx context.Context, v version.Version) (repo.Artifact, error) {
	return r.artifact, nil
}

func (r *fakeRepository) GetLatestArtifact(ctx context.Context, v version.Version) (repo.Artifact, error) {
	return r.artifact, nil
}

func (r *fakeRepository) LatestVersion(ctx context.Context) (version.Version, error) {
	return r.latest, nil
}

func newFakeRepository(t *testing.T, versionStr string) *fakeRepository {
	t.Helper()
	v, err := version.Parse(versionStr)
	require.NoError(t, err)
	return &fakeRepository{latest: v, artifact: &fakeArtifact{v: v, content: "fake-jar-bytes"}}
}

func drainEventKinds(t *testing.T, d *Dispatcher) []protocol.EventKind {
	t.Helper()
	var kinds []protocol.EventKind
	for {
		select {
		case cmd := <-d.subs.cmds:
			require.Equal(t, cmdDispatchEvent, cmd.kind)
			kinds = append(kinds, cmd.event.Kind)
		default:
			return kinds
		}
	}
}

func drainEvents(t *testing.T, d *Dispatcher) []protocol.ServerEvent {
	t.Helper()
	var events []protocol.ServerEvent
	for {
		select {
		case cmd := <-d.subs.cmds:
			require.Equal(t, cmdDispatchEvent, cmd.kind)
			events = append(events, cmd.event)
		default:
			return events
		}
	}
}

// actionsInOrder reports whether want appears as a (not necessarily
// contiguous) subsequence of the ActionProgress actions in events.
func actionsInOrder(events []protocol.ServerEvent, want []string) bool {
	i := 0
	for _, e := range events {
		if i < len(want) && e.Action == want[i] {
			i++
		}
	}
	return i == len(want)
}

// stubPatchJar replaces the java patch step with a no-op for the duration of
// the test: the fake artifact's bytes are not a real Paperclip jar, so a
// real java run would always fail.
func stubPatchJar(t *testing.T) {
	t.Helper()
	orig := patchJar
	patchJar = func(installPath, jarName string) error { return nil }
	t.Cleanup(func() { patchJar = orig })
}

func TestRunInstallLatestPaper(t *testing.T) {
	stubPatchJar(t)
	installPath := filepath.Join(t.TempDir(), "u1")
	unitFile := filepath.Join(t.TempDir(), "u1.toml")

	fr := newFakeRepository(t, "1.20.1+196")
	d := NewDispatcher(fr, t.TempDir(), "test-version", discardLogger())

	req := protocol.InstallServerRequest{
		UnitID:       "u1",
		InstallPath:  installPath,
		UnitFilePath: unitFile,
		Kind:         string(config.KindPaper),
		AcceptEula:   true,
	}

	runInstall(d, req)

	events := drainEvents(t, d)
	require.NotEmpty(t, events)
	assert.Equal(t, protocol.EventInstallationComplete, events[len(events)-1].Kind)
	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, protocol.EventActionProgress, ev.Kind)
	}
	assert.True(t, actionsInOrder(events, []string{
		"creating server directory",
		"creating initial server configuration",
		"downloading jar",
		"patching jar",
	}), "expected the canonical install actions in order, got %+v", events)

	eula, err := os.ReadFile(filepath.Join(installPath, "eula.txt"))
	require.NoError(t, err)
	assert.Equal(t, "eula=true\n", string(eula))

	jarPath := filepath.Join(installPath, "paper_1.20.1-196.jar")
	_, err = os.Stat(jarPath)
	require.NoError(t, err)

	data, err := os.ReadFile(unitFile)
	require.NoError(t, err)
	var cfg config.ServerUnitConfig
	require.NoError(t, toml.Unmarshal(data, &cfg))
	assert.Equal(t, "u1", cfg.Unit.ID)
	assert.Equal(t, "1.20.1+196", cfg.Server.Version)
	assert.Equal(t, "paper_1.20.1-196.jar", cfg.Server.LauncherArtifact)

	select {
	case ev := <-d.events:
		assert.Equal(t, evtAddServerUnit, ev.kind)
		assert.Equal(t, "u1", ev.unitConfig.Unit.ID)
	default:
		t.Fatal("expected evtAddServerUnit on the dispatcher's event channel")
	}
}

func TestRunInstallFailsWithoutUnitFilePath(t *testing.T) {
	stubPatchJar(t)
	installPath := filepath.Join(t.TempDir(), "u1")
	fr := newFakeRepository(t, "1.20.1+196")
	d := NewDispatcher(fr, t.TempDir(), "test-version", discardLogger())

	req := protocol.InstallServerRequest{
		UnitID:      "u1",
		InstallPath: installPath,
		Kind:        string(config.KindPaper),
	}

	runInstall(d, req)

	kinds := drainEventKinds(t, d)
	require.NotEmpty(t, kinds)
	assert.Equal(t, protocol.EventInstallationFailed, kinds[len(kinds)-1])
}

func TestRunInstallRejectsUnsupportedKind(t *testing.T) {
	d := NewDispatcher(nil, t.TempDir(), "test-version", discardLogger())
	req := protocol.InstallServerRequest{UnitID: "u1", InstallPath: t.TempDir(), Kind: "Vanilla"}

	runInstall(d, req)

	kinds := drainEventKinds(t, d)
	require.Len(t, kinds, 1)
	assert.Equal(t, protocol.EventInstallationFailed, kinds[0])
}
