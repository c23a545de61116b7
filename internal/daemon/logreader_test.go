package daemon

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcfleet/mcfleet/internal/protocol"
)

func TestClassifyMatchesExpectedLines(t *testing.T) {
	cases := []struct {
		line  string
		state OutputState
		kind  protocol.EventKind
	}{
		{"Loading libraries, please wait...", StateStarting, protocol.EventServerStarting},
		{"[12:00] Done (4.2s)! For help, type \"help\"", StateStarted, protocol.EventServerStarted},
		{"Stopping the server", StateStopping, protocol.EventServerStopping},
		{"Closing Server", StateStopped, protocol.EventServerStopped},
		{"Failed to load eula.txt", StateErrored, protocol.EventServerFailed},
	}
	for _, c := range cases {
		tr, ok := classify(c.line)
		require.True(t, ok, "line %q should classify", c.line)
		assert.Equal(t, c.state, tr.state)
		assert.Equal(t, c.kind, tr.event("u1").Kind)
	}
}

func TestClassifyUnmatchedLine(t *testing.T) {
	_, ok := classify("some random log chatter")
	assert.False(t, ok)
}

func TestRunLogReaderAppliesTransitionsAndWritesLog(t *testing.T) {
	logRoot := t.TempDir()
	u := NewUnit(paperUnitConfig(filepath.Join(logRoot, "install")), discardLogger())

	r, w, err := os.Pipe()
	require.NoError(t, err)

	subs := newSubscriptionManager(make(chan daemonEvent, 16), discardLogger())

	go func() {
		io.WriteString(w, "Loading libraries, please wait...\n")
		io.WriteString(w, "[12:00] Done (4.2s)! For help, type \"help\"\n")
		w.Close()
	}()

	runLogReader(u, "u1", r, logRoot, subs, discardLogger())

	assert.Equal(t, StateStarted, u.derived.get())

	var kinds []protocol.EventKind
	for {
		select {
		case cmd := <-subs.cmds:
			require.Equal(t, cmdDispatchEvent, cmd.kind)
			kinds = append(kinds, cmd.event.Kind)
		default:
			goto done
		}
	}
done:
	assert.Equal(t, []protocol.EventKind{protocol.EventServerStarting, protocol.EventServerStarted}, kinds)

	entries, err := os.ReadDir(filepath.Join(logRoot, "u1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRunLogReaderStopsOnInvalidUTF8(t *testing.T) {
	logRoot := t.TempDir()
	u := NewUnit(paperUnitConfig(filepath.Join(logRoot, "install")), discardLogger())

	r, w, err := os.Pipe()
	require.NoError(t, err)

	subs := newSubscriptionManager(make(chan daemonEvent, 16), discardLogger())

	go func() {
		io.WriteString(w, "Loading libraries, please wait...\n")
		w.Write([]byte{0xff, 0xfe, '\n'})
		// Never reached: runLogReader must have stopped before this line.
		io.WriteString(w, "Stopping the server\n")
		w.Close()
	}()

	runLogReader(u, "u1", r, logRoot, subs, discardLogger())

	assert.Equal(t, StateStarting, u.derived.get())

	var kinds []protocol.EventKind
	for {
		select {
		case cmd := <-subs.cmds:
			require.Equal(t, cmdDispatchEvent, cmd.kind)
			kinds = append(kinds, cmd.event.Kind)
		default:
			goto done
		}
	}
done:
	assert.Equal(t, []protocol.EventKind{protocol.EventServerStarting}, kinds)
}
