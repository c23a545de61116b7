package daemon

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mcfleet/mcfleet/internal/config"
	"github.com/mcfleet/mcfleet/internal/protocol"
)

// transition is one row of the line → state-transition table.
type transition struct {
	match func(line string) bool
	state OutputState
	event func(unitID string) protocol.ServerEvent
}

var transitions = []transition{
	{
		match: func(l string) bool { return strings.HasPrefix(l, "Loading libraries") },
		state: StateStarting,
		event: func(id string) protocol.ServerEvent {
			return protocol.ServerEvent{UnitID: id, Kind: protocol.EventServerStarting}
		},
	},
	{
		match: func(l string) bool { return strings.Contains(l, "Done (") && strings.Contains(l, "s)! For help") },
		state: StateStarted,
		event: func(id string) protocol.ServerEvent {
			return protocol.ServerEvent{UnitID: id, Kind: protocol.EventServerStarted}
		},
	},
	{
		match: func(l string) bool { return strings.Contains(l, "Stopping the server") },
		state: StateStopping,
		event: func(id string) protocol.ServerEvent {
			return protocol.ServerEvent{UnitID: id, Kind: protocol.EventServerStopping}
		},
	},
	{
		match: func(l string) bool { return strings.Contains(l, "Closing Server") },
		state: StateStopped,
		event: func(id string) protocol.ServerEvent {
			return protocol.ServerEvent{UnitID: id, Kind: protocol.EventServerStopped}
		},
	},
	{
		match: func(l string) bool { return strings.Contains(l, "Failed to load eula.txt") },
		state: StateErrored,
		event: func(id string) protocol.ServerEvent {
			return protocol.ServerEvent{UnitID: id, Kind: protocol.EventServerFailed, Error: "EULA not accepted"}
		},
	},
}

// classify applies the line→transition table, first match wins. Returns
// ok=false for unmatched lines, which are still logged but raise no
// transition.
func classify(line string) (transition, bool) {
	for _, t := range transitions {
		if t.match(line) {
			return t, true
		}
	}
	return transition{}, false
}

// runLogReader consumes stdout line by line, appending every line to a
// per-start rotating log file, applying the line→transition table to the
// unit's derived-state cell, and posting DispatchEvent to the subscription
// manager for every transition raised. It returns when stdout closes or an
// invalid UTF-8 line is encountered.
func runLogReader(unit *Unit, unitID string, stdout io.ReadCloser, logRoot string, subs *subscriptionManager, logger *slog.Logger) {
	defer stdout.Close()

	logPath, logFile, err := openUnitLogFile(logRoot, unitID)
	if err != nil {
		logger.Warn("log interpreter: could not open log file", "error", err)
	} else {
		defer logFile.Close()
	}
	logger.Debug("log interpreter started", "log_file", logPath)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !utf8.ValidString(line) {
			logger.Warn("log interpreter: invalid UTF-8 in child stdout, stopping")
			break
		}
		if logFile != nil {
			fmt.Fprintln(logFile, line)
		}

		t, ok := classify(line)
		if !ok {
			continue
		}
		unit.derived.set(t.state)
		subs.enqueue(eventManagerCmd{kind: cmdDispatchEvent, event: t.event(unitID)})
	}

	if err := scanner.Err(); err != nil {
		logger.Warn("log interpreter: stdout read error", "error", err)
	}
}

func openUnitLogFile(logRoot, unitID string) (string, *os.File, error) {
	dir := config.UnitLogDir(logRoot, unitID)
	if err := config.EnsureDir(dir, 0700); err != nil {
		return "", nil, err
	}
	name := time.Now().UTC().Format("2006-01-02T15-04-05Z") + "_out.log"
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return "", nil, err
	}
	return path, f, nil
}
