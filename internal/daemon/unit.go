package daemon

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"

	"github.com/mcfleet/mcfleet/internal/config"
	"github.com/mcfleet/mcfleet/internal/logging"
)

// OutputState is the log-interpreter-assigned lifecycle phase of a unit's
// process. It is written by exactly one worker (the log reader) and read
// by many (every status() call).
type OutputState int

const (
	StateUnknown OutputState = iota
	StateStarting
	StateStarted
	StateErrored
	StateStopping
	StateStopped
)

// ServerStatus is the value reported to clients — a projection of
// OutputState plus process liveness.
type ServerStatus string

const (
	StatusUnknown  ServerStatus = "Unknown"
	StatusDown     ServerStatus = "Down"
	StatusStarting ServerStatus = "Starting"
	StatusRunning  ServerStatus = "Running"
	StatusStopping ServerStatus = "Stopping"
	StatusErrored  ServerStatus = "Errored"
	StatusUpdating ServerStatus = "Updating"
	StatusLockdown ServerStatus = "Lockdown"
)

// stateCell is the shared mutable cell between the log interpreter
// (single writer) and the dispatcher (many readers), per §4.3's
// single-writer/many-reader requirement. A plain RWMutex suffices since
// reads never block writers for more than the duration of a read.
type stateCell struct {
	mu    sync.RWMutex
	state OutputState
}

func (c *stateCell) get() OutputState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *stateCell) set(s OutputState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Unit is the in-memory supervisor record for one unit: its on-disk
// config, an optional owned child process, and a reference to the
// derived-state cell the log interpreter writes.
type Unit struct {
	Config *config.ServerUnitConfig

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	exited  bool
	exitErr error
	done    chan struct{}

	derived *stateCell
	logger  *slog.Logger
}

// NewUnit constructs a Unit with no child process — status() will report
// Down until Start succeeds. logger is tagged with this unit's id so every
// log line the unit's own goroutines raise (exit accounting, the log
// interpreter) is attributable without repeating the id at every call site.
func NewUnit(cfg *config.ServerUnitConfig, logger *slog.Logger) *Unit {
	return &Unit{
		Config:  cfg,
		derived: &stateCell{state: StateUnknown},
		logger:  logging.UnitLogger(logger, cfg.Unit.ID),
	}
}

// launchCommand builds the per-kind launch invocation. Only Paper has an
// implemented launcher strategy; other kinds report it explicitly rather
// than guessing at a generic launch line, per the re-architecture note to
// replace trait-object polymorphism with an explicit per-kind strategy.
func launchCommand(cfg *config.ServerUnitConfig) (*exec.Cmd, error) {
	switch cfg.Server.Kind {
	case config.KindPaper:
		args := []string{
			fmt.Sprintf("-Xms%dG", cfg.Server.MemoryGB),
			fmt.Sprintf("-Xmx%dG", cfg.Server.MemoryGB),
			"-jar", cfg.Server.LauncherArtifact,
			"--nogui",
		}
		if cfg.Server.DisplayName != "" {
			args = append(args, "--server-name", cfg.Server.DisplayName)
		}
		cmd := exec.Command("java", args...)
		cmd.Dir = cfg.Server.InstallPath
		return cmd, nil
	default:
		return nil, fmt.Errorf("no launch strategy for server kind %q", cfg.Server.Kind)
	}
}

// Start spawns the unit's child process with stdin and stdout piped and
// stderr inherited, in a new process group so the daemon can signal the
// whole tree if needed. It returns the stdout pipe for the log
// interpreter to consume; the caller owns starting that reader.
func (u *Unit) Start() (io.ReadCloser, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	cmd, err := launchCommand(u.Config)
	if err != nil {
		return nil, err
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", u.Config.Unit.ID, err)
	}

	u.cmd = cmd
	u.stdin = stdin
	u.exited = false
	u.exitErr = nil
	u.done = make(chan struct{})
	u.derived.set(StateUnknown)

	go u.waitForExit(cmd, u.done)

	return stdout, nil
}

// waitForExit blocks until the child exits and records the result.
// status() consults this instead of polling the OS non-blockingly, which
// Go's process API doesn't expose directly. It takes cmd and done as
// explicit arguments, captured at Start time, so a later Stop() clearing
// u.cmd can't race this goroutine's use of them.
func (u *Unit) waitForExit(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()
	u.mu.Lock()
	u.exited = true
	u.exitErr = err
	u.mu.Unlock()
	if err != nil {
		u.logger.Warn("child process exited with error", "error", err)
	} else {
		u.logger.Info("child process exited")
	}
	close(done)
}

// SendCommand writes line+"\n" to the child's stdin. If no child is
// present (not started, or already exited and reaped), the command is
// silently dropped — documented: commands before start are lost.
func (u *Unit) SendCommand(line string) error {
	u.mu.Lock()
	stdin := u.stdin
	u.mu.Unlock()
	if stdin == nil {
		return nil
	}
	_, err := io.WriteString(stdin, line+"\n")
	return err
}

// Stop sends the literal "stop" line and returns a channel the caller can
// receive from to learn the child has exited, clearing the unit's own
// handle. Returns nil if no child is present.
func (u *Unit) Stop() <-chan struct{} {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.cmd == nil {
		return nil
	}
	if u.stdin != nil {
		io.WriteString(u.stdin, "stop\n")
	}
	done := u.done
	u.cmd = nil
	u.stdin = nil
	return done
}

// HasChild reports whether a child process handle is currently held.
func (u *Unit) HasChild() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cmd != nil
}

// Status is the authoritative projection described in §4.3: process
// liveness dominates the derived-state cell, which only applies while the
// child is still running.
func (u *Unit) Status() ServerStatus {
	u.mu.Lock()
	exited, exitErr := u.exited, u.exitErr
	hasChild := u.cmd != nil
	u.mu.Unlock()

	if !hasChild {
		return StatusDown
	}
	if exited {
		if exitErr == nil {
			return StatusDown
		}
		return StatusErrored
	}

	switch u.derived.get() {
	case StateUnknown:
		return StatusUnknown
	case StateStarting:
		return StatusStarting
	case StateStarted:
		return StatusRunning
	case StateErrored:
		return StatusErrored
	case StateStopping:
		return StatusStopping
	case StateStopped:
		return StatusDown
	default:
		return StatusDown
	}
}

