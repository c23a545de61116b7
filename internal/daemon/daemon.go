package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/mcfleet/mcfleet/internal/config"
	"github.com/mcfleet/mcfleet/internal/protocol"
	"github.com/mcfleet/mcfleet/internal/repo"
	"github.com/mcfleet/mcfleet/internal/sdnotify"
)

// ProtocolVersion is the integer a client's optional min_version handshake
// field is checked against. It is not sent to clients: the Version reply
// carries the daemon's version string instead.
const ProtocolVersion = 1

// Daemon is the connection acceptor described in §4.1. It owns nothing
// about units or subscriptions directly — all of that lives behind the
// Dispatcher, the sole mutator of shared state.
type Daemon struct {
	cfg        *config.DaemonConfig
	dispatcher *Dispatcher
	listener   net.Listener
	logger     *slog.Logger
}

func New(cfg *config.DaemonConfig, repository repo.Repository, logRoot, version string, logger *slog.Logger) *Daemon {
	return &Daemon{
		cfg:        cfg,
		dispatcher: NewDispatcher(repository, logRoot, version, logger),
		logger:     logger,
	}
}

func (d *Daemon) Dispatcher() *Dispatcher {
	return d.dispatcher
}

// Run binds the local socket, loads unit files, starts autostart units,
// and accepts connections until ctx is cancelled or the dispatcher
// terminates the process via coordinated shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	socketDir := filepath.Dir(d.cfg.SocketFile)
	if socketDir != "." {
		if err := config.EnsureDir(socketDir, 0700); err != nil {
			return fmt.Errorf("create socket dir: %w", err)
		}
	}

	// Remove a stale socket only if it cannot be dialed — an active
	// daemon already listening there is a startup error, not something
	// to steal the socket from.
	if conn, err := net.DialTimeout("unix", d.cfg.SocketFile, 200*time.Millisecond); err == nil {
		conn.Close()
		return fmt.Errorf("another daemon is already listening on %s", d.cfg.SocketFile)
	}
	os.Remove(d.cfg.SocketFile)

	listener, err := net.Listen("unix", d.cfg.SocketFile)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if err := os.Chmod(d.cfg.SocketFile, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	d.listener = listener

	go d.dispatcher.Run()

	d.loadUnits()
	d.runAutostart()

	d.logger.Info("daemon started", "socket", d.cfg.SocketFile)
	sdnotify.Ready(d.logger)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Error("accept error", "error", err)
			continue
		}
		go d.handleConnection(conn)
	}
}

func (d *Daemon) loadUnits() {
	configs := config.ScanUnitFiles(d.cfg.UnitDirectories, d.logger)
	for _, cfg := range configs {
		d.dispatcher.Enqueue(daemonEvent{kind: evtAddServerUnit, unitConfig: cfg, unitFilePath: cfg.Path})
	}
}

func (d *Daemon) runAutostart() {
	for _, id := range d.cfg.Autostart {
		d.dispatcher.Enqueue(daemonEvent{
			kind:     evtIncomingCmd,
			clientID: internalClientID,
			cmd:      protocol.Command{Type: protocol.CmdStart, ID: id, Wait: false},
		})
	}
}

// handleConnection reads the one-shot handshake, dials the client's
// rendezvous listener, and hands the established duplex connection to the
// command pump. Never fatal to the daemon — every failure here is logged
// and the connection dropped.
func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()

	handshakeData, err := io.ReadAll(conn)
	if err != nil {
		d.logger.Warn("handshake read failed", "error", err)
		return
	}

	var req protocol.NewConnection
	if err := json.Unmarshal(handshakeData, &req); err != nil {
		d.logger.Warn("malformed handshake", "error", err)
		return
	}

	if err := protocol.ValidateHandshake(&req, ProtocolVersion); err != nil {
		d.logger.Warn("handshake rejected", "client", req.ClientName, "error", err)
		return
	}

	replyConn, err := net.Dial("unix", req.ReplyAddress)
	if err != nil {
		d.logger.Warn("reply channel connect failed", "reply_address", req.ReplyAddress, "error", err)
		return
	}

	clientID := d.dispatcher.AllocateClientID()
	d.dispatcher.RegisterSender(clientID, replyConn)

	sender := &clientSender{conn: replyConn}
	if err := sender.send(protocol.SetSenderEnvelope()); err != nil {
		d.logger.Warn("failed to send SetSender", "client", clientID, "error", err)
		d.dispatcher.RemoveClient(clientID)
		return
	}
	if err := sender.send(protocol.VersionEnvelope(d.dispatcher.version)); err != nil {
		d.logger.Warn("failed to send Version", "client", clientID, "error", err)
		d.dispatcher.RemoveClient(clientID)
		return
	}

	d.logger.Info("client connected", "client", clientID, "name", req.ClientName)
	d.commandPump(clientID, replyConn)
}

// commandPump forwards every frame received from the client's established
// connection to the dispatcher as IncomingCmd, until the connection closes.
func (d *Daemon) commandPump(clientID uint32, conn net.Conn) {
	for {
		payload, err := protocol.ReadFrame(conn)
		if err != nil {
			break
		}
		cmd, err := unmarshalCommand(payload)
		if err != nil {
			d.logger.Warn("invalid command frame", "client", clientID, "error", err)
			continue
		}
		d.dispatcher.Enqueue(daemonEvent{kind: evtIncomingCmd, clientID: clientID, cmd: cmd})
	}
	d.dispatcher.RemoveClient(clientID)
	d.logger.Info("client disconnected", "client", clientID)
}
