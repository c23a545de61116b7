package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/mcfleet/mcfleet/internal/protocol"
)

// session is an established duplex connection to the daemon: the frame
// reader/writer pair obtained after the handshake/rendezvous exchange.
type session struct {
	conn net.Conn
}

// dial performs the two-phase handshake described in §4.1: connect to the
// daemon's main socket, send NewConnection, half-close, then accept the
// daemon's outbound dial on a one-shot local listener and use that
// connection for the rest of the session.
func dial(socketPath, clientName string) (*session, error) {
	rendezvous, err := net.Listen("unix", ephemeralSocketPath())
	if err != nil {
		return nil, fmt.Errorf("open rendezvous listener: %w", err)
	}
	defer os.Remove(rendezvous.Addr().String())

	main, err := net.Dial("unix", socketPath)
	if err != nil {
		rendezvous.Close()
		return nil, fmt.Errorf("connect to daemon at %s: %w", socketPath, err)
	}

	req := protocol.NewConnection{
		ClientVersion: version,
		ReplyAddress:  rendezvous.Addr().String(),
		ClientName:    clientName,
	}
	data, err := json.Marshal(req)
	if err != nil {
		main.Close()
		rendezvous.Close()
		return nil, fmt.Errorf("marshal handshake: %w", err)
	}
	if _, err := main.Write(data); err != nil {
		main.Close()
		rendezvous.Close()
		return nil, fmt.Errorf("send handshake: %w", err)
	}
	// Half-close: the daemon reads until EOF.
	if uc, ok := main.(*net.UnixConn); ok {
		uc.CloseWrite()
	}

	rendezvous.(*net.UnixListener).SetDeadline(time.Now().Add(5 * time.Second))
	conn, err := rendezvous.Accept()
	if err != nil {
		main.Close()
		rendezvous.Close()
		return nil, fmt.Errorf("daemon did not connect back: %w", err)
	}
	rendezvous.Close()
	main.Close()

	s := &session{conn: conn}
	if err := s.expectEnvelope(protocol.MsgSetSender); err != nil {
		conn.Close()
		return nil, err
	}
	if err := s.expectEnvelope(protocol.MsgVersion); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) expectEnvelope(want string) error {
	payload, err := protocol.ReadFrame(s.conn)
	if err != nil {
		return fmt.Errorf("read %s: %w", want, err)
	}
	var env protocol.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("unmarshal %s: %w", want, err)
	}
	if env.Type != want {
		return fmt.Errorf("expected %s, got %s", want, env.Type)
	}
	return nil
}

// send writes cmd as a framed command.
func (s *session) send(cmd protocol.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return protocol.WriteFrame(s.conn, data)
}

// next reads the next envelope off the connection — either a direct
// Response, a fanned-out ServerEvent, or the DaemonEvent(Stopped)
// broadcast.
func (s *session) next() (protocol.Envelope, error) {
	payload, err := protocol.ReadFrame(s.conn)
	if err != nil {
		if err == io.EOF {
			return protocol.Envelope{}, io.EOF
		}
		return protocol.Envelope{}, fmt.Errorf("read frame: %w", err)
	}
	var env protocol.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return protocol.Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env, nil
}

func (s *session) close() {
	s.conn.Close()
}

// ephemeralSocketPath picks a unique path under the OS temp dir for a
// client's one-shot rendezvous listener.
func ephemeralSocketPath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("mcfleet-client-%d-%d.sock", os.Getpid(), time.Now().UnixNano()))
}

// exitConnectionError reports a daemon connection failure per the CLI exit
// code contract: 1 on connection failure.
func exitConnectionError(err error) {
	fmt.Fprintf(os.Stderr, "mcfleet: %v\n", err)
	os.Exit(1)
}
