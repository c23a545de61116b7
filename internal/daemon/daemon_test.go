package daemon

import (
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcfleet/mcfleet/internal/protocol"
)

// TestHandleConnectionHandshakeAndVersion exercises the two-phase rendezvous
// handshake end to end: a client dials the daemon's main socket, sends
// NewConnection, half-closes, then accepts a dial-back on its own
// rendezvous listener and expects SetSender followed by Version.
func TestHandleConnectionHandshakeAndVersion(t *testing.T) {
	d := &Daemon{
		dispatcher: NewDispatcher(nil, t.TempDir(), "test-daemon-version", discardLogger()),
		logger:     discardLogger(),
	}
	go d.dispatcher.Run()

	dir := t.TempDir()
	mainSocket := filepath.Join(dir, "main.sock")
	replySocket := filepath.Join(dir, "reply.sock")

	mainListener, err := net.Listen("unix", mainSocket)
	require.NoError(t, err)
	defer mainListener.Close()

	replyListener, err := net.Listen("unix", replySocket)
	require.NoError(t, err)
	defer replyListener.Close()

	go func() {
		conn, err := mainListener.Accept()
		if err != nil {
			return
		}
		d.handleConnection(conn)
	}()

	clientConn, err := net.Dial("unix", mainSocket)
	require.NoError(t, err)

	req := protocol.NewConnection{
		ClientVersion: "0.1.0",
		ReplyAddress:  replySocket,
		ClientName:    "test-client",
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	_, err = clientConn.Write(data)
	require.NoError(t, err)
	require.NoError(t, clientConn.(*net.UnixConn).CloseWrite())

	require.NoError(t, replyListener.(*net.UnixListener).SetDeadline(time.Now().Add(5*time.Second)))
	established, err := replyListener.Accept()
	require.NoError(t, err)
	defer established.Close()

	setSenderPayload, err := protocol.ReadFrame(established)
	require.NoError(t, err)
	var setSenderEnv protocol.Envelope
	require.NoError(t, json.Unmarshal(setSenderPayload, &setSenderEnv))
	assert.Equal(t, protocol.MsgSetSender, setSenderEnv.Type)

	versionPayload, err := protocol.ReadFrame(established)
	require.NoError(t, err)
	var versionEnv protocol.Envelope
	require.NoError(t, json.Unmarshal(versionPayload, &versionEnv))
	assert.Equal(t, protocol.MsgVersion, versionEnv.Type)
	assert.Equal(t, "test-daemon-version", versionEnv.Version)
}

// TestHandleConnectionRejectsHighMinVersion exercises the handshake
// rejection path: a client demanding a daemon protocol version higher than
// ProtocolVersion never gets a dial-back.
func TestHandleConnectionRejectsHighMinVersion(t *testing.T) {
	d := &Daemon{
		dispatcher: NewDispatcher(nil, t.TempDir(), "test-daemon-version", discardLogger()),
		logger:     discardLogger(),
	}
	go d.dispatcher.Run()

	dir := t.TempDir()
	mainSocket := filepath.Join(dir, "main.sock")
	replySocket := filepath.Join(dir, "reply.sock")

	mainListener, err := net.Listen("unix", mainSocket)
	require.NoError(t, err)
	defer mainListener.Close()

	replyListener, err := net.Listen("unix", replySocket)
	require.NoError(t, err)
	defer replyListener.Close()

	done := make(chan struct{})
	go func() {
		conn, err := mainListener.Accept()
		if err != nil {
			return
		}
		d.handleConnection(conn)
		close(done)
	}()

	clientConn, err := net.Dial("unix", mainSocket)
	require.NoError(t, err)

	tooHigh := ProtocolVersion + 1
	req := protocol.NewConnection{
		MinVersion:    &tooHigh,
		ClientVersion: "0.1.0",
		ReplyAddress:  replySocket,
		ClientName:    "test-client",
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	_, err = clientConn.Write(data)
	require.NoError(t, err)
	require.NoError(t, clientConn.(*net.UnixConn).CloseWrite())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handleConnection did not return after a rejected handshake")
	}

	require.NoError(t, replyListener.(*net.UnixListener).SetDeadline(time.Now().Add(200*time.Millisecond)))
	_, err = replyListener.Accept()
	assert.Error(t, err, "daemon must not dial back after rejecting the handshake")
}
