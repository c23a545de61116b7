package protocol

// EventKind is the tag projection of a ServerEvent, used as the second key
// of the subscription table.
type EventKind string

const (
	EventServerStarting     EventKind = "ServerStarting"
	EventServerStarted      EventKind = "ServerStarted"
	EventServerStopping     EventKind = "ServerStopping"
	EventServerStopped      EventKind = "ServerStopped"
	EventServerFailed       EventKind = "ServerFailed"
	EventActionProgress     EventKind = "ActionProgress"
	EventInstallationComplete EventKind = "InstallationComplete"
	EventInstallationFailed   EventKind = "InstallationFailed"
	EventUpdateComplete       EventKind = "UpdateComplete"
	EventUpdateFailed         EventKind = "UpdateFailed"
)

// ServerEvent is the tagged sum of lifecycle events a unit can raise.
// Only the fields relevant to Kind are populated.
type ServerEvent struct {
	UnitID   string    `json:"unit_id"`
	Kind     EventKind `json:"kind"`
	Error    string    `json:"error,omitempty"`
	Action   string    `json:"action,omitempty"`
	Progress *uint64   `json:"progress,omitempty"`
	Maximum  *uint64   `json:"maximum,omitempty"`
	Step     *uint64   `json:"step,omitempty"`
}

// Command is the flat, self-describing envelope for every request a client
// can send on the established command channel. Only the fields relevant to
// Type are populated — mirroring the tagged-struct idiom the daemon's
// handshake objects already use, generalized to every command shape.
type Command struct {
	Type string `json:"type"`

	ID   string `json:"id,omitempty"`
	Wait bool   `json:"wait,omitempty"`

	Kind EventKind `json:"kind,omitempty"`
	IDs  []string  `json:"ids,omitempty"`

	Install *InstallServerRequest `json:"install,omitempty"`

	Version *string `json:"version,omitempty"`
	Text    string  `json:"text,omitempty"`
}

const (
	CmdList           = "List"
	CmdGetVersion     = "GetVersion"
	CmdStart          = "Start"
	CmdStop           = "Stop"
	CmdSubscribeEvent = "SubscribeEvent"
	CmdInstallServer  = "InstallServer"
	CmdUpdateServer   = "UpdateServer"
	CmdStopDaemon     = "StopDaemon"
	CmdSendMessage    = "SendMessage"
)

// InstallServerRequest carries the parameters of InstallServer{...}. Kind is
// the string form of config.ServerKind — kept as a string here so this
// package never imports config.
type InstallServerRequest struct {
	UnitID      string  `json:"unit_id"`
	InstallPath string  `json:"install_path"`
	UnitFilePath string `json:"unit_file_path,omitempty"`
	Version     *string `json:"version,omitempty"`
	Kind        string  `json:"kind"`
	AcceptEula  bool    `json:"accept_eula"`
	DisplayName *string `json:"display_name,omitempty"`
}

// ServerInfo is the List projection of a unit table entry.
type ServerInfo struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// Response is the flat envelope for every direct reply the dispatcher sends
// back on a client's reply channel.
type Response struct {
	Type string `json:"type"`

	Servers []ServerInfo `json:"servers,omitempty"`
	Version string       `json:"version,omitempty"`
	ID      string       `json:"id,omitempty"`
	Error   string       `json:"error,omitempty"`
}

const (
	RespOk             = "Ok"
	RespList           = "List"
	RespVersion        = "Version"
	RespServerNotFound = "ServerNotFound"
	RespServerStarted  = "ServerStarted"
	RespServerStopped  = "ServerStopped"
)

// Envelope multiplexes every message shape the daemon can push down a
// client's established channel: the two handshake acknowledgements
// (SetSender, Version), direct command responses, fanned-out server
// events, and the daemon-wide shutdown broadcast. A single struct kept
// flat — rather than one type per message plus a sum-type wrapper — so
// the channel only ever marshals/unmarshals one shape.
type Envelope struct {
	Type string `json:"type"`

	Response *Response    `json:"response,omitempty"`
	Event    *ServerEvent `json:"event,omitempty"`
	Version  string       `json:"version,omitempty"`
}

const (
	MsgSetSender    = "SetSender"
	MsgVersion      = "Version"
	MsgResponse     = "Response"
	MsgServerEvent  = "ServerEvent"
	MsgDaemonEvent  = "DaemonEvent"
)

// DaemonEventStopped is the only DaemonEvent payload value the core raises.
const DaemonEventStopped = "Stopped"

func SetSenderEnvelope() Envelope {
	return Envelope{Type: MsgSetSender}
}

func VersionEnvelope(version string) Envelope {
	return Envelope{Type: MsgVersion, Version: version}
}

func ResponseEnvelope(r Response) Envelope {
	return Envelope{Type: MsgResponse, Response: &r}
}

func ServerEventEnvelope(e ServerEvent) Envelope {
	return Envelope{Type: MsgServerEvent, Event: &e}
}

func DaemonStoppedEnvelope() Envelope {
	return Envelope{Type: MsgDaemonEvent, Version: DaemonEventStopped}
}
