package daemon

import (
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/mcfleet/mcfleet/internal/config"
	"github.com/mcfleet/mcfleet/internal/protocol"
	"github.com/mcfleet/mcfleet/internal/repo"
)

// internalClientID is never assigned to a real connection — used for
// commands the daemon issues to itself (autostart) whose responses are
// simply dropped, since no sender is registered under it.
const internalClientID uint32 = 0

type daemonEventKind int

const (
	evtIncomingCmd daemonEventKind = iota
	evtSendEvent
	evtAddServerUnit
	evtReplaceServerUnit
	evtStopDaemon
	evtClientDisconnected
)

// daemonEvent is the single envelope the dispatcher consumes. It is the
// only mutator of the unit table and the sender table, per §4.2.
type daemonEvent struct {
	kind daemonEventKind

	clientID uint32
	cmd      protocol.Command
	event    protocol.ServerEvent

	unitConfig   *config.ServerUnitConfig
	unitFilePath string
}

// clientSender is the daemon's outbound half of an established rendezvous
// connection — the handle the dispatcher uses to push responses and
// events to one client.
type clientSender struct {
	mu   sync.Mutex
	conn net.Conn
}

func (s *clientSender) send(env protocol.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := marshalEnvelope(env)
	if err != nil {
		return err
	}
	return protocol.WriteFrame(s.conn, data)
}

func (s *clientSender) close() {
	s.conn.Close()
}

// Dispatcher is the daemon's single-consumer event loop.
type Dispatcher struct {
	events chan daemonEvent

	mu      sync.Mutex
	units   map[string]*Unit
	senders map[uint32]*clientSender

	subs       *subscriptionManager
	repository repo.Repository
	logRoot    string
	version    string
	logger     *slog.Logger

	nextClientID struct {
		mu sync.Mutex
		n  uint32
	}
}

func NewDispatcher(repository repo.Repository, logRoot, version string, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		events:     make(chan daemonEvent, 256),
		units:      make(map[string]*Unit),
		senders:    make(map[uint32]*clientSender),
		repository: repository,
		logRoot:    logRoot,
		version:    version,
		logger:     logger,
	}
	d.subs = newSubscriptionManager(d.events, logger)
	d.nextClientID.n = internalClientID + 1
	return d
}

// AllocateClientID hands the acceptor a fresh, never-reused client id.
// This doesn't touch the unit or sender tables, so it's safe to call
// outside the dispatcher's own goroutine.
func (d *Dispatcher) AllocateClientID() uint32 {
	d.nextClientID.mu.Lock()
	defer d.nextClientID.mu.Unlock()
	id := d.nextClientID.n
	d.nextClientID.n++
	return id
}

// RegisterSender records clientID's reply channel in the sender table.
func (d *Dispatcher) RegisterSender(clientID uint32, conn net.Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[clientID] = &clientSender{conn: conn}
}

// Enqueue posts an event onto the dispatcher's channel. Used by the
// acceptor's command pump and by install/update workers.
func (d *Dispatcher) Enqueue(event daemonEvent) {
	d.events <- event
}

func (d *Dispatcher) Subs() *subscriptionManager {
	return d.subs
}

// Run starts the subscription manager and drains the dispatcher's event
// channel until the process exits (StopDaemon calls os.Exit directly, per
// §4.2's coordinated shutdown).
func (d *Dispatcher) Run() {
	go d.subs.run()
	for event := range d.events {
		d.handle(event)
	}
}

func (d *Dispatcher) handle(event daemonEvent) {
	switch event.kind {
	case evtIncomingCmd:
		d.handleIncomingCmd(event.clientID, event.cmd)
	case evtSendEvent:
		d.sendEvent(event.clientID, event.event)
	case evtAddServerUnit:
		d.addServerUnit(event.unitConfig, event.unitFilePath)
	case evtReplaceServerUnit:
		d.replaceServerUnit(event.unitConfig, event.unitFilePath)
	case evtStopDaemon:
		d.coordinatedShutdown()
	case evtClientDisconnected:
		d.evictClient(event.clientID)
	}
}

// sendResponse sends resp to clientID's reply channel. A send failure
// means the client is gone: its subscriptions and sender entry are
// dropped. A clientID with no registered sender (internal/autostart
// commands) is a silent no-op.
func (d *Dispatcher) sendResponse(clientID uint32, resp protocol.Response) {
	d.mu.Lock()
	sender, ok := d.senders[clientID]
	d.mu.Unlock()
	if !ok {
		return
	}
	if err := sender.send(protocol.ResponseEnvelope(resp)); err != nil {
		d.evictClient(clientID)
	}
}

func (d *Dispatcher) sendEvent(clientID uint32, event protocol.ServerEvent) {
	d.mu.Lock()
	sender, ok := d.senders[clientID]
	d.mu.Unlock()
	if !ok {
		return
	}
	if err := sender.send(protocol.ServerEventEnvelope(event)); err != nil {
		d.evictClient(clientID)
	}
}

func (d *Dispatcher) evictClient(clientID uint32) {
	d.mu.Lock()
	if sender, ok := d.senders[clientID]; ok {
		sender.close()
		delete(d.senders, clientID)
	}
	d.mu.Unlock()
	d.subs.enqueue(eventManagerCmd{kind: cmdRemoveAllSubscriptions, clientID: clientID})
}

// RemoveClient is called by the acceptor when a client's command pump
// observes its channel close cleanly (no send failure involved).
func (d *Dispatcher) RemoveClient(clientID uint32) {
	d.Enqueue(daemonEvent{kind: evtClientDisconnected, clientID: clientID})
}

// RequestStop triggers the same coordinated shutdown a client's StopDaemon
// command does. Used by the process's own signal handler.
func (d *Dispatcher) RequestStop() {
	d.Enqueue(daemonEvent{kind: evtStopDaemon})
}

func (d *Dispatcher) handleIncomingCmd(clientID uint32, cmd protocol.Command) {
	switch cmd.Type {
	case protocol.CmdList:
		d.sendResponse(clientID, protocol.Response{Type: protocol.RespList, Servers: d.listServers()})

	case protocol.CmdGetVersion:
		d.sendResponse(clientID, protocol.Response{Type: protocol.RespVersion, Version: d.version})

	case protocol.CmdStart:
		d.handleStart(clientID, cmd)

	case protocol.CmdStop:
		d.handleStop(clientID, cmd)

	case protocol.CmdSubscribeEvent:
		if len(cmd.IDs) > 0 {
			for _, id := range cmd.IDs {
				d.subs.enqueue(eventManagerCmd{kind: cmdAddSubscription, unitID: id, eventKind: cmd.Kind, clientID: clientID})
			}
		}
		d.sendResponse(clientID, protocol.Response{Type: protocol.RespOk})

	case protocol.CmdInstallServer:
		d.handleInstallServer(clientID, cmd)

	case protocol.CmdUpdateServer:
		d.handleUpdateServer(clientID, cmd)

	case protocol.CmdStopDaemon:
		d.Enqueue(daemonEvent{kind: evtStopDaemon})
		d.sendResponse(clientID, protocol.Response{Type: protocol.RespOk})

	case protocol.CmdSendMessage:
		d.handleSendMessage(clientID, cmd)

	default:
		d.logger.Warn("unknown command", "type", cmd.Type)
	}
}

func (d *Dispatcher) listServers() []protocol.ServerInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	infos := make([]protocol.ServerInfo, 0, len(d.units))
	for id, u := range d.units {
		infos = append(infos, protocol.ServerInfo{
			Name:    id,
			Path:    u.Config.Server.InstallPath,
			Kind:    string(u.Config.Server.Kind),
			Version: u.Config.Server.Version,
			Status:  string(u.Status()),
		})
	}
	return infos
}

func (d *Dispatcher) lookupUnit(id string) (*Unit, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.units[id]
	return u, ok
}

func (d *Dispatcher) handleStart(clientID uint32, cmd protocol.Command) {
	unit, ok := d.lookupUnit(cmd.ID)
	if !ok {
		if clientID == internalClientID {
			d.logger.Warn("autostart: unit not found", "unit", cmd.ID)
		}
		d.sendResponse(clientID, protocol.Response{Type: protocol.RespServerNotFound, ID: cmd.ID})
		return
	}

	if unit.Status() != StatusDown {
		// Idempotent no-op: already started or starting.
		if cmd.Wait {
			d.subscribeStartWait(cmd.ID, clientID)
			d.sendResponse(clientID, protocol.Response{Type: protocol.RespOk})
		} else {
			d.sendResponse(clientID, protocol.Response{Type: protocol.RespServerStarted, ID: cmd.ID})
		}
		return
	}

	if cmd.Wait {
		// Subscription must be installed before the side effect runs —
		// both happen here, on the dispatcher goroutine.
		d.subscribeStartWait(cmd.ID, clientID)
		d.startUnit(cmd.ID, unit)
		d.sendResponse(clientID, protocol.Response{Type: protocol.RespOk})
		return
	}

	d.startUnit(cmd.ID, unit)
	d.sendResponse(clientID, protocol.Response{Type: protocol.RespServerStarted, ID: cmd.ID})
}

func (d *Dispatcher) subscribeStartWait(unitID string, clientID uint32) {
	d.subs.enqueue(eventManagerCmd{kind: cmdAddSubscription, unitID: unitID, eventKind: protocol.EventServerStarting, clientID: clientID})
	d.subs.enqueue(eventManagerCmd{kind: cmdAddSubscription, unitID: unitID, eventKind: protocol.EventServerStarted, clientID: clientID})
}

func (d *Dispatcher) handleStop(clientID uint32, cmd protocol.Command) {
	unit, ok := d.lookupUnit(cmd.ID)
	if !ok {
		d.sendResponse(clientID, protocol.Response{Type: protocol.RespServerNotFound, ID: cmd.ID})
		return
	}

	if cmd.Wait {
		d.subs.enqueue(eventManagerCmd{kind: cmdAddSubscription, unitID: cmd.ID, eventKind: protocol.EventServerStopping, clientID: clientID})
		d.subs.enqueue(eventManagerCmd{kind: cmdAddSubscription, unitID: cmd.ID, eventKind: protocol.EventServerStopped, clientID: clientID})
	}

	if unit.Status() == StatusRunning {
		unit.SendCommand("stop")
	}

	if cmd.Wait {
		d.sendResponse(clientID, protocol.Response{Type: protocol.RespOk})
	} else {
		d.sendResponse(clientID, protocol.Response{Type: protocol.RespServerStopped, ID: cmd.ID})
	}
}

func (d *Dispatcher) handleSendMessage(clientID uint32, cmd protocol.Command) {
	unit, ok := d.lookupUnit(cmd.ID)
	if !ok {
		d.sendResponse(clientID, protocol.Response{Type: protocol.RespServerNotFound, ID: cmd.ID})
		return
	}
	unit.SendCommand("say " + cmd.Text)
	d.sendResponse(clientID, protocol.Response{Type: protocol.RespOk})
}

// startUnit spawns the unit's process and launches its log interpreter.
func (d *Dispatcher) startUnit(id string, unit *Unit) {
	stdout, err := unit.Start()
	if err != nil {
		d.logger.Error("failed to start unit", "unit", id, "error", err)
		return
	}
	go runLogReader(unit, id, stdout, d.logRoot, d.subs, unit.logger)
}

// addServerUnit constructs a Unit from a server definition and inserts it
// into the table keyed by its UnitId. Never overwrites an existing entry
// — the installer is expected to have checked first; a collision observed
// here is logged and dropped.
func (d *Dispatcher) addServerUnit(cfg *config.ServerUnitConfig, unitFilePath string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.units[cfg.Unit.ID]; exists {
		d.logger.Warn("addServerUnit: unit already present, dropping", "unit", cfg.Unit.ID)
		return
	}
	cfg.Path = unitFilePath
	d.units[cfg.Unit.ID] = NewUnit(cfg, d.logger)
}

// replaceServerUnit unconditionally overwrites the live record for
// cfg.Unit.ID. Used only by the update pipeline, which has already
// confirmed the unit exists before detaching its worker.
func (d *Dispatcher) replaceServerUnit(cfg *config.ServerUnitConfig, unitFilePath string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg.Path = unitFilePath
	d.units[cfg.Unit.ID] = NewUnit(cfg, d.logger)
}

// coordinatedShutdown implements §4.2.2: stop every running/starting unit,
// wait for each child to exit, broadcast Stopped, then exit the process.
func (d *Dispatcher) coordinatedShutdown() {
	d.mu.Lock()
	units := make(map[string]*Unit, len(d.units))
	for id, u := range d.units {
		units[id] = u
	}
	d.mu.Unlock()

	var waiters []<-chan struct{}
	for _, unit := range units {
		status := unit.Status()
		if status == StatusStarting {
			// Wait until the unit is accepting input before sending stop.
			for unit.Status() == StatusStarting {
				time.Sleep(200 * time.Millisecond)
			}
			status = unit.Status()
		}
		if status == StatusRunning || status == StatusUpdating || status == StatusLockdown {
			if done := unit.Stop(); done != nil {
				waiters = append(waiters, done)
			}
		}
	}

	for _, done := range waiters {
		<-done
	}

	d.broadcastStopped()

	time.Sleep(500 * time.Millisecond)
	os.Exit(0)
}

func (d *Dispatcher) broadcastStopped() {
	d.mu.Lock()
	senders := make([]*clientSender, 0, len(d.senders))
	for _, s := range d.senders {
		senders = append(senders, s)
	}
	d.mu.Unlock()

	for _, s := range senders {
		// Errors ignored — sockets may already be closed.
		s.send(protocol.DaemonStoppedEnvelope())
	}
}

func (d *Dispatcher) handleInstallServer(clientID uint32, cmd protocol.Command) {
	req := cmd.Install
	if req == nil {
		d.logger.Warn("InstallServer command missing install payload")
		d.sendResponse(clientID, protocol.Response{Type: protocol.RespOk})
		return
	}

	d.subs.enqueue(eventManagerCmd{kind: cmdAddSubscription, unitID: req.UnitID, eventKind: protocol.EventInstallationComplete, clientID: clientID})
	d.subs.enqueue(eventManagerCmd{kind: cmdAddSubscription, unitID: req.UnitID, eventKind: protocol.EventInstallationFailed, clientID: clientID})
	d.subs.enqueue(eventManagerCmd{kind: cmdAddSubscription, unitID: req.UnitID, eventKind: protocol.EventActionProgress, clientID: clientID})

	d.mu.Lock()
	_, exists := d.units[req.UnitID]
	d.mu.Unlock()

	if exists {
		d.subs.enqueue(eventManagerCmd{kind: cmdDispatchEvent, event: protocol.ServerEvent{
			UnitID: req.UnitID,
			Kind:   protocol.EventInstallationFailed,
			Error:  "a unit with that name already exists",
		}})
	} else {
		go runInstall(d, *req)
	}

	d.sendResponse(clientID, protocol.Response{Type: protocol.RespOk})
}

func (d *Dispatcher) handleUpdateServer(clientID uint32, cmd protocol.Command) {
	unit, ok := d.lookupUnit(cmd.ID)
	if !ok {
		d.sendResponse(clientID, protocol.Response{Type: protocol.RespServerNotFound, ID: cmd.ID})
		return
	}

	d.subs.enqueue(eventManagerCmd{kind: cmdAddSubscription, unitID: cmd.ID, eventKind: protocol.EventUpdateComplete, clientID: clientID})
	d.subs.enqueue(eventManagerCmd{kind: cmdAddSubscription, unitID: cmd.ID, eventKind: protocol.EventUpdateFailed, clientID: clientID})
	d.subs.enqueue(eventManagerCmd{kind: cmdAddSubscription, unitID: cmd.ID, eventKind: protocol.EventActionProgress, clientID: clientID})

	go runUpdate(d, cmd.ID, unit, cmd.Version)

	d.sendResponse(clientID, protocol.Response{Type: protocol.RespOk})
}
