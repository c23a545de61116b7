package daemon

import (
	"log/slog"

	"github.com/mcfleet/mcfleet/internal/protocol"
)

type eventManagerCmdKind int

const (
	cmdDispatchEvent eventManagerCmdKind = iota
	cmdAddSubscription
	cmdRemoveSubscription
	cmdRemoveAllSubscriptions
)

// eventManagerCmd is the single command envelope the subscription manager
// consumes; only the fields relevant to kind are populated.
type eventManagerCmd struct {
	kind     eventManagerCmdKind
	unitID   string
	eventKind protocol.EventKind
	clientID uint32
	event    protocol.ServerEvent
}

// subscriptionKey indexes the subscription table by unit and event tag.
type subscriptionKey struct {
	unitID string
	kind   protocol.EventKind
}

// subscriptionManager owns the subscription table and is the single
// consumer of eventManagerCmd. It runs as its own goroutine so that
// fanning a single event out to N clients never stalls command handling,
// and so the log interpreter never blocks on a lock the dispatcher might
// be waiting on.
type subscriptionManager struct {
	cmds  chan eventManagerCmd
	out   chan<- daemonEvent
	table map[subscriptionKey][]uint32
	logger *slog.Logger
}

func newSubscriptionManager(out chan<- daemonEvent, logger *slog.Logger) *subscriptionManager {
	return &subscriptionManager{
		cmds:   make(chan eventManagerCmd, 256),
		out:    out,
		table:  make(map[subscriptionKey][]uint32),
		logger: logger,
	}
}

func (m *subscriptionManager) enqueue(cmd eventManagerCmd) {
	m.cmds <- cmd
}

// run drains cmds until the channel is closed. Intended to be launched as
// a goroutine for the lifetime of the daemon.
func (m *subscriptionManager) run() {
	for cmd := range m.cmds {
		switch cmd.kind {
		case cmdDispatchEvent:
			m.dispatchEvent(cmd.event)
		case cmdAddSubscription:
			m.addSubscription(cmd.unitID, cmd.eventKind, cmd.clientID)
		case cmdRemoveSubscription:
			m.removeSubscription(cmd.unitID, cmd.eventKind, cmd.clientID)
		case cmdRemoveAllSubscriptions:
			m.removeAllSubscriptions(cmd.clientID)
		}
	}
}

func (m *subscriptionManager) dispatchEvent(event protocol.ServerEvent) {
	key := subscriptionKey{unitID: event.UnitID, kind: event.Kind}
	subscribers, ok := m.table[key]
	if !ok {
		return
	}
	for _, clientID := range subscribers {
		m.out <- daemonEvent{kind: evtSendEvent, clientID: clientID, event: event}
	}
}

func (m *subscriptionManager) addSubscription(unitID string, kind protocol.EventKind, clientID uint32) {
	key := subscriptionKey{unitID: unitID, kind: kind}
	// Duplicates are admitted per spec — no membership check.
	m.table[key] = append(m.table[key], clientID)
}

// removeSubscription retains only entries != clientID. The source's
// retain(|id| id == &client_id) inverted this — keeping the matching
// client instead of dropping it; fixed here.
func (m *subscriptionManager) removeSubscription(unitID string, kind protocol.EventKind, clientID uint32) {
	key := subscriptionKey{unitID: unitID, kind: kind}
	m.table[key] = retainNotEqual(m.table[key], clientID)
}

func (m *subscriptionManager) removeAllSubscriptions(clientID uint32) {
	for key, ids := range m.table {
		m.table[key] = retainNotEqual(ids, clientID)
	}
}

func retainNotEqual(ids []uint32, clientID uint32) []uint32 {
	kept := ids[:0]
	for _, id := range ids {
		if id != clientID {
			kept = append(kept, id)
		}
	}
	return kept
}
