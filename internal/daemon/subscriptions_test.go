package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcfleet/mcfleet/internal/protocol"
)

func TestRetainNotEqual(t *testing.T) {
	got := retainNotEqual([]uint32{1, 2, 3, 2}, 2)
	assert.Equal(t, []uint32{1, 3}, got)
}

func TestAddSubscriptionAdmitsDuplicates(t *testing.T) {
	m := newSubscriptionManager(make(chan daemonEvent, 4), discardLogger())
	m.addSubscription("u1", protocol.EventServerStarted, 7)
	m.addSubscription("u1", protocol.EventServerStarted, 7)
	key := subscriptionKey{unitID: "u1", kind: protocol.EventServerStarted}
	assert.Equal(t, []uint32{7, 7}, m.table[key])
}

func TestRemoveSubscriptionDropsEveryMatchingEntry(t *testing.T) {
	m := newSubscriptionManager(make(chan daemonEvent, 4), discardLogger())
	m.addSubscription("u1", protocol.EventServerStarted, 7)
	m.addSubscription("u1", protocol.EventServerStarted, 7)
	m.addSubscription("u1", protocol.EventServerStarted, 9)

	m.removeSubscription("u1", protocol.EventServerStarted, 7)

	key := subscriptionKey{unitID: "u1", kind: protocol.EventServerStarted}
	assert.Equal(t, []uint32{9}, m.table[key])
}

func TestRemoveAllSubscriptionsClearsEveryKey(t *testing.T) {
	m := newSubscriptionManager(make(chan daemonEvent, 4), discardLogger())
	m.addSubscription("u1", protocol.EventServerStarted, 7)
	m.addSubscription("u2", protocol.EventServerStopped, 7)
	m.addSubscription("u2", protocol.EventServerStopped, 9)

	m.removeAllSubscriptions(7)

	assert.Empty(t, m.table[subscriptionKey{unitID: "u1", kind: protocol.EventServerStarted}])
	assert.Equal(t, []uint32{9}, m.table[subscriptionKey{unitID: "u2", kind: protocol.EventServerStopped}])
}

func TestDispatchEventForwardsOnlyToSubscribers(t *testing.T) {
	out := make(chan daemonEvent, 4)
	m := newSubscriptionManager(out, discardLogger())
	m.addSubscription("u1", protocol.EventServerStarted, 7)

	m.dispatchEvent(protocol.ServerEvent{UnitID: "u1", Kind: protocol.EventServerStarted})
	m.dispatchEvent(protocol.ServerEvent{UnitID: "u1", Kind: protocol.EventServerStopped})

	require.Len(t, out, 1)
	ev := <-out
	assert.Equal(t, evtSendEvent, ev.kind)
	assert.Equal(t, uint32(7), ev.clientID)
	assert.Equal(t, protocol.EventServerStarted, ev.event.Kind)
}
