package server

import (
	"sync"

	"trade-stream/src/logger"
	"trade-stream/src/metrics"
	"trade-stream/src/models"
)

// -----------------------------------------------------------------------------
// ConnectionManager owns the raw connect/send/close operations and the
// user -> connections index; channel bookkeeping is the Registry's job.
// A failed or blocked send is treated as an implicit disconnect.
// -----------------------------------------------------------------------------

type ConnectionManager struct {
	Registry *SubscriberRegistry
	Logger   *logger.Logger

	mu    sync.RWMutex
	users map[string]map[*Client]struct{}

	// onEmptyKey is invoked for every (channel, key) that loses its last
	// subscriber, so the matching publisher loop can be stopped.
	onEmptyKey func(channel, key string)
}

// -----------------------------------------------------------------------------

func NewConnectionManager(registry *SubscriberRegistry, log *logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		Registry: registry,
		Logger:   log,
		users:    make(map[string]map[*Client]struct{}),
	}
}

// -----------------------------------------------------------------------------

// SetEmptyKeyHandler wires the publisher manager's stop hook.
func (m *ConnectionManager) SetEmptyKeyHandler(fn func(channel, key string)) {
	m.onEmptyKey = fn
}

// -----------------------------------------------------------------------------

// Connect records an accepted connection under its user.
func (m *ConnectionManager) Connect(client *Client) {
	m.mu.Lock()
	if m.users[client.UserID] == nil {
		m.users[client.UserID] = make(map[*Client]struct{})
	}
	m.users[client.UserID][client] = struct{}{}
	m.mu.Unlock()

	metrics.Connections.Inc()
	m.Logger.Info("User %s connected (client %s)", client.UserID, client.ID)
}

// -----------------------------------------------------------------------------

// Disconnect removes the client from the user index and purges all of its
// subscriptions. Idempotent; safe to call from both pumps and from Send.
func (m *ConnectionManager) Disconnect(client *Client) {
	client.mu.Lock()
	if client.closed {
		client.mu.Unlock()
		return
	}
	client.closed = true
	close(client.send)
	client.mu.Unlock()

	client.conn.Close()

	m.mu.Lock()
	if clients, ok := m.users[client.UserID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(m.users, client.UserID)
		}
	}
	m.mu.Unlock()

	metrics.Connections.Dec()

	emptied := m.Registry.RemoveConnection(client)
	if m.onEmptyKey != nil {
		for _, ck := range emptied {
			m.onEmptyKey(ck.Channel, ck.Key)
		}
	}
}

// -----------------------------------------------------------------------------

// Send queues one envelope for the client. Sends to a closed client are
// no-ops; a full buffer means the consumer is too slow and the connection
// is pruned to keep the publishers from blocking.
func (m *ConnectionManager) Send(client *Client, envelope *models.MEnvelope) {
	client.mu.Lock()
	if client.closed {
		client.mu.Unlock()
		return
	}

	select {
	case client.send <- envelope:
		client.mu.Unlock()
		return
	default:
	}
	client.mu.Unlock()

	metrics.DroppedMessages.Inc()
	metrics.SendFailures.Inc()
	m.Logger.Warning("Client %s too slow, disconnecting", client.ID)
	m.Disconnect(client)
}

// -----------------------------------------------------------------------------

// BroadcastToUser sends to every connection of one user (used for direct
// notifications such as a trade confirmation).
func (m *ConnectionManager) BroadcastToUser(userID string, envelope *models.MEnvelope) {
	m.mu.RLock()
	clients := make([]*Client, 0, len(m.users[userID]))
	for c := range m.users[userID] {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	for _, c := range clients {
		m.Send(c, envelope)
	}
}

// -----------------------------------------------------------------------------

// ConnectionCount returns the number of open connections.
func (m *ConnectionManager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, clients := range m.users {
		n += len(clients)
	}
	return n
}
