package server

import (
	"sync"

	"trade-stream/src/metrics"
	"trade-stream/src/models"
)

// -----------------------------------------------------------------------------
// SubscriberRegistry is the authoritative mapping from (channel, key) to the
// set of interested clients, indexed by owning user. All mutation goes
// through the four operations below; nothing else touches the maps.
//
// One mutex per channel keeps subscribe/unsubscribe for different channels
// from contending. Empty key and user entries are pruned eagerly, and no
// operation errors on "not found" - registry state is self-healing.
// -----------------------------------------------------------------------------

type ChannelKey struct {
	Channel string
	Key     string
}

type channelIndex struct {
	mu   sync.Mutex
	keys map[string]map[string]map[*Client]struct{} // key -> user -> clients
}

type SubscriberRegistry struct {
	channels map[string]*channelIndex
}

// -----------------------------------------------------------------------------

func NewSubscriberRegistry() *SubscriberRegistry {
	r := &SubscriberRegistry{
		channels: make(map[string]*channelIndex, len(models.Channels)),
	}
	for _, name := range models.Channels {
		r.channels[name] = &channelIndex{
			keys: make(map[string]map[string]map[*Client]struct{}),
		}
	}
	return r
}

// -----------------------------------------------------------------------------

// Subscribe adds client under (channel, key). Idempotent: subscribing twice
// yields one entry. Unknown channels are ignored.
func (r *SubscriberRegistry) Subscribe(channel, key, user string, client *Client) {
	idx, ok := r.channels[channel]
	if !ok {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	users, ok := idx.keys[key]
	if !ok {
		users = make(map[string]map[*Client]struct{})
		idx.keys[key] = users
	}

	clients, ok := users[user]
	if !ok {
		clients = make(map[*Client]struct{})
		users[user] = clients
	}

	if _, dup := clients[client]; !dup {
		clients[client] = struct{}{}
		metrics.Subscriptions.WithLabelValues(channel).Inc()
	}
}

// -----------------------------------------------------------------------------

// Unsubscribe removes client from (channel, key). Idempotent: no error when
// absent. Returns the number of clients still subscribed under the key.
func (r *SubscriberRegistry) Unsubscribe(channel, key, user string, client *Client) int {
	idx, ok := r.channels[channel]
	if !ok {
		return 0
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	users, ok := idx.keys[key]
	if !ok {
		return 0
	}

	if clients, ok := users[user]; ok {
		if _, present := clients[client]; present {
			delete(clients, client)
			metrics.Subscriptions.WithLabelValues(channel).Dec()
		}
		if len(clients) == 0 {
			delete(users, user)
		}
	}

	if len(users) == 0 {
		delete(idx.keys, key)
		return 0
	}

	return countLocked(users)
}

// -----------------------------------------------------------------------------

// RemoveConnection purges client from every channel and key it is under
// (a connection may hold many simultaneous subscriptions). Returns the
// (channel, key) pairs left with zero subscribers so their publisher loops
// can be stopped.
func (r *SubscriberRegistry) RemoveConnection(client *Client) []ChannelKey {
	var emptied []ChannelKey

	for name, idx := range r.channels {
		idx.mu.Lock()
		for key, users := range idx.keys {
			for user, clients := range users {
				if _, present := clients[client]; present {
					delete(clients, client)
					metrics.Subscriptions.WithLabelValues(name).Dec()
				}
				if len(clients) == 0 {
					delete(users, user)
				}
			}
			if len(users) == 0 {
				delete(idx.keys, key)
				emptied = append(emptied, ChannelKey{Channel: name, Key: key})
			}
		}
		idx.mu.Unlock()
	}

	return emptied
}

// -----------------------------------------------------------------------------

// SubscribersOf returns a snapshot of the clients under (channel, key).
// The copy lets a publisher iterate and send while a failed send removes
// entries from the live maps.
func (r *SubscriberRegistry) SubscribersOf(channel, key string) []*Client {
	idx, ok := r.channels[channel]
	if !ok {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	users, ok := idx.keys[key]
	if !ok {
		return nil
	}

	var clients []*Client
	for _, set := range users {
		for c := range set {
			clients = append(clients, c)
		}
	}
	return clients
}

// -----------------------------------------------------------------------------

// Count returns the number of clients under (channel, key).
func (r *SubscriberRegistry) Count(channel, key string) int {
	idx, ok := r.channels[channel]
	if !ok {
		return 0
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	users, ok := idx.keys[key]
	if !ok {
		return 0
	}
	return countLocked(users)
}

// -----------------------------------------------------------------------------

func countLocked(users map[string]map[*Client]struct{}) int {
	n := 0
	for _, clients := range users {
		n += len(clients)
	}
	return n
}
