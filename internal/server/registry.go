package server

import (
	"sync"

	"github.com/npezzotti/go-commhub/internal/stats"
	"github.com/rs/zerolog"
)

// ConnectionRegistry maps an identity to its set of live connections. A
// single identity may own any number of simultaneous connections
// (multi-device); the registry is the only shared mutable state in the hub
// and every mutation is serialized by the mutex.
type ConnectionRegistry struct {
	log   zerolog.Logger
	stats stats.StatsProvider

	mu    sync.Mutex
	conns map[string]map[*Client]struct{}
}

func NewConnectionRegistry(logger zerolog.Logger, st stats.StatsProvider) *ConnectionRegistry {
	st.RegisterMetric(stats.NumConnections)
	st.RegisterMetric(stats.NumOnlineIdentities)
	st.RegisterMetric(stats.EventsDelivered)
	st.RegisterMetric(stats.EventsDropped)

	return &ConnectionRegistry{
		log:   logger,
		stats: st,
		conns: make(map[string]map[*Client]struct{}),
	}
}

// Register adds the client under its identity. Registering the same
// connection twice is a no-op.
func (cr *ConnectionRegistry) Register(c *Client) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	set, ok := cr.conns[c.identity.Id]
	if !ok {
		set = make(map[*Client]struct{})
		cr.conns[c.identity.Id] = set
		cr.stats.Incr(stats.NumOnlineIdentities)
	}

	if _, ok := set[c]; ok {
		return
	}

	set[c] = struct{}{}
	cr.stats.Incr(stats.NumConnections)
	cr.log.Debug().
		Str("identity", c.identity.Id).
		Str("connection_id", c.connectionId).
		Msg("registered connection")
}

// Unregister removes the client from whatever identity owns it. Unknown
// connections are ignored (the connection is already gone).
func (cr *ConnectionRegistry) Unregister(c *Client) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	set, ok := cr.conns[c.identity.Id]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}

	delete(set, c)
	cr.stats.Decr(stats.NumConnections)
	if len(set) == 0 {
		delete(cr.conns, c.identity.Id)
		cr.stats.Decr(stats.NumOnlineIdentities)
	}

	cr.log.Debug().
		Str("identity", c.identity.Id).
		Str("connection_id", c.connectionId).
		Msg("unregistered connection")
}

// Deliver pushes msg to every open connection of identity and returns the
// number of connections it was queued on. Delivery is best-effort and
// at-most-once: an offline identity or a connection with a full send buffer
// silently drops the payload, so callers needing guaranteed delivery must
// persist it first.
func (cr *ConnectionRegistry) Deliver(identity string, msg *ServerMessage) int {
	cr.mu.Lock()
	set := cr.conns[identity]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	cr.mu.Unlock()

	if len(clients) == 0 {
		cr.stats.Incr(stats.EventsDropped)
		return 0
	}

	var delivered int
	for _, c := range clients {
		if c.queueMessage(msg) {
			delivered++
			cr.stats.Incr(stats.EventsDelivered)
		} else {
			cr.stats.Incr(stats.EventsDropped)
		}
	}

	return delivered
}

// NumConnections returns the connection count for an identity.
func (cr *ConnectionRegistry) NumConnections(identity string) int {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	return len(cr.conns[identity])
}

// Shutdown stops every registered client.
func (cr *ConnectionRegistry) Shutdown() {
	cr.mu.Lock()
	clients := make([]*Client, 0)
	for _, set := range cr.conns {
		for c := range set {
			clients = append(clients, c)
		}
	}
	cr.mu.Unlock()

	for _, c := range clients {
		c.stopClient()
	}
}
