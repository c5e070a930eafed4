package gateway

import (
	"context"
	"sync"

	"github.com/wavechat/gateway/internal/svc/events"
	"go.uber.org/zap"
)

// roomRegistry maps fanout topics to the local connections subscribed to
// them. It is purely a per-instance cache of socket membership: the bus
// subscription held per room is what stitches instances together, and room
// membership here is the final broadcast gate.
type roomRegistry struct {
	mx sync.Mutex

	bus     events.Instance
	relay   func(topic string, payload events.Payload)
	members map[string]map[*Connection]struct{}
	cancels map[string]func()
}

func newRoomRegistry(bus events.Instance, relay func(topic string, payload events.Payload)) *roomRegistry {
	return &roomRegistry{
		bus:     bus,
		relay:   relay,
		members: map[string]map[*Connection]struct{}{},
		cancels: map[string]func(){},
	}
}

// Join adds the connection to a room. The first local member of a room opens
// the bus subscription for its topic.
func (r *roomRegistry) Join(ctx context.Context, conn *Connection, topic string) error {
	r.mx.Lock()
	defer r.mx.Unlock()

	set, ok := r.members[topic]
	if !ok {
		set = map[*Connection]struct{}{}
		r.members[topic] = set

		cancel, err := r.bus.Subscribe(ctx, topic, func(payload events.Payload) {
			r.relay(topic, payload)
		})
		if err != nil {
			delete(r.members, topic)

			return err
		}

		r.cancels[topic] = cancel
	}

	set[conn] = struct{}{}

	return nil
}

// Leave removes the connection from a room; the last local member leaving
// closes the bus subscription.
func (r *roomRegistry) Leave(conn *Connection, topic string) {
	r.mx.Lock()
	defer r.mx.Unlock()

	r.leaveLocked(conn, topic)
}

func (r *roomRegistry) leaveLocked(conn *Connection, topic string) {
	set, ok := r.members[topic]
	if !ok {
		return
	}

	delete(set, conn)

	if len(set) == 0 {
		delete(r.members, topic)

		if cancel, ok := r.cancels[topic]; ok {
			delete(r.cancels, topic)
			cancel()
		}
	}
}

func (r *roomRegistry) LeaveAll(conn *Connection, topics []string) {
	r.mx.Lock()
	defer r.mx.Unlock()

	for _, topic := range topics {
		r.leaveLocked(conn, topic)
	}
}

// Members snapshots the local connections in a room.
func (r *roomRegistry) Members(topic string) []*Connection {
	r.mx.Lock()
	defer r.mx.Unlock()

	conns := make([]*Connection, 0, len(r.members[topic]))
	for c := range r.members[topic] {
		conns = append(conns, c)
	}

	return conns
}

func (r *roomRegistry) Shutdown() {
	r.mx.Lock()
	defer r.mx.Unlock()

	for topic, cancel := range r.cancels {
		delete(r.cancels, topic)
		cancel()
	}

	if n := len(r.members); n > 0 {
		zap.S().Debugw("room registry shutdown with live rooms",
			"rooms", n,
		)
	}

	r.members = map[string]map[*Connection]struct{}{}
}
