// Package changefeed carries child-changed events from the store watch to
// every dashboard session in the process, and optionally between processes
// over NATS.
package changefeed

import (
	"context"

	"github.com/mustafaturan/bus/v3"
	"github.com/mustafaturan/monoton/v2"
	"github.com/mustafaturan/monoton/v2/sequencer"
	"github.com/phuslu/log"

	"nuha.dev/fleetmap/internal/store"
)

const TopicVehicleChanged = "vehicle.changed"

// 2021-01-01T00:00:00Z in milliseconds
const epochMillis = uint64(1609459200000)

type Hub struct {
	b   *bus.Bus
	log log.Logger
}

func NewHub(node uint64) (*Hub, error) {
	m, err := monoton.New(sequencer.NewMillisecond(), node, epochMillis)
	if err != nil {
		return nil, err
	}
	var idGenerator bus.Next = m.Next
	b, err := bus.NewBus(idGenerator)
	if err != nil {
		return nil, err
	}
	b.RegisterTopics(TopicVehicleChanged)
	h := &Hub{b: b}
	h.log = log.DefaultLogger
	h.log.Context = log.NewContext(nil).Str("module", "changefeed").Value()
	return h, nil
}

// Publish hands c to every registered handler, in registration-independent
// order, before returning.
func (h *Hub) Publish(ctx context.Context, c store.Change) {
	err := h.b.Emit(ctx, TopicVehicleChanged, c)
	if err != nil {
		h.log.Error().Err(err).Str("vehicle_id", c.Key).Msg("error while publishing change")
	}
}

func (h *Hub) Register(key string, fn func(store.Change)) {
	h.b.RegisterHandler(key, bus.Handler{
		Handle: func(ctx context.Context, e bus.Event) {
			c, ok := e.Data.(store.Change)
			if !ok {
				return
			}
			fn(c)
		},
		Matcher: TopicVehicleChanged,
	})
	h.log.Debug().Str("key", key).Msg("handler registered")
}

func (h *Hub) Deregister(key string) {
	h.b.DeregisterHandler(key)
	h.log.Debug().Str("key", key).Msg("handler deregistered")
}

// Pump runs the store watch and publishes every change into the hub until
// ctx ends.
func (h *Hub) Pump(ctx context.Context, st store.Store) error {
	return st.Watch(ctx, func(c store.Change) {
		h.log.Trace().Str("vehicle_id", c.Key).Msg("change from store")
		h.Publish(ctx, c)
	})
}
