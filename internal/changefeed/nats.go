package changefeed

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/phuslu/log"

	"nuha.dev/fleetmap/internal/store"
)

const relayKey = "nats-relay"

// NatsRelay bridges the hub and a NATS subject tree. Changes travel as the
// JSON of store.Change on subject <prefix>.<vehicle id>.
type NatsRelay struct {
	nc     *nats.Conn
	hub    *Hub
	prefix string
	sub    *nats.Subscription
	log    log.Logger
}

func NewNatsRelay(nc *nats.Conn, hub *Hub, prefix string) *NatsRelay {
	r := &NatsRelay{nc: nc, hub: hub, prefix: strings.TrimSuffix(prefix, ".")}
	r.log = log.DefaultLogger
	r.log.Context = log.NewContext(nil).Str("module", "natsrelay").Value()
	return r
}

func (r *NatsRelay) subject(id string) string {
	return r.prefix + "." + id
}

// Forward publishes every hub change to NATS.
func (r *NatsRelay) Forward() {
	r.hub.Register(relayKey, func(c store.Change) {
		b, err := json.Marshal(c)
		if err != nil {
			r.log.Error().Err(err).Msg("error while encoding change")
			return
		}
		err = r.nc.Publish(r.subject(c.Key), b)
		if err != nil {
			r.log.Error().Err(err).Str("vehicle_id", c.Key).Msg("error while publishing to nats")
		}
	})
	r.log.Info().Str("subject", r.subject("*")).Msg("forwarding changes")
}

// Consume subscribes to the subject tree and publishes into the hub. It must
// not run together with Forward on the same hub.
func (r *NatsRelay) Consume(ctx context.Context) error {
	sub, err := r.nc.Subscribe(r.subject("*"), func(m *nats.Msg) {
		c := store.Change{}
		err := json.Unmarshal(m.Data, &c)
		if err != nil {
			r.log.Warn().Err(err).Str("subject", m.Subject).Msg("bad change message")
			return
		}
		if c.Key == "" {
			c.Key = strings.TrimPrefix(m.Subject, r.prefix+".")
		}
		r.hub.Publish(ctx, c)
	})
	if err != nil {
		return err
	}
	r.sub = sub
	r.log.Info().Str("subject", r.subject("*")).Msg("consuming changes")
	return nil
}

func (r *NatsRelay) Close() error {
	r.hub.Deregister(relayKey)
	if r.sub != nil {
		return r.sub.Unsubscribe()
	}
	return nil
}
