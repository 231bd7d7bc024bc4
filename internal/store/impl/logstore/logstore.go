// Package logstore wraps a store and writes an audit line for every sign in
// and write that passes through it.
package logstore

import (
	"context"

	"github.com/rs/zerolog"

	"nuha.dev/fleetmap/internal/store"
	"nuha.dev/fleetmap/internal/vehicle"
)

type LogStore struct {
	store.Store
	log zerolog.Logger
}

func NewStore(next store.Store, l zerolog.Logger) *LogStore {
	return &LogStore{Store: next, log: l.With().Str("module", "audit").Logger()}
}

func (l *LogStore) SignIn(ctx context.Context, email, password string) error {
	err := l.Store.SignIn(ctx, email, password)
	l.log.Info().Str("email", email).Bool("ok", err == nil).Msg("sign in")
	return err
}

func (l *LogStore) Set(ctx context.Context, id string, f vehicle.Fields) error {
	err := l.Store.Set(ctx, id, f)
	ev := l.log.Info()
	if err != nil {
		ev = l.log.Warn().Err(err)
	}
	ev.Str("vid", id).Str("name", f.Name).Str("lat", f.Lat).Str("lon", f.Lon).Str("speed", f.SpeedKmh).Str("event_dt", f.EventDTUTC).Msg("set")
	return err
}
