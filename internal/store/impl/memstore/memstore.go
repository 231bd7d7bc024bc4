// Package memstore is an in-process vehicle store for development runs and
// tests. It keeps a single operator account.
package memstore

import (
	"context"
	"sync"

	"github.com/phuslu/log"
	"golang.org/x/crypto/bcrypt"

	"nuha.dev/fleetmap/internal/store"
	"nuha.dev/fleetmap/internal/vehicle"
)

type Operator struct {
	Email    string
	Hash     []byte
	Disabled bool
}

type Store struct {
	// sendMu keeps notifications in write order.
	sendMu   sync.Mutex
	mu       sync.Mutex
	list     map[string]vehicle.Fields
	operator Operator
	fanout   *store.Fanout
	log      log.Logger
}

func New(op Operator) *Store {
	s := &Store{list: make(map[string]vehicle.Fields), operator: op, fanout: store.NewFanout()}
	s.log = log.DefaultLogger
	s.log.Context = log.NewContext(nil).Str("module", "memstore").Value()
	return s
}

// Seed inserts records without notifying watchers.
func (s *Store) Seed(all map[string]vehicle.Fields) {
	s.mu.Lock()
	for id, f := range all {
		s.list[id] = f
	}
	s.mu.Unlock()
}

// SeedFile seeds from a file read by store.ReadSeedFile.
func (s *Store) SeedFile(path string) error {
	all, err := store.ReadSeedFile(path)
	if err != nil {
		return err
	}
	s.Seed(all)
	s.log.Info().Str("path", path).Int("count", len(all)).Msg("seeded vehicles")
	return nil
}

func (s *Store) SignIn(ctx context.Context, email, password string) error {
	if email != s.operator.Email {
		return store.UserNotFound(email)
	}
	if s.operator.Disabled {
		return store.UserDisabled()
	}
	if bcrypt.CompareHashAndPassword(s.operator.Hash, []byte(password)) != nil {
		return store.WrongPassword()
	}
	return nil
}

func (s *Store) ReadAll(ctx context.Context) (map[string]vehicle.Fields, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]vehicle.Fields, len(s.list))
	for id, f := range s.list {
		out[id] = f
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, id string, f vehicle.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.mu.Lock()
	prev, existed := s.list[id]
	s.list[id] = f
	s.mu.Unlock()
	if existed && prev != f {
		s.fanout.Send(store.Change{Key: id, Value: f})
	}
	return nil
}

func (s *Store) Watch(ctx context.Context, fn func(store.Change)) error {
	return s.fanout.Watch(ctx, fn)
}
