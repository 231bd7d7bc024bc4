package memstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"golang.org/x/crypto/bcrypt"

	"nuha.dev/fleetmap/internal/store"
	"nuha.dev/fleetmap/internal/vehicle"
)

func newStore(t *testing.T) *Store {
	h, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	assert.Equal(t, err, nil)
	return New(Operator{Email: "ops@example.com", Hash: h})
}

func authCode(err error) string {
	var aerr *store.AuthError
	if errors.As(err, &aerr) {
		return aerr.Code
	}
	return ""
}

func TestSignIn(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	assert.Equal(t, s.SignIn(ctx, "ops@example.com", "secret"), nil)
	assert.Equal(t, authCode(s.SignIn(ctx, "ops@example.com", "nope")), store.CodeWrongPassword)
	assert.Equal(t, authCode(s.SignIn(ctx, "other@example.com", "secret")), store.CodeUserNotFound)

	s.operator.Disabled = true
	assert.Equal(t, authCode(s.SignIn(ctx, "ops@example.com", "secret")), store.CodeUserDisabled)
}

func TestWatchDeliversOnlyChanges(t *testing.T) {
	s := newStore(t)
	s.Seed(map[string]vehicle.Fields{"v1": {Name: "A", Lat: "1", Lon: "1", SpeedKmh: "0"}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan store.Change, 10)
	go func() {
		_ = s.Watch(ctx, func(c store.Change) { got <- c })
	}()
	for s.fanout.Len() == 0 {
		time.Sleep(time.Millisecond)
	}

	// new id is an insert, not a change
	assert.Equal(t, s.Set(ctx, "v2", vehicle.Fields{Name: "B"}), nil)
	// same value is not a change
	assert.Equal(t, s.Set(ctx, "v1", vehicle.Fields{Name: "A", Lat: "1", Lon: "1", SpeedKmh: "0"}), nil)
	assert.Equal(t, s.Set(ctx, "v1", vehicle.Fields{Name: "A", Lat: "5", Lon: "5", SpeedKmh: "0"}), nil)

	select {
	case c := <-got:
		assert.Equal(t, c.Key, "v1")
		assert.Equal(t, c.Value.Lat, "5")
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}
	assert.Equal(t, len(got), 0)

	all, _ := s.ReadAll(ctx)
	assert.Equal(t, len(all), 2)
}

func TestSeedFile(t *testing.T) {
	s := newStore(t)
	path := filepath.Join(t.TempDir(), "seed.json")
	err := os.WriteFile(path, []byte(`{"v1":{"Name":"A","EventDTUTC":"x","Lat":"1","Lon":"2","SpeedKmh":"3"}}`), 0o600)
	assert.Equal(t, err, nil)
	assert.Equal(t, s.SeedFile(path), nil)
	all, _ := s.ReadAll(context.Background())
	assert.Equal(t, all["v1"], vehicle.Fields{Name: "A", EventDTUTC: "x", Lat: "1", Lon: "2", SpeedKmh: "3"})
}

func TestConcurrentSetsNotifyInWriteOrder(t *testing.T) {
	s := newStore(t)
	s.Seed(map[string]vehicle.Fields{"v1": {Name: "A", Lat: "0", Lon: "0", SpeedKmh: "0"}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var mu sync.Mutex
	var order []string
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	go func() {
		_ = s.Watch(ctx, func(c store.Change) {
			if c.Value.Lat == "1" {
				entered <- struct{}{}
				<-release
			}
			mu.Lock()
			order = append(order, c.Value.Lat)
			mu.Unlock()
		})
	}()
	for s.fanout.Len() == 0 {
		time.Sleep(time.Millisecond)
	}

	errc := make(chan error, 2)
	go func() { errc <- s.Set(ctx, "v1", vehicle.Fields{Name: "A", Lat: "1", Lon: "0", SpeedKmh: "0"}) }()
	<-entered
	// the second writer must wait for the first delivery to finish
	go func() { errc <- s.Set(ctx, "v1", vehicle.Fields{Name: "A", Lat: "2", Lon: "0", SpeedKmh: "0"}) }()
	time.Sleep(20 * time.Millisecond)
	close(release)
	assert.Equal(t, <-errc, nil)
	assert.Equal(t, <-errc, nil)

	all, err := s.ReadAll(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, all["v1"].Lat, "2")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, order, []string{"1", "2"})
}
