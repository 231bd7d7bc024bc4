package logstore

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"nuha.dev/fleetmap/internal/store/impl/memstore"
	"nuha.dev/fleetmap/internal/vehicle"
)

func TestAuditLines(t *testing.T) {
	h, _ := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	mem := memstore.New(memstore.Operator{Email: "ops@example.com", Hash: h})
	buf := &bytes.Buffer{}
	s := NewStore(mem, zerolog.New(buf))
	ctx := context.Background()

	assert.Equal(t, s.SignIn(ctx, "ops@example.com", "secret"), nil)
	assert.Equal(t, s.Set(ctx, "v1", vehicle.Fields{Name: "Truck", Lat: "1"}), nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, len(lines), 2)
	assert.Equal(t, strings.Contains(lines[0], `"email":"ops@example.com"`), true)
	assert.Equal(t, strings.Contains(lines[1], `"vid":"v1"`), true)

	all, _ := s.ReadAll(ctx)
	assert.Equal(t, all["v1"].Name, "Truck")
}
