package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"nuha.dev/fleetmap/internal/auth"
	"nuha.dev/fleetmap/internal/changefeed"
	"nuha.dev/fleetmap/internal/dashboard"
	"nuha.dev/fleetmap/internal/store/impl/memstore"
	"nuha.dev/fleetmap/internal/webapp/webstream"
)

func TestEmptyStatus(t *testing.T) {
	hub, err := changefeed.NewHub(1)
	assert.Equal(t, err, nil)
	ws := webstream.NewWebstream(memstore.New(memstore.Operator{}), hub, auth.NewIssuer([]byte("k"), time.Hour), webstream.WebStreamConfig{Session: dashboard.Options{FocusZoom: 12, InitialZoom: 3}})
	m := NewMonApi(ws, &MonitoringConfig{ListenAddr: "localhost:0"})

	rec := httptest.NewRecorder()
	m.GetHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	res := status{}
	assert.Equal(t, json.NewDecoder(rec.Body).Decode(&res), nil)
	assert.Equal(t, res.Count, 0)
	assert.Equal(t, len(res.Clients), 0)
}
