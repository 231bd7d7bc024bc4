package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"golang.org/x/crypto/bcrypt"

	"nuha.dev/fleetmap/internal/changefeed"
	"nuha.dev/fleetmap/internal/geo"
	"nuha.dev/fleetmap/internal/store"
	"nuha.dev/fleetmap/internal/store/impl/memstore"
	"nuha.dev/fleetmap/internal/ui/form"
	"nuha.dev/fleetmap/internal/ui/msg"
	"nuha.dev/fleetmap/internal/vehicle"
)

type setCall struct {
	id string
	f  vehicle.Fields
}

// countingStore records writes and can be told to fail them.
type countingStore struct {
	*memstore.Store
	mu     sync.Mutex
	calls  []setCall
	setErr error
}

func (c *countingStore) Set(ctx context.Context, id string, f vehicle.Fields) error {
	c.mu.Lock()
	c.calls = append(c.calls, setCall{id: id, f: f})
	err := c.setErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.Store.Set(ctx, id, f)
}

type fixture struct {
	s   *Session
	st  *countingStore
	hub *changefeed.Hub
	rec *msg.Recorder
}

var fleet = map[string]vehicle.Fields{
	"v1": {Name: "A", EventDTUTC: "2021-06-01T10:00:00Z", Lat: "1", Lon: "1", SpeedKmh: "10"},
	"v2": {Name: "B", EventDTUTC: "2021-06-01T10:05:00Z", Lat: "2", Lon: "2", SpeedKmh: "20"},
}

func setup(t *testing.T, all map[string]vehicle.Fields) fixture {
	h, _ := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	mem := memstore.New(memstore.Operator{Email: "ops@example.com", Hash: h})
	mem.Seed(all)
	st := &countingStore{Store: mem}
	hub, err := changefeed.NewHub(1)
	assert.Equal(t, err, nil)
	rec := &msg.Recorder{}
	s := NewSession("s1", Deps{Store: st, Emitter: rec, Hub: hub}, Options{FocusZoom: 12, InitialZoom: 3, MarkerSalt: "test"})
	s.post = func(fn func()) { fn() }
	s.spawn = func(fn func()) { fn() }
	s.kick = s.drain
	assert.Equal(t, s.Start(context.Background()), nil)
	return fixture{s: s, st: st, hub: hub, rec: rec}
}

func markerAt(t *testing.T, s *Session, id string) geo.Position {
	mk, ok := s.registry.Handle(id)
	assert.Equal(t, ok, true)
	return mk.Position()
}

func TestMapInit(t *testing.T) {
	x := setup(t, fleet)
	assert.Equal(t, x.s.registry.Len(), 2)
	fitted := x.s.w.Fitted()
	for id := range fleet {
		r, ok := x.s.mirror.Get(id)
		assert.Equal(t, ok, true)
		assert.Equal(t, fitted.Contains(r.Position()), true)
		assert.Equal(t, markerAt(t, x.s, id), r.Position())
	}
	_, active := x.s.selection.Active()
	assert.Equal(t, active, false)
	assert.Equal(t, x.s.form.Values(), vehicle.Fields{})

	sel, ok := x.rec.Last(msg.TSelector)
	assert.Equal(t, ok, true)
	assert.Equal(t, sel.Options, []msg.Option{
		{Label: form.SentinelLabel, Value: form.Sentinel},
		{Label: "A", Value: "v1"},
		{Label: "B", Value: "v2"},
	})
	assert.Equal(t, x.rec.Messages()[0].Type, msg.TMapInit)
	assert.Equal(t, len(x.rec.OfType(msg.TMarkerCreate)), 2)
}

func TestMapInitSkipsBadRecords(t *testing.T) {
	x := setup(t, map[string]vehicle.Fields{
		"v1": fleet["v1"],
		"v3": {Name: "C", Lat: "n/a", Lon: "1", SpeedKmh: "0"},
	})
	assert.Equal(t, x.s.mirror.Len(), 1)
	assert.Equal(t, x.s.registry.Len(), 1)
}

func TestMapInitEmptyCollection(t *testing.T) {
	x := setup(t, map[string]vehicle.Fields{})
	assert.Equal(t, x.s.registry.Len(), 0)
	assert.Equal(t, len(x.rec.OfType(msg.TFitBounds)), 0)
	assert.Equal(t, x.s.w.Center(), geo.Position{})
	assert.Equal(t, x.s.w.Zoom(), 3)
}

func TestSelectAndSentinel(t *testing.T) {
	x := setup(t, fleet)
	x.s.HandleInbound(msg.Inbound{Type: msg.TSelect, ID: "v2"})
	assert.Equal(t, x.s.form.Values(), fleet["v2"])
	assert.Equal(t, x.s.w.Center(), geo.Position{Lat: 2, Lon: 2})
	assert.Equal(t, x.s.w.Zoom(), 12)

	x.rec.Reset()
	x.s.HandleInbound(msg.Inbound{Type: msg.TSelect, ID: form.Sentinel})
	_, active := x.s.selection.Active()
	assert.Equal(t, active, false)
	assert.Equal(t, x.s.form.Values(), vehicle.Fields{})
	fit, ok := x.rec.Last(msg.TFitBounds)
	assert.Equal(t, ok, true)
	assert.Equal(t, *fit.Bounds, x.s.registry.Bounds())
}

func TestResizeRefits(t *testing.T) {
	x := setup(t, fleet)
	x.rec.Reset()
	x.s.HandleInbound(msg.Inbound{Type: msg.TResize})
	fit, ok := x.rec.Last(msg.TFitBounds)
	assert.Equal(t, ok, true)
	assert.Equal(t, *fit.Bounds, x.s.registry.Bounds())
}

func TestSubmitWithoutSelection(t *testing.T) {
	x := setup(t, fleet)
	center := x.s.w.Center()
	x.rec.Reset()
	x.s.HandleInbound(msg.Inbound{Type: msg.TSubmit, Fields: &vehicle.Fields{Name: "X", Lat: "9", Lon: "9", SpeedKmh: "0"}})
	assert.Equal(t, len(x.st.calls), 0)
	assert.Equal(t, x.s.w.Center(), center)
	assert.Equal(t, markerAt(t, x.s, "v1"), geo.Position{Lat: 1, Lon: 1})
	r, _ := x.s.mirror.Get("v1")
	assert.Equal(t, r.Name, "A")
	assert.Equal(t, len(x.rec.Messages()), 0)
}

func TestSubmitSuccess(t *testing.T) {
	x := setup(t, fleet)
	x.s.HandleInbound(msg.Inbound{Type: msg.TSelect, ID: "v1"})
	nv := vehicle.Fields{Name: "A2", EventDTUTC: "2021-06-01T11:00:00Z", Lat: "40", Lon: "50", SpeedKmh: "33.5"}
	x.s.HandleInbound(msg.Inbound{Type: msg.TSubmit, Fields: &nv})

	assert.Equal(t, x.st.calls, []setCall{{id: "v1", f: nv}})
	r, _ := x.s.mirror.Get("v1")
	assert.Equal(t, r, vehicle.Record{ID: "v1", Name: "A2", EventDTUTC: "2021-06-01T11:00:00Z", Lat: 40, Lon: 50, SpeedKmh: 33.5})
	assert.Equal(t, markerAt(t, x.s, "v1"), geo.Position{Lat: 40, Lon: 50})
	assert.Equal(t, x.s.registry.Bounds().Contains(geo.Position{Lat: 40, Lon: 50}), true)
	assert.Equal(t, x.s.w.Center(), geo.Position{Lat: 40, Lon: 50})

	all, _ := x.st.ReadAll(context.Background())
	assert.Equal(t, all["v1"], nv)
}

func TestSubmitFailureTouchesNothing(t *testing.T) {
	x := setup(t, fleet)
	x.s.HandleInbound(msg.Inbound{Type: msg.TSelect, ID: "v1"})
	bounds := x.s.registry.Bounds()
	center := x.s.w.Center()
	x.st.setErr = errors.New("permission denied")

	nv := vehicle.Fields{Name: "A2", Lat: "40", Lon: "50", SpeedKmh: "1"}
	x.s.HandleInbound(msg.Inbound{Type: msg.TSubmit, Fields: &nv})

	assert.Equal(t, len(x.st.calls), 1)
	r, _ := x.s.mirror.Get("v1")
	assert.Equal(t, r.Name, "A")
	assert.Equal(t, markerAt(t, x.s, "v1"), geo.Position{Lat: 1, Lon: 1})
	assert.Equal(t, x.s.registry.Bounds(), bounds)
	assert.Equal(t, x.s.w.Center(), center)
	// the form keeps what the operator typed
	assert.Equal(t, x.s.form.Values(), nv)
}

func TestSubmitRejectsNonNumeric(t *testing.T) {
	x := setup(t, fleet)
	x.s.HandleInbound(msg.Inbound{Type: msg.TSelect, ID: "v1"})
	x.s.HandleInbound(msg.Inbound{Type: msg.TSubmit, Fields: &vehicle.Fields{Name: "A", Lat: "one", Lon: "1", SpeedKmh: "1"}})
	assert.Equal(t, len(x.st.calls), 0)
	r, _ := x.s.mirror.Get("v1")
	assert.Equal(t, r.Lat, 1.0)
}

func TestWriteFinishingAfterNavigationIsDropped(t *testing.T) {
	x := setup(t, fleet)
	var pending []func()
	x.s.spawn = func(fn func()) { pending = append(pending, fn) }

	x.s.HandleInbound(msg.Inbound{Type: msg.TSelect, ID: "v1"})
	nv := vehicle.Fields{Name: "A2", Lat: "40", Lon: "50", SpeedKmh: "1"}
	x.s.HandleInbound(msg.Inbound{Type: msg.TSubmit, Fields: &nv})
	x.s.HandleInbound(msg.Inbound{Type: msg.TSelect, ID: "v2"})
	assert.Equal(t, len(pending), 1)
	pending[0]()

	assert.Equal(t, len(x.st.calls), 1)
	r, _ := x.s.mirror.Get("v1")
	assert.Equal(t, r.Name, "A")
	assert.Equal(t, x.s.w.Center(), geo.Position{Lat: 2, Lon: 2})
	assert.Equal(t, x.s.form.Values(), fleet["v2"])
}

func TestRemoteChangeForOtherVehicle(t *testing.T) {
	x := setup(t, fleet)
	x.s.HandleInbound(msg.Inbound{Type: msg.TSelect, ID: "v1"})

	x.hub.Publish(context.Background(), store.Change{Key: "v2", Value: vehicle.Fields{Name: "B", EventDTUTC: "x", Lat: "5", Lon: "5", SpeedKmh: "20"}})

	assert.Equal(t, markerAt(t, x.s, "v2"), geo.Position{Lat: 5, Lon: 5})
	assert.Equal(t, x.s.form.Values(), fleet["v1"])
	r, _ := x.s.mirror.Get("v2")
	assert.Equal(t, r.Position(), geo.Position{Lat: 2, Lon: 2})
}

func TestRemoteChangeForActiveVehicle(t *testing.T) {
	x := setup(t, fleet)
	x.s.HandleInbound(msg.Inbound{Type: msg.TSelect, ID: "v1"})
	nv := vehicle.Fields{Name: "A", EventDTUTC: "y", Lat: "6", Lon: "7", SpeedKmh: "0"}

	x.hub.Publish(context.Background(), store.Change{Key: "v1", Value: nv})

	assert.Equal(t, markerAt(t, x.s, "v1"), geo.Position{Lat: 6, Lon: 7})
	assert.Equal(t, x.s.form.Values(), nv)
	r, _ := x.s.mirror.Get("v1")
	assert.Equal(t, r.Position(), geo.Position{Lat: 6, Lon: 7})
	assert.Equal(t, x.s.w.Center(), geo.Position{Lat: 6, Lon: 7})
}

func TestCloseDetachesFromHub(t *testing.T) {
	x := setup(t, fleet)
	x.s.Close()
	x.hub.Publish(context.Background(), store.Change{Key: "v1", Value: vehicle.Fields{Name: "A", Lat: "9", Lon: "9", SpeedKmh: "0"}})
	assert.Equal(t, markerAt(t, x.s, "v1"), geo.Position{Lat: 1, Lon: 1})
	x.s.Close()
}

func TestRunExecutesPostedWork(t *testing.T) {
	h, _ := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	mem := memstore.New(memstore.Operator{Email: "ops@example.com", Hash: h})
	mem.Seed(fleet)
	hub, _ := changefeed.NewHub(1)
	s := NewSession("s2", Deps{Store: mem, Emitter: &msg.Recorder{}, Hub: hub}, Options{FocusZoom: 12, InitialZoom: 3})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.Equal(t, s.Start(ctx), nil)

	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	done := make(chan string, 1)
	s.Post(func() {
		s.HandleInbound(msg.Inbound{Type: msg.TSelect, ID: "v2"})
		id, _ := s.selection.Active()
		done <- id
	})
	select {
	case id := <-done:
		assert.Equal(t, id, "v2")
	case <-time.After(2 * time.Second):
		t.Fatal("posted work did not run")
	}

	s.Close()
	assert.Equal(t, <-errc, nil)
	// dropped, must not block
	s.Post(func() {})
}

func TestStalledPageDoesNotBlockHub(t *testing.T) {
	h, _ := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	mem := memstore.New(memstore.Operator{Email: "ops@example.com", Hash: h})
	mem.Seed(fleet)
	hub, _ := changefeed.NewHub(1)
	s := NewSession("s3", Deps{Store: mem, Emitter: &msg.Recorder{}, Hub: hub}, Options{FocusZoom: 12, InitialZoom: 3, QueueSize: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.Equal(t, s.Start(ctx), nil)
	defer s.Close()
	// loop not running yet and its queue is full
	s.Post(func() {})

	published := make(chan struct{})
	go func() {
		for i := 1; i <= 5; i++ {
			lat := string(rune('0' + i))
			hub.Publish(ctx, store.Change{Key: "v1", Value: vehicle.Fields{Name: "A", EventDTUTC: "x", Lat: lat, Lon: "1", SpeedKmh: "0"}})
		}
		close(published)
	}()
	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a stalled session")
	}

	go s.Run(ctx)
	deadline := time.After(2 * time.Second)
	for {
		pos := make(chan geo.Position, 1)
		s.Post(func() {
			mk, _ := s.registry.Handle("v1")
			pos <- mk.Position()
		})
		select {
		case p := <-pos:
			if p == (geo.Position{Lat: 5, Lon: 1}) {
				return
			}
		case <-deadline:
			t.Fatal("pending changes were not applied")
		}
		select {
		case <-deadline:
			t.Fatal("pending changes were not applied")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
