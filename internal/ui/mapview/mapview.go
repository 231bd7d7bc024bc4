// Package mapview is the server side of the browser map. Every call updates
// the view state kept here and is forwarded to the page as a msg.Outbound.
package mapview

import (
	"github.com/phuslu/log"
	hashids "github.com/speps/go-hashids/v2"

	"nuha.dev/fleetmap/internal/geo"
	"nuha.dev/fleetmap/internal/ui/msg"
)

type Marker interface {
	Handle() string
	Position() geo.Position
	SetPosition(p geo.Position)
}

type Widget interface {
	NewMarker(p geo.Position) Marker
	FitBounds(b geo.Bounds)
	SetCenter(p geo.Position)
	SetZoom(z int)
	OnResize(fn func())
}

type Config struct {
	Salt          string
	InitialCenter geo.Position
	InitialZoom   int
}

type Remote struct {
	em       msg.Emitter
	log      log.Logger
	ids      *hashids.HashID
	seq      int
	center   geo.Position
	zoom     int
	fitted   geo.Bounds
	markers  map[string]*remoteMarker
	onResize []func()
}

type remoteMarker struct {
	w      *Remote
	handle string
	pos    geo.Position
}

func (m *remoteMarker) Handle() string {
	return m.handle
}

func (m *remoteMarker) Position() geo.Position {
	return m.pos
}

func (m *remoteMarker) SetPosition(p geo.Position) {
	m.pos = p
	m.w.em.Emit(msg.Outbound{Type: msg.TMarkerMove, Marker: m.handle, Position: &p})
}

func New(em msg.Emitter, config Config) (*Remote, error) {
	hd := hashids.NewData()
	hd.Salt = config.Salt
	hd.MinLength = 6
	h, err := hashids.NewWithData(hd)
	if err != nil {
		return nil, err
	}
	r := &Remote{em: em, ids: h, markers: make(map[string]*remoteMarker)}
	r.log = log.DefaultLogger
	r.log.Context = log.NewContext(nil).Str("module", "mapview").Value()
	r.center = config.InitialCenter
	r.zoom = config.InitialZoom
	c, z := r.center, r.zoom
	em.Emit(msg.Outbound{Type: msg.TMapInit, Position: &c, Zoom: &z})
	return r, nil
}

func (r *Remote) NewMarker(p geo.Position) Marker {
	r.seq++
	handle, err := r.ids.Encode([]int{r.seq})
	if err != nil {
		// hashids only fails on negative input
		panic(err)
	}
	m := &remoteMarker{w: r, handle: handle, pos: p}
	r.markers[handle] = m
	r.em.Emit(msg.Outbound{Type: msg.TMarkerCreate, Marker: handle, Position: &p})
	return m
}

// FitBounds ignores an empty box and leaves the viewport where it is.
func (r *Remote) FitBounds(b geo.Bounds) {
	if b.Empty() {
		r.log.Debug().Msg("skip fit on empty bounds")
		return
	}
	r.fitted = b
	r.center = b.Center()
	r.em.Emit(msg.Outbound{Type: msg.TFitBounds, Bounds: &b})
}

func (r *Remote) SetCenter(p geo.Position) {
	r.center = p
	r.em.Emit(msg.Outbound{Type: msg.TCenter, Position: &p})
}

func (r *Remote) SetZoom(z int) {
	r.zoom = z
	r.em.Emit(msg.Outbound{Type: msg.TZoom, Zoom: &z})
}

func (r *Remote) OnResize(fn func()) {
	r.onResize = append(r.onResize, fn)
}

// Resize runs the listeners registered with OnResize.
func (r *Remote) Resize() {
	for _, fn := range r.onResize {
		fn()
	}
}

func (r *Remote) Center() geo.Position {
	return r.center
}

func (r *Remote) Zoom() int {
	return r.zoom
}

func (r *Remote) Fitted() geo.Bounds {
	return r.fitted
}

func (r *Remote) MarkerCount() int {
	return len(r.markers)
}
