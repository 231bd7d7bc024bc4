// Package dashboard runs one operator's live map page. A Session owns the
// vehicle mirror, the marker registry and the page widgets, and mutates them
// only from its own event loop.
package dashboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/phuslu/log"

	"nuha.dev/fleetmap/internal/changesync"
	"nuha.dev/fleetmap/internal/geo"
	"nuha.dev/fleetmap/internal/marker"
	"nuha.dev/fleetmap/internal/mirror"
	"nuha.dev/fleetmap/internal/selection"
	"nuha.dev/fleetmap/internal/store"
	"nuha.dev/fleetmap/internal/ui/form"
	"nuha.dev/fleetmap/internal/ui/mapview"
	"nuha.dev/fleetmap/internal/ui/msg"
	"nuha.dev/fleetmap/internal/vehicle"
)

// Hub is where a session listens for child-changed events.
type Hub interface {
	Register(key string, fn func(store.Change))
	Deregister(key string)
}

type Deps struct {
	Store   store.Store
	Emitter msg.Emitter
	Hub     Hub
}

type Options struct {
	FocusZoom   int
	InitialZoom int
	MarkerSalt  string
	QueueSize   int
}

type Session struct {
	id   string
	deps Deps
	opts Options
	log  log.Logger
	ctx  context.Context

	mirror    *mirror.Mirror
	registry  *marker.Registry
	w         *mapview.Remote
	form      *form.Form
	selector  *form.Selector
	selection *selection.Controller
	sync      *changesync.Synchronizer

	queue     chan func()
	done      chan struct{}
	closeOnce sync.Once

	// hub changes wait here until the loop drains them, so a page that
	// stops reading never blocks the hub.
	pendMu  sync.Mutex
	pending []store.Change
	wake    chan struct{}

	// post queues fn on the event loop, spawn runs fn off it, kick asks
	// the loop to drain pending changes.
	post  func(fn func())
	spawn func(fn func())
	kick  func()
}

func NewSession(id string, deps Deps, opts Options) *Session {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	s := &Session{
		id:     id,
		deps:   deps,
		opts:   opts,
		mirror: mirror.New(),
		queue:  make(chan func(), opts.QueueSize),
		done:   make(chan struct{}),
		wake:   make(chan struct{}, 1),
	}
	s.log = log.DefaultLogger
	s.log.Context = log.NewContext(nil).Str("module", "dashboard").Str("session", id).Value()
	s.post = s.Post
	s.spawn = func(fn func()) { go fn() }
	s.kick = func() {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	return s
}

func (s *Session) ID() string {
	return s.id
}

// Start loads the whole collection and builds the map page: markers,
// full-fleet viewport, selector and an empty form. It then attaches the
// session to the change hub.
func (s *Session) Start(ctx context.Context) error {
	s.ctx = ctx
	all, err := s.deps.Store.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("bulk load: %w", err)
	}
	recs := make(map[string]vehicle.Record, len(all))
	for id, f := range all {
		r, err := f.Record(id)
		if err != nil {
			s.log.Warn().Err(err).Str("vehicle_id", id).Msg("skip vehicle with bad record")
			continue
		}
		recs[id] = r
	}
	s.mirror.Load(recs)

	s.w, err = mapview.New(s.deps.Emitter, mapview.Config{
		Salt:          s.opts.MarkerSalt,
		InitialCenter: geo.Position{Lat: 0, Lon: 0},
		InitialZoom:   s.opts.InitialZoom,
	})
	if err != nil {
		return fmt.Errorf("map init: %w", err)
	}
	s.form = form.New(s.deps.Emitter)
	s.form.Reset()
	s.registry = marker.NewRegistry(s.w)
	s.w.FitBounds(s.registry.CreateAll(s.mirror.Records()))
	s.w.OnResize(func() {
		s.w.FitBounds(s.registry.Bounds())
	})

	s.selector = form.NewSelector(s.deps.Emitter)
	opts := make([]msg.Option, 0, s.mirror.Len())
	for _, r := range s.mirror.Records() {
		opts = append(opts, msg.Option{Label: r.Name, Value: r.ID})
	}
	s.selector.Populate(opts)

	s.selection = selection.New(s.mirror, s.registry, s.form, s.w, s.opts.FocusZoom)
	s.selection.Reset()
	s.sync = changesync.New(s.mirror, s.registry, s.selection, s.form, s.w)
	s.deps.Hub.Register(s.id, s.enqueue)
	s.log.Info().Int("vehicles", s.mirror.Len()).Msg("map initialized")
	return nil
}

// Run executes queued work until ctx ends or the session is closed.
func (s *Session) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case fn := <-s.queue:
			fn()
		case <-s.wake:
			s.drain()
		}
	}
}

func (s *Session) enqueue(c store.Change) {
	s.pendMu.Lock()
	s.pending = append(s.pending, c)
	s.pendMu.Unlock()
	s.kick()
}

// drain applies every pending change in arrival order.
func (s *Session) drain() {
	s.pendMu.Lock()
	list := s.pending
	s.pending = nil
	s.pendMu.Unlock()
	for _, c := range list {
		s.sync.Apply(c)
	}
}

// Post queues fn on the event loop. Work posted after Close is dropped.
func (s *Session) Post(fn func()) {
	select {
	case s.queue <- fn:
	case <-s.done:
	}
}

func (s *Session) HandleInbound(m msg.Inbound) {
	switch m.Type {
	case msg.TSelect:
		s.selection.Select(m.ID)
	case msg.TSubmit:
		if m.Fields == nil {
			s.log.Warn().Msg("submit without fields")
			return
		}
		s.Submit(*m.Fields)
	case msg.TResize:
		s.w.Resize()
	default:
		s.log.Warn().Str("type", m.Type).Msg("unknown inbound message")
	}
}

// Submit writes the five form values to the active vehicle. The local
// apply happens only once the store confirms the write.
func (s *Session) Submit(f vehicle.Fields) {
	id, ok := s.selection.Active()
	if !ok {
		s.log.Debug().Msg("no data yet")
		return
	}
	s.form.Take(f)
	r, err := f.Record(id)
	if err != nil {
		s.log.Warn().Err(err).Str("vehicle_id", id).Msg("submit rejected")
		return
	}
	ctx := context.WithoutCancel(s.ctx)
	s.spawn(func() {
		err := s.deps.Store.Set(ctx, id, f)
		s.post(func() { s.finishWrite(id, r, err) })
	})
}

func (s *Session) finishWrite(id string, r vehicle.Record, err error) {
	if err != nil {
		s.log.Error().Err(err).Str("vehicle_id", id).Msg("synchronization failed")
		return
	}
	if !s.selection.IsActive(id) {
		s.log.Warn().Str("vehicle_id", id).Msg("selection changed during write, local apply dropped")
		return
	}
	s.mirror.Apply(id, vehicle.FullPatch(r))
	p := r.Position()
	err = s.registry.MoveTo(id, p)
	if err != nil {
		s.log.Debug().Err(err).Str("vehicle_id", id).Msg("written vehicle has no marker")
	}
	s.registry.Extend(p)
	s.w.SetCenter(p)
	s.log.Info().Str("vehicle_id", id).Msg("synchronization succeeded")
}

// Close detaches from the hub and stops the event loop.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.sync != nil {
			s.deps.Hub.Deregister(s.id)
		}
		close(s.done)
		s.log.Info().Msg("session closed")
	})
}
