// Package changesync applies child-changed events from the remote store to
// one dashboard session.
package changesync

import (
	"errors"

	"github.com/phuslu/log"

	"nuha.dev/fleetmap/internal/marker"
	"nuha.dev/fleetmap/internal/mirror"
	"nuha.dev/fleetmap/internal/selection"
	"nuha.dev/fleetmap/internal/store"
	"nuha.dev/fleetmap/internal/ui/form"
	"nuha.dev/fleetmap/internal/ui/mapview"
	"nuha.dev/fleetmap/internal/vehicle"
)

type Synchronizer struct {
	mirror    *mirror.Mirror
	registry  *marker.Registry
	selection *selection.Controller
	form      *form.Form
	w         mapview.Widget
	log       log.Logger
}

func New(m *mirror.Mirror, reg *marker.Registry, sel *selection.Controller, f *form.Form, w mapview.Widget) *Synchronizer {
	s := &Synchronizer{mirror: m, registry: reg, selection: sel, form: f, w: w}
	s.log = log.DefaultLogger
	s.log.Context = log.NewContext(nil).Str("module", "changesync").Value()
	return s
}

// Apply moves the changed vehicle's marker. Only the active vehicle gets its
// mirror entry, form and viewport refreshed; other mirror entries stay as
// they were at load or last local write.
func (s *Synchronizer) Apply(c store.Change) {
	r, err := c.Value.Record(c.Key)
	if err != nil {
		s.log.Warn().Err(err).Str("vehicle_id", c.Key).Msg("change dropped")
		return
	}
	p := r.Position()
	err = s.registry.MoveTo(c.Key, p)
	if errors.Is(err, marker.ErrNotRegistered) {
		s.log.Debug().Str("vehicle_id", c.Key).Msg("change for vehicle without marker")
	}
	if !s.selection.IsActive(c.Key) {
		return
	}
	s.mirror.Apply(c.Key, vehicle.FullPatch(r))
	s.form.Fill(c.Value)
	s.w.SetCenter(p)
	s.log.Debug().Str("vehicle_id", c.Key).Msg("active vehicle refreshed")
}
