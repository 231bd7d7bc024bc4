// Package marker keeps the on-map marker of every vehicle loaded at map
// init, keyed by vehicle id, together with the bounds accumulator.
package marker

import (
	"errors"

	"nuha.dev/fleetmap/internal/geo"
	"nuha.dev/fleetmap/internal/ui/mapview"
	"nuha.dev/fleetmap/internal/vehicle"
)

var ErrNotRegistered = errors.New("no marker registered for vehicle")

type Registry struct {
	w      mapview.Widget
	list   map[string]mapview.Marker
	bounds geo.Bounds
}

func NewRegistry(w mapview.Widget) *Registry {
	return &Registry{w: w, list: make(map[string]mapview.Marker)}
}

// CreateAll places one marker per record and returns the bounds covering
// all of them. Membership is fixed from here on.
func (r *Registry) CreateAll(records []vehicle.Record) geo.Bounds {
	for _, rec := range records {
		p := rec.Position()
		r.list[rec.ID] = r.w.NewMarker(p)
		r.bounds.Extend(p)
	}
	return r.bounds
}

func (r *Registry) MoveTo(id string, p geo.Position) error {
	m, ok := r.list[id]
	if !ok {
		return ErrNotRegistered
	}
	m.SetPosition(p)
	return nil
}

func (r *Registry) Extend(p geo.Position) {
	r.bounds.Extend(p)
}

func (r *Registry) Bounds() geo.Bounds {
	return r.bounds
}

func (r *Registry) Handle(id string) (mapview.Marker, bool) {
	m, ok := r.list[id]
	return m, ok
}

func (r *Registry) Len() int {
	return len(r.list)
}
