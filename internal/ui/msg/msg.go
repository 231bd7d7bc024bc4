// Package msg defines the websocket messages exchanged between a dashboard
// session and the browser page that renders it.
package msg

import (
	"sync"

	"nuha.dev/fleetmap/internal/geo"
	"nuha.dev/fleetmap/internal/vehicle"
)

const (
	TMapInit      string = "map_init"
	TMarkerCreate string = "marker_create"
	TMarkerMove   string = "marker_move"
	TFitBounds    string = "fit_bounds"
	TCenter       string = "center"
	TZoom         string = "zoom"
	TForm         string = "form"
	TSelector     string = "selector"
	TAuthFailure  string = "auth_failure"
)

const (
	TSelect string = "select"
	TSubmit string = "submit"
	TResize string = "resize"
)

// AuthFailureMarkup replaces the map container when sign-in fails.
const AuthFailureMarkup = `<h1>Snap!</h1><span>Map not loaded due to Auth failure</span>`

type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Outbound struct {
	Type     string          `json:"type"`
	Marker   string          `json:"marker,omitempty"`
	Position *geo.Position   `json:"position,omitempty"`
	Bounds   *geo.Bounds     `json:"bounds,omitempty"`
	Zoom     *int            `json:"zoom,omitempty"`
	Fields   *vehicle.Fields `json:"fields,omitempty"`
	Options  []Option        `json:"options,omitempty"`
	Code     string          `json:"code,omitempty"`
	Message  string          `json:"message,omitempty"`
	Markup   string          `json:"markup,omitempty"`
}

type Inbound struct {
	Type   string          `json:"type" validate:"required,oneof=select submit resize"`
	ID     string          `json:"id,omitempty"`
	Fields *vehicle.Fields `json:"fields,omitempty" validate:"required_if=Type submit"`
}

type Emitter interface {
	Emit(m Outbound)
}

// Recorder keeps every emitted message in order.
type Recorder struct {
	mu   sync.Mutex
	msgs []Outbound
}

func (r *Recorder) Emit(m Outbound) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *Recorder) Messages() []Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Outbound, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func (r *Recorder) OfType(t string) []Outbound {
	out := make([]Outbound, 0)
	for _, m := range r.Messages() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func (r *Recorder) Last(t string) (Outbound, bool) {
	l := r.OfType(t)
	if len(l) == 0 {
		return Outbound{}, false
	}
	return l[len(l)-1], true
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.msgs = r.msgs[:0]
	r.mu.Unlock()
}
