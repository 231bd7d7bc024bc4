// Package form mirrors the page's edit form and vehicle selector.
package form

import (
	"nuha.dev/fleetmap/internal/ui/msg"
	"nuha.dev/fleetmap/internal/vehicle"
)

// Sentinel is the selector value meaning no vehicle is selected.
const Sentinel = "0"

const SentinelLabel = "Select vehicle"

type Form struct {
	em     msg.Emitter
	fields vehicle.Fields
}

func New(em msg.Emitter) *Form {
	return &Form{em: em}
}

func (f *Form) emit() {
	v := f.fields
	f.em.Emit(msg.Outbound{Type: msg.TForm, Fields: &v})
}

// Fill writes all five fields and pushes them to the page.
func (f *Form) Fill(v vehicle.Fields) {
	f.fields = v
	f.emit()
}

// Reset blanks all five fields.
func (f *Form) Reset() {
	f.Fill(vehicle.Fields{})
}

// Take records values typed by the operator. They already are on the
// page so nothing is sent back.
func (f *Form) Take(v vehicle.Fields) {
	f.fields = v
}

func (f *Form) Values() vehicle.Fields {
	return f.fields
}

type Selector struct {
	em msg.Emitter
}

func NewSelector(em msg.Emitter) *Selector {
	return &Selector{em: em}
}

// Populate sends the sentinel followed by one option per vehicle.
func (s *Selector) Populate(opts []msg.Option) {
	out := make([]msg.Option, 0, len(opts)+1)
	out = append(out, msg.Option{Label: SentinelLabel, Value: Sentinel})
	out = append(out, opts...)
	s.em.Emit(msg.Outbound{Type: msg.TSelector, Options: out})
}
