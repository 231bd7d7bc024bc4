package vehicle

import (
	"fmt"
	"strconv"
	"strings"

	"nuha.dev/fleetmap/internal/geo"
)

// Record is the mirrored state of one vehicle.
type Record struct {
	ID         string
	Name       string
	EventDTUTC string
	Lat        float64
	Lon        float64
	SpeedKmh   float64
}

func (r Record) Position() geo.Position {
	return geo.Position{Lat: r.Lat, Lon: r.Lon}
}

// Fields is a record as the remote store and the form carry it: five
// strings, copied verbatim.
type Fields struct {
	Name       string `json:"Name"`
	EventDTUTC string `json:"EventDTUTC"`
	Lat        string `json:"Lat"`
	Lon        string `json:"Lon"`
	SpeedKmh   string `json:"SpeedKmh"`
}

// Patch overwrites the non-nil fields of a record.
type Patch struct {
	Name       *string
	EventDTUTC *string
	Lat        *float64
	Lon        *float64
	SpeedKmh   *float64
}

type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: invalid number %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func parseNumber(field, value string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, &FieldError{Field: field, Value: value, Err: err}
	}
	return v, nil
}

// Record converts the string form into a mirror record.
func (f Fields) Record(id string) (Record, error) {
	lat, err := parseNumber("Lat", f.Lat)
	if err != nil {
		return Record{}, err
	}
	lon, err := parseNumber("Lon", f.Lon)
	if err != nil {
		return Record{}, err
	}
	speed, err := parseNumber("SpeedKmh", f.SpeedKmh)
	if err != nil {
		return Record{}, err
	}
	return Record{ID: id, Name: f.Name, EventDTUTC: f.EventDTUTC, Lat: lat, Lon: lon, SpeedKmh: speed}, nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func FieldsOf(r Record) Fields {
	return Fields{
		Name:       r.Name,
		EventDTUTC: r.EventDTUTC,
		Lat:        formatNumber(r.Lat),
		Lon:        formatNumber(r.Lon),
		SpeedKmh:   formatNumber(r.SpeedKmh),
	}
}

// FullPatch overwrites every field of the target with r.
func FullPatch(r Record) Patch {
	return Patch{Name: &r.Name, EventDTUTC: &r.EventDTUTC, Lat: &r.Lat, Lon: &r.Lon, SpeedKmh: &r.SpeedKmh}
}

func (p Patch) ApplyTo(r *Record) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.EventDTUTC != nil {
		r.EventDTUTC = *p.EventDTUTC
	}
	if p.Lat != nil {
		r.Lat = *p.Lat
	}
	if p.Lon != nil {
		r.Lon = *p.Lon
	}
	if p.SpeedKmh != nil {
		r.SpeedKmh = *p.SpeedKmh
	}
}
