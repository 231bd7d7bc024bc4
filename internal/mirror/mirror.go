// Package mirror holds the in-memory copy of every vehicle record that a
// dashboard session renders from. It is owned by one session and is only
// touched from that session's event loop, so it carries no locking.
package mirror

import (
	"sort"

	"nuha.dev/fleetmap/internal/vehicle"
)

type Mirror struct {
	list map[string]vehicle.Record
}

func New() *Mirror {
	return &Mirror{list: make(map[string]vehicle.Record)}
}

// Load replaces the mirror contents wholesale.
func (m *Mirror) Load(all map[string]vehicle.Record) {
	m.list = make(map[string]vehicle.Record, len(all))
	for id, r := range all {
		r.ID = id
		m.list[id] = r
	}
}

func (m *Mirror) Get(id string) (vehicle.Record, bool) {
	r, ok := m.list[id]
	return r, ok
}

// Apply overwrites the supplied fields of an existing record. Unknown ids
// are a no-op and report false.
func (m *Mirror) Apply(id string, p vehicle.Patch) bool {
	r, ok := m.list[id]
	if !ok {
		return false
	}
	p.ApplyTo(&r)
	m.list[id] = r
	return true
}

func (m *Mirror) Len() int {
	return len(m.list)
}

func (m *Mirror) IDs() []string {
	ids := make([]string, 0, len(m.list))
	for id := range m.list {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Records returns every record ordered by id.
func (m *Mirror) Records() []vehicle.Record {
	ids := m.IDs()
	out := make([]vehicle.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.list[id])
	}
	return out
}
