package selection

import (
	"github.com/phuslu/log"

	"nuha.dev/fleetmap/internal/marker"
	"nuha.dev/fleetmap/internal/mirror"
	"nuha.dev/fleetmap/internal/ui/form"
	"nuha.dev/fleetmap/internal/ui/mapview"
	"nuha.dev/fleetmap/internal/vehicle"
)

// Controller tracks the vehicle being edited. States are none and
// active(id); the sentinel selector value returns to none.
type Controller struct {
	active    string
	mirror    *mirror.Mirror
	registry  *marker.Registry
	form      *form.Form
	w         mapview.Widget
	focusZoom int
	log       log.Logger
}

func New(m *mirror.Mirror, reg *marker.Registry, f *form.Form, w mapview.Widget, focusZoom int) *Controller {
	c := &Controller{mirror: m, registry: reg, form: f, w: w, focusZoom: focusZoom}
	c.log = log.DefaultLogger
	c.log.Context = log.NewContext(nil).Str("module", "selection").Value()
	return c
}

func (c *Controller) Select(id string) {
	if id == form.Sentinel || id == "" {
		c.active = ""
		c.w.FitBounds(c.registry.Bounds())
		c.form.Reset()
		c.log.Debug().Msg("selection cleared")
		return
	}
	r, ok := c.mirror.Get(id)
	if !ok {
		c.log.Warn().Str("vehicle_id", id).Msg("select unknown vehicle ignored")
		return
	}
	c.active = id
	c.form.Fill(vehicle.FieldsOf(r))
	c.w.SetCenter(r.Position())
	c.w.SetZoom(c.focusZoom)
	c.log.Debug().Str("vehicle_id", id).Msg("vehicle selected")
}

// Reset drops the active id without touching the viewport or the form.
func (c *Controller) Reset() {
	c.active = ""
}

func (c *Controller) Active() (string, bool) {
	return c.active, c.active != ""
}

func (c *Controller) IsActive(id string) bool {
	return c.active != "" && c.active == id
}
