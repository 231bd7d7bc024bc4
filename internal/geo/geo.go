package geo

type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Bounds is a lat/lon box grown by Extend. The zero value is empty and
// contains nothing. Longitude is treated linearly, no antimeridian wrap.
type Bounds struct {
	SouthWest Position `json:"south_west"`
	NorthEast Position `json:"north_east"`
	Valid     bool     `json:"valid"`
}

func (b *Bounds) Extend(p Position) {
	if !b.Valid {
		b.SouthWest = p
		b.NorthEast = p
		b.Valid = true
		return
	}
	if p.Lat < b.SouthWest.Lat {
		b.SouthWest.Lat = p.Lat
	}
	if p.Lon < b.SouthWest.Lon {
		b.SouthWest.Lon = p.Lon
	}
	if p.Lat > b.NorthEast.Lat {
		b.NorthEast.Lat = p.Lat
	}
	if p.Lon > b.NorthEast.Lon {
		b.NorthEast.Lon = p.Lon
	}
}

func (b Bounds) Contains(p Position) bool {
	if !b.Valid {
		return false
	}
	return p.Lat >= b.SouthWest.Lat && p.Lat <= b.NorthEast.Lat &&
		p.Lon >= b.SouthWest.Lon && p.Lon <= b.NorthEast.Lon
}

func (b Bounds) Empty() bool {
	return !b.Valid
}

func (b Bounds) Center() Position {
	return Position{
		Lat: (b.SouthWest.Lat + b.NorthEast.Lat) / 2,
		Lon: (b.SouthWest.Lon + b.NorthEast.Lon) / 2,
	}
}
