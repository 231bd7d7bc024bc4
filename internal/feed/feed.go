// Package feed imports vehicle positions from a GTFS-realtime
// VehiclePositions endpoint into the store.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/phuslu/log"
	"google.golang.org/protobuf/proto"

	"nuha.dev/fleetmap/internal/store"
	"nuha.dev/fleetmap/internal/vehicle"
)

type Position struct {
	ID       string
	Lat      float64
	Lon      float64
	SpeedKmh float64
	At       time.Time
}

type GtfsSource struct {
	url        string
	httpClient *http.Client
}

func NewGtfsSource(url string, timeout time.Duration) *GtfsSource {
	return &GtfsSource{url: url, httpClient: &http.Client{Timeout: timeout}}
}

func (s *GtfsSource) Fetch(ctx context.Context) ([]Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gtfs-rt http status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var feed gtfs.FeedMessage
	if err := proto.Unmarshal(body, &feed); err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(feed.Entity))
	for _, ent := range feed.Entity {
		if ent == nil || ent.Vehicle == nil {
			continue
		}
		vp := ent.Vehicle
		if vp.Vehicle == nil || vp.Position == nil {
			continue
		}
		id := vp.Vehicle.GetId()
		if id == "" || vp.Position.Latitude == nil || vp.Position.Longitude == nil {
			continue
		}
		p := Position{
			ID:  id,
			Lat: float64(vp.Position.GetLatitude()),
			Lon: float64(vp.Position.GetLongitude()),
			// m/s on the wire
			SpeedKmh: float64(vp.Position.GetSpeed()) * 3.6,
		}
		if vp.Timestamp != nil {
			p.At = time.Unix(int64(vp.GetTimestamp()), 0).UTC()
		}
		out = append(out, p)
	}
	return out, nil
}

// Pusher writes feed positions over vehicles already in the store. Ids the
// store does not know are skipped, so every write is a change to an existing
// record.
type Pusher struct {
	st  store.Store
	now func() time.Time
	log log.Logger
}

func NewPusher(st store.Store) *Pusher {
	p := &Pusher{st: st, now: time.Now}
	p.log = log.DefaultLogger
	p.log.Context = log.NewContext(nil).Str("module", "feedpush").Value()
	return p
}

func (p *Pusher) Push(ctx context.Context, positions []Position) (int, error) {
	all, err := p.st.ReadAll(ctx)
	if err != nil {
		return 0, err
	}
	written := 0
	for _, pos := range positions {
		cur, ok := all[pos.ID]
		if !ok {
			p.log.Trace().Str("vehicle_id", pos.ID).Msg("skip unknown vehicle")
			continue
		}
		at := pos.At
		if at.IsZero() {
			at = p.now().UTC()
		}
		f := vehicle.Fields{
			Name:       cur.Name,
			EventDTUTC: at.Format(time.RFC3339),
			Lat:        strconv.FormatFloat(pos.Lat, 'f', -1, 64),
			Lon:        strconv.FormatFloat(pos.Lon, 'f', -1, 64),
			SpeedKmh:   strconv.FormatFloat(pos.SpeedKmh, 'f', 1, 64),
		}
		err = p.st.Set(ctx, pos.ID, f)
		if err != nil {
			return written, fmt.Errorf("write %s: %w", pos.ID, err)
		}
		written++
	}
	return written, nil
}

// Poll fetches and pushes every interval until ctx ends. Fetch and write
// errors are logged and the next tick tries again.
func (p *Pusher) Poll(ctx context.Context, src *GtfsSource, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		positions, err := src.Fetch(ctx)
		if err != nil {
			p.log.Error().Err(err).Msg("error while fetching feed")
		} else {
			n, err := p.Push(ctx, positions)
			if err != nil {
				p.log.Error().Err(err).Msg("error while pushing positions")
			}
			p.log.Info().Int("received", len(positions)).Int("written", n).Msg("feed pushed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
