package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"nuha.dev/fleetmap/internal/config"
	"nuha.dev/fleetmap/internal/store/impl/factory"
	"nuha.dev/fleetmap/internal/ui/msg"
	"nuha.dev/fleetmap/internal/vehicle"
	"nuha.dev/fleetmap/internal/webapp"
)

const FleetCliVersion = "0.1.0"

var logger zerolog.Logger

func main() {
	usage := `Fleet map operator tool.

Usage:
    fleetcli login [--api=<api_url>] --email=<email>
    fleetcli watch [--api=<api_url>] [--ws=<ws_url>] --email=<email> [--select=<id>] [--count=<n>]
    fleetcli set [--config=<dir>] <id> --name=<name> --lat=<lat> --lon=<lon> --speed=<kmh> [--event=<event_dt_utc>]

Options:
    -h --help               Show this screen.
    --version               Show version.
    --api=<api_url>         Api server [default: http://localhost:3333].
    --ws=<ws_url>           Websocket server [default: ws://localhost:3334].
    --email=<email>         Operator email.
    --select=<id>           Vehicle to select once the map is loaded.
    --count=<n>             Print this many messages then exit [default: 0].
    --config=<dir>          Directory holding fleetmap.yaml [default: .].
    --event=<event_dt_utc>  Event timestamp, now when omitted.`

	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	opts, err := docopt.ParseArgs(usage, os.Args[1:], FleetCliVersion)
	if err != nil {
		panic(err)
	}

	if login_, _ := opts.Bool("login"); login_ {
		token, err := login(opts)
		if err != nil {
			logger.Fatal().Err(err).Msg("login failed")
		}
		fmt.Println(token)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		err = watch(opts)
		if err != nil {
			logger.Fatal().Err(err).Msg("watch failed")
		}
	} else if set_, _ := opts.Bool("set"); set_ {
		err = set(opts)
		if err != nil {
			logger.Fatal().Err(err).Msg("set failed")
		}
	}
}

func login(opts docopt.Opts) (string, error) {
	api, _ := opts.String("--api")
	email, _ := opts.String("--email")
	fmt.Fprint(os.Stderr, "Password: ")
	pwd, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	body, _ := json.Marshal(webapp.LoginRequest{Email: email, Password: string(pwd)})
	resp, err := http.Post(api+"/func/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login: %s", resp.Status)
	}
	res := webapp.LoginResponse{}
	err = json.NewDecoder(resp.Body).Decode(&res)
	if err != nil {
		return "", err
	}
	if res.Status != 0 {
		return "", fmt.Errorf("%s: %s", res.Code, res.Message)
	}
	ev := logger.Info()
	if res.ValidUntil != nil {
		ev = ev.Time("valid_until", *res.ValidUntil)
	}
	ev.Msg("signed in")
	return res.WsToken, nil
}

func watch(opts docopt.Opts) error {
	token, err := login(opts)
	if err != nil {
		return err
	}
	ws_url, _ := opts.String("--ws")
	count, _ := opts.Int("--count")
	c, _, err := websocket.DefaultDialer.Dial(ws_url, nil)
	if err != nil {
		return err
	}
	defer c.Close()
	err = c.WriteMessage(websocket.TextMessage, []byte(token))
	if err != nil {
		return err
	}
	selected := false
	for n := 1; ; n++ {
		m := msg.Outbound{}
		err = c.ReadJSON(&m)
		if err != nil {
			return err
		}
		printMessage(m)
		if m.Type == msg.TAuthFailure {
			return fmt.Errorf("%s: %s", m.Code, m.Message)
		}
		if id, err := opts.String("--select"); err == nil && id != "" && !selected && m.Type == msg.TSelector {
			err = c.WriteJSON(msg.Inbound{Type: msg.TSelect, ID: id})
			if err != nil {
				return err
			}
			selected = true
		}
		if count > 0 && n >= count {
			return c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		}
	}
}

func printMessage(m msg.Outbound) {
	ev := logger.Info().Str("type", m.Type)
	if m.Marker != "" {
		ev = ev.Str("marker", m.Marker)
	}
	if m.Position != nil {
		ev = ev.Float64("lat", m.Position.Lat).Float64("lon", m.Position.Lon)
	}
	if m.Bounds != nil {
		ev = ev.Interface("bounds", m.Bounds)
	}
	if m.Zoom != nil {
		ev = ev.Int("zoom", *m.Zoom)
	}
	if m.Fields != nil {
		ev = ev.Interface("fields", m.Fields)
	}
	if len(m.Options) > 0 {
		ev = ev.Int("options", len(m.Options))
	}
	ev.Msg("")
}

// set writes straight to the configured store, the way another client of
// the collection would.
func set(opts docopt.Opts) error {
	dir, _ := opts.String("--config")
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	if cfg.DbDriver == "memory" {
		return fmt.Errorf("set needs a shared store, db_driver is %s", cfg.DbDriver)
	}
	if !factory.CrossProcess(cfg.DbDriver) {
		logger.Warn().Str("db_driver", cfg.DbDriver).Msg("running dashboards will not see this write until reload")
	}
	id, _ := opts.String("<id>")
	f := vehicle.Fields{}
	f.Name, _ = opts.String("--name")
	f.Lat, _ = opts.String("--lat")
	f.Lon, _ = opts.String("--lon")
	f.SpeedKmh, _ = opts.String("--speed")
	f.EventDTUTC, err = opts.String("--event")
	if err != nil || f.EventDTUTC == "" {
		f.EventDTUTC = time.Now().UTC().Format(time.RFC3339)
	}
	_, err = f.Record(id)
	if err != nil {
		return err
	}
	ctx := context.Background()
	st, err := factory.Open(ctx, cfg)
	if err != nil {
		return err
	}
	err = st.Set(ctx, id, f)
	if err != nil {
		return err
	}
	logger.Info().Str("vid", id).Msg("vehicle written")
	return nil
}
