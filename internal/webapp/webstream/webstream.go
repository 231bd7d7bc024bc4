package webstream

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/phuslu/log"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"nuha.dev/fleetmap/internal/auth"
	"nuha.dev/fleetmap/internal/dashboard"
	"nuha.dev/fleetmap/internal/store"
	"nuha.dev/fleetmap/internal/ui/msg"
	"nuha.dev/fleetmap/internal/util"
)

type WebstreamServer struct {
	server *http.Server
	log    log.Logger
	config WebStreamConfig
	st     store.Store
	hub    dashboard.Hub
	iss    *auth.Issuer
	vld    *validator.Validate

	lock    sync.Mutex
	clients map[string]*WebstreamClient
}

type ClientStatus struct {
	SessionID  string    `json:"session_id"`
	Operator   string    `json:"operator"`
	RemoteAddr string    `json:"remote_addr"`
	Connected  time.Time `json:"connected"`
	Sent       uint64    `json:"sent"`
}

type WebStreamConfig struct {
	ListenAddr string
	Session    dashboard.Options
	// OutboundBuffer is the number of page messages queued per connection.
	OutboundBuffer int
}

func NewWebstream(st store.Store, hub dashboard.Hub, iss *auth.Issuer, config WebStreamConfig) *WebstreamServer {
	if config.OutboundBuffer <= 0 {
		config.OutboundBuffer = 256
	}
	o := &WebstreamServer{config: config, st: st, hub: hub, iss: iss, clients: make(map[string]*WebstreamClient)}
	o.server = &http.Server{
		Addr:              config.ListenAddr,
		Handler:           http.HandlerFunc(o.serve_http),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	o.log = log.DefaultLogger
	o.log.Context = log.NewContext(nil).Str("module", "websocket").Value()
	o.vld = validator.New()
	return o
}

func (ws *WebstreamServer) Handler() http.Handler {
	return ws.server.Handler
}

func (ws *WebstreamServer) Run() {
	ws.log.Info().Msgf("starting ws-server on : %s", ws.server.Addr)
	err := ws.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		ws.log.Error().Err(err).Msg("")
		panic(err)
	}
}

func (ws *WebstreamServer) Shutdown() error {
	return ws.server.Close()
}

// GetClientsStatus lists the open dashboard connections ordered by connect
// time.
func (ws *WebstreamServer) GetClientsStatus() []ClientStatus {
	ws.lock.Lock()
	out := make([]ClientStatus, 0, len(ws.clients))
	for _, wc := range ws.clients {
		out = append(out, ClientStatus{
			SessionID:  wc.sid,
			Operator:   wc.operator,
			RemoteAddr: wc.raddr,
			Connected:  wc.connected,
			Sent:       atomic.LoadUint64(&wc.sent),
		})
	}
	ws.lock.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Connected.Before(out[j].Connected) })
	return out
}

func (ws *WebstreamServer) serve_http(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		ws.log.Error().Err(err).Msg("Error while upgrading websocket")
		return
	}
	//read login info
	readCtx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()
	_, token, err := c.Read(readCtx)
	if err != nil {
		ws.log.Error().Err(err).Msg("Error while reading auth token")
		c.Close(websocket.StatusPolicyViolation, "no token")
		return
	}
	ws.log.Info().Msg("websocket token received")

	email, err := ws.iss.Verify(string(token))
	if err != nil {
		ws.log.Info().Err(err).Msg("invalid websocket token")
		failure := msg.Outbound{Type: msg.TAuthFailure, Code: "auth/invalid-token", Message: err.Error(), Markup: msg.AuthFailureMarkup}
		_ = wsjson.Write(r.Context(), c, failure)
		c.Close(websocket.StatusPolicyViolation, "invalid token")
		return
	}

	ctx, stop := context.WithCancel(r.Context())
	defer stop()
	wc := &WebstreamClient{c: c, out: make(chan msg.Outbound, ws.config.OutboundBuffer), ctx: ctx}
	wc.sid = util.GenUUID()
	wc.operator = email
	wc.raddr = r.RemoteAddr
	wc.connected = time.Now()
	wc.log = ws.log
	wc.log.Context = log.NewContext(nil).Str("module", "websocket").Str("operator", email).Value()
	sess := dashboard.NewSession(wc.sid, dashboard.Deps{Store: ws.st, Emitter: wc, Hub: ws.hub}, ws.config.Session)
	defer sess.Close()
	ws.lock.Lock()
	ws.clients[wc.sid] = wc
	ws.lock.Unlock()
	defer func() {
		ws.lock.Lock()
		delete(ws.clients, wc.sid)
		ws.lock.Unlock()
	}()

	wc.wg.Add(1)
	go wc.writeLoop(stop)
	err = sess.Start(ctx)
	if err != nil {
		ws.log.Error().Err(err).Msg("Error while starting dashboard")
		stop()
		wc.wg.Wait()
		c.Close(websocket.StatusInternalError, "map not loaded")
		return
	}
	wc.wg.Add(1)
	go wc.readloop(sess, ws.vld, stop)
	err = sess.Run(ctx)
	if err != nil && ctx.Err() == nil {
		ws.log.Error().Err(err).Msg("dashboard loop ended")
	}
	stop()
	wc.wg.Wait()
	c.Close(websocket.StatusNormalClosure, "")
}

// WebstreamClient is the page end of one dashboard session.
type WebstreamClient struct {
	wg        sync.WaitGroup
	c         *websocket.Conn
	out       chan msg.Outbound
	ctx       context.Context
	log       log.Logger
	sid       string
	operator  string
	raddr     string
	connected time.Time
	sent      uint64
}

// Emit queues m for the page. It blocks while the queue is full and gives up
// once the connection is gone.
func (wc *WebstreamClient) Emit(m msg.Outbound) {
	select {
	case wc.out <- m:
	case <-wc.ctx.Done():
	}
}

func (wc *WebstreamClient) writeLoop(stop context.CancelFunc) {
	defer wc.wg.Done()
	for {
		select {
		case <-wc.ctx.Done():
			return
		case m := <-wc.out:
			writeCtx, cancel := context.WithTimeout(wc.ctx, 10*time.Second)
			err := wsjson.Write(writeCtx, wc.c, m)
			cancel()
			if err != nil {
				wc.log.Error().Err(err).Msg("Error while writing to connection")
				stop()
				return
			}
			atomic.AddUint64(&wc.sent, 1)
		}
	}
}

func (wc *WebstreamClient) readloop(sess *dashboard.Session, vld *validator.Validate, stop context.CancelFunc) {
	defer wc.wg.Done()
	for {
		in := msg.Inbound{}
		err := wsjson.Read(wc.ctx, wc.c, &in)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
				wc.log.Debug().Msg("websocket closed by page")
			} else if wc.ctx.Err() == nil {
				wc.log.Error().Err(err).Msg("Error while reading from connection")
			}
			stop()
			return
		}
		err = vld.Struct(in)
		if err != nil {
			wc.log.Warn().Err(err).Str("type", in.Type).Msg("invalid inbound message")
			continue
		}
		wc.log.Trace().Str("type", in.Type).Str("id", in.ID).Msg("inbound message")
		sess.Post(func() { sess.HandleInbound(in) })
	}
}
