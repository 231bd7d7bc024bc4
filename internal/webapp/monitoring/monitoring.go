// Package monitoring serves the list of open dashboard connections. It is
// meant to listen on a local address only.
package monitoring

import (
	"net/http"
	"time"

	"github.com/phuslu/log"

	"nuha.dev/fleetmap/internal/util"
	"nuha.dev/fleetmap/internal/webapp/webstream"
)

type MonitoringServer struct {
	ws     *webstream.WebstreamServer
	server *http.Server
	log    log.Logger
}

type MonitoringConfig struct {
	ListenAddr string
}

type status struct {
	Clients []webstream.ClientStatus `json:"clients"`
	Count   int                      `json:"count"`
}

func NewMonApi(ws *webstream.WebstreamServer, config *MonitoringConfig) *MonitoringServer {
	m := &MonitoringServer{ws: ws}
	m.server = &http.Server{
		Addr:           config.ListenAddr,
		Handler:        http.HandlerFunc(m.serve_http),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	m.log = log.DefaultLogger
	m.log.Context = log.NewContext(nil).Str("module", "monitoring").Value()
	return m
}

func (m *MonitoringServer) Run() {
	m.log.Info().Msgf("starting monitoring-server on : %s", m.server.Addr)
	err := m.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(err)
	}
}

func (m *MonitoringServer) serve_http(w http.ResponseWriter, r *http.Request) {
	res := m.ws.GetClientsStatus()
	util.JsonWrite(w, status{Clients: res, Count: len(res)})
}

func (m *MonitoringServer) GetHandler() http.Handler {
	return http.HandlerFunc(m.serve_http)
}
