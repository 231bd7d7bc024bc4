package webapp

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/phuslu/log"
	proxyproto "github.com/pires/go-proxyproto"

	"nuha.dev/fleetmap/internal/auth"
	"nuha.dev/fleetmap/internal/store"
)

type ApiConfig struct {
	ListenAddr    string
	ProxyProtocol bool
}

type Api struct {
	r      chi.Router
	s      *http.Server
	config *ApiConfig
	log    log.Logger
	st     store.Store
	iss    *auth.Issuer
	vld    *validator.Validate
}

func NewApi(st store.Store, iss *auth.Issuer, config *ApiConfig) *Api {
	api := &Api{config: config, st: st, iss: iss}
	api.log = log.DefaultLogger
	api.log.Context = log.NewContext(nil).Str("module", "api-server").Value()
	api.vld = validator.New()
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.Recoverer)

	r.Post("/func/login", func(w http.ResponseWriter, r *http.Request) {
		api.Login(w, r)
	})
	r.Post("/func/logout", func(w http.ResponseWriter, r *http.Request) {
		api.Logout(w, r)
	})
	r.Get("/func/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	api.r = r
	api.s = &http.Server{
		Addr:           api.config.ListenAddr,
		Handler:        api.r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	return api
}

func (api *Api) Handler() http.Handler {
	return api.r
}

func (api *Api) Run() {
	api.log.Info().Msgf("starting api-server on : %s", api.s.Addr)
	ln, err := net.Listen("tcp", api.s.Addr)
	if err != nil {
		api.log.Error().Err(err).Msg("")
		panic(err)
	}
	if api.config.ProxyProtocol {
		ln = &proxyproto.Listener{Listener: ln}
	}
	err = api.s.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		api.log.Error().Err(err).Msg("")
		panic(err)
	}
}

func (api *Api) Shutdown() error {
	return api.s.Close()
}
