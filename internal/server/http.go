package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"community-bot/backend/internal/httpx"
)

const (
	httpReadTimeout  = 10 * time.Second
	httpWriteTimeout = 30 * time.Second
	httpIdleTimeout  = 60 * time.Second
)

// Routes is a handler that mounts its routes on the /v1 subrouter.
type Routes interface {
	Register(router *mux.Router)
}

// NewRouter returns the HTTP API router: every Routes under /v1 plus GET /healthz.
// ready reports whether dependencies are up; nil means always ready.
func NewRouter(ready func() bool, routes ...Routes) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil && !ready() {
			httpx.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_serving"})
			return
		}
		httpx.RespondJSON(w, http.StatusOK, map[string]string{"status": "serving"})
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/v1").Subrouter()
	for _, r := range routes {
		if r != nil {
			r.Register(api)
		}
	}
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondErrorString(w, http.StatusNotFound, "not found")
	})
	return router
}

// NewHTTPServer wraps handler with the API's timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: httpReadTimeout,
		ReadTimeout:       httpReadTimeout,
		WriteTimeout:      httpWriteTimeout,
		IdleTimeout:       httpIdleTimeout,
	}
}
