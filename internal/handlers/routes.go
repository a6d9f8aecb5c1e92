package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/snappy-loop/feeled/internal/auth"
)

// RouterOptions configures the middleware around /api.
type RouterOptions struct {
	Auth           *auth.Service // nil or disabled lets every request through
	RateLimitRPS   float64
	RateLimitBurst int
}

// Router wires every endpoint. Live sessions share the /api token and rate limit:
// each submit is charged like a POST /api/story.
func (h *Handler) Router(opts RouterOptions) *mux.Router {
	h.limiter = newLimiter(opts.RateLimitRPS, opts.RateLimitBurst)

	r := mux.NewRouter()
	r.HandleFunc("/", h.Index).Methods("GET")
	r.HandleFunc("/healthz", h.Healthz).Methods("GET")
	r.Handle("/metrics", h.metrics.Handler()).Methods("GET")
	var ws http.Handler = http.HandlerFunc(h.SessionWS)
	if opts.Auth != nil {
		ws = opts.Auth.SocketMiddleware(ws)
	}
	r.Handle("/session/ws", ws).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(Instrument(h.metrics))
	api.Use(rateLimit(h.limiter, h.metrics))
	if opts.Auth != nil {
		api.Use(opts.Auth.Middleware)
	}
	// No Methods() on the proxy routes: PostOnly answers 405 with a JSON body.
	api.HandleFunc("/story", PostOnly(h.Story))
	api.HandleFunc("/voice", PostOnly(h.Voice))
	api.HandleFunc("/audio", PostOnly(h.Voice))
	api.HandleFunc("/image", PostOnly(h.Image))
	api.HandleFunc("/download", PostOnly(h.Download))
	api.HandleFunc("/options", h.Options).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
	return r
}
