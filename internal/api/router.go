package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/yegors/landing-tracker/pkg/logger"
)

// Router wires the status API
type Router struct {
	handler   *Handler
	websocket http.HandlerFunc
	origins   []string
	logger    *logger.Logger
}

// NewRouter creates the router; ws may be nil to leave the stream out
func NewRouter(handler *Handler, ws http.HandlerFunc, origins []string, log *logger.Logger) *Router {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Router{
		handler:   handler,
		websocket: ws,
		origins:   origins,
		logger:    log.Named("router"),
	}
}

// Routes returns the HTTP handler
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(rt.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", rt.handler.GetHealth)
		r.Get("/landings", rt.handler.GetLandings)
		r.Get("/evidence", rt.handler.GetEvidence)
		r.Get("/observations", rt.handler.GetObservations)
		r.Get("/snapshots", rt.handler.GetSnapshots)
		if rt.websocket != nil {
			r.Get("/ws", rt.websocket)
		}
	})

	return r
}

func (rt *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		rt.logger.Debug("Request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Duration("took", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(r.Context())))
	})
}
