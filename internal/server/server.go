// Package server exposes graph exploration sessions over HTTP.
//
// Each session owns one graph.State, so several browser tabs can explore
// independently. Views read the displayed subgraph as JSON or SVG, send
// commands (select, show/hide, hover, fetch more) and follow state changes
// over a websocket.
//
// # Routes
//
//	POST   /api/sessions                              {address | link | snapshot}
//	GET    /api/sessions/{id}
//	DELETE /api/sessions/{id}
//	GET    /api/sessions/{id}/graph
//	GET    /api/sessions/{id}/graph.svg
//	POST   /api/sessions/{id}/select/{address}
//	POST   /api/sessions/{id}/nodes/{address}/visibility   {visible}
//	POST   /api/sessions/{id}/nodes/{address}/more
//	POST   /api/sessions/{id}/hover                   {node, link}
//	GET    /api/sessions/{id}/events                  (websocket)
//	POST   /api/sessions/{id}/snapshots
//	GET    /api/snapshots
//	GET    /api/snapshots/{id}
//	GET    /api/health
//
// Errors are returned as {"code": "...", "message": "..."} with a status
// derived from the error code.
package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/stellar-expert/relgraph/pkg/graph"
	"github.com/stellar-expert/relgraph/pkg/storage"
)

// Config holds server tuning.
type Config struct {
	Network       string        // Recorded in saved snapshots
	PageSize      int           // Relations per page for every session
	FetchInterval time.Duration // Token refill interval for "fetch more"
	FetchBurst    int           // Token bucket size for "fetch more"
	SessionTTL    time.Duration // Idle time before a session is closed (0 = never)
}

// Server serves exploration sessions.
type Server struct {
	fetcher  graph.Fetcher
	store    storage.Store
	logger   *log.Logger
	cfg      Config
	sessions *registry
	upgrader websocket.Upgrader
}

// New creates a server. A nil store keeps snapshots in memory.
func New(fetcher graph.Fetcher, store storage.Store, logger *log.Logger, cfg Config) *Server {
	if store == nil {
		store = storage.NewMemoryStore()
	}
	if logger == nil {
		logger = log.Default()
	}
	if cfg.FetchInterval <= 0 {
		cfg.FetchInterval = time.Second
	}
	if cfg.FetchBurst < 1 {
		cfg.FetchBurst = 1
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = graph.DefaultPageSize
	}
	return &Server{
		fetcher:  fetcher,
		store:    store,
		logger:   logger,
		cfg:      cfg,
		sessions: newRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Get("/graph", s.handleGraph)
			r.Get("/graph.svg", s.handleGraphSVG)
			r.Post("/select/{address}", s.handleSelect)
			r.Post("/nodes/{address}/visibility", s.handleVisibility)
			r.Post("/nodes/{address}/more", s.handleFetchMore)
			r.Post("/hover", s.handleHover)
			r.Get("/events", s.handleEvents)
			r.Post("/snapshots", s.handleSaveSnapshot)
		})
	})

	r.Get("/api/snapshots", s.handleListSnapshots)
	r.Get("/api/snapshots/{id}", s.handleGetSnapshot)
	return r
}

// Close disposes every session.
func (s *Server) Close() {
	for _, sess := range s.sessions.drain() {
		sess.state.Close()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).Round(time.Millisecond),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
