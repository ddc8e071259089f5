// Package server exposes Folio's HTTP surface: quota reads and writes, PDF
// conversion gated on the quota, user token issue, health, metrics and a
// websocket feed of quota updates.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/SmitUplenchwar2687/Folio/internal/convert"
	"github.com/SmitUplenchwar2687/Folio/internal/identity"
	"github.com/SmitUplenchwar2687/Folio/internal/obs"
	"github.com/SmitUplenchwar2687/Folio/internal/quota"
)

const defaultMaxUploadBytes = 20 << 20

// Accountant is the quota surface the server needs.
type Accountant interface {
	QueryState(ctx context.Context, c identity.Client) (quota.State, error)
	RecordUse(ctx context.Context, c identity.Client) (quota.State, error)
	Limit() int64
}

// Converter turns an uploaded PDF into Markdown.
type Converter interface {
	Convert(ctx context.Context, name string, pdf []byte) (convert.Result, error)
}

// Options configures optional server features. The zero value serves the
// quota endpoints only.
type Options struct {
	Logger    zerolog.Logger
	Converter Converter
	Hub       *Hub
	Metrics   *obs.Metrics
	Gatherer  prometheus.Gatherer

	MaxUploadBytes      int64
	RejectUnknownOnRead bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// NewUserID issues tokens for POST /user-id. Defaults to random UUIDs.
	NewUserID func() string
}

// Server is the Folio HTTP server.
type Server struct {
	httpServer *http.Server
	acct       Accountant
	router     chi.Router
	opts       Options
	logger     zerolog.Logger
}

// New creates a new Folio server.
func New(addr string, acct Accountant, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.NewUserID == nil {
		opts.NewUserID = uuid.NewString
	}

	s := &Server{
		acct:   acct,
		router: chi.NewRouter(),
		opts:   opts,
		logger: opts.Logger.With().Str("component", "server").Logger(),
	}
	s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
	}
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(obs.AccessLog(s.opts.Logger))
	if s.opts.Metrics != nil {
		r.Use(s.opts.Metrics.Middleware(map[string]struct{}{"/metrics": {}}))
	}

	r.Get("/health", s.handleHealth)

	r.Get("/request-count", s.handleRequestCount)
	r.Get("/api/get-request-count", s.handleRequestCount)
	r.Post("/track-request", s.handleTrackRequest)
	r.Post("/api/track-request", s.handleTrackRequest)
	r.Post("/parse", s.handleParse)
	r.Post("/api/parse", s.handleParse)
	r.Post("/user-id", s.handleUserID)

	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if s.opts.Hub != nil {
		s.opts.Hub.SetInitialState(func(r *http.Request, c identity.Client) (quota.State, error) {
			return s.acct.QueryState(r.Context(), c)
		})
		r.Get("/ws", s.opts.Hub.HandleWebSocket)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening. It blocks until the server is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.StartOnListener(ln)
}

// StartOnListener begins serving on the provided listener.
// Useful for tests that need to pick an ephemeral port.
func (s *Server) StartOnListener(ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("folio server listening")
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server and closes websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.opts.Hub != nil {
		s.opts.Hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}
