// Package api exposes the billing engine over JSON/HTTP.
//
// Table routes live under /tables/{tableID}. The caller's participant key
// comes from a bearer token or, for guests, the X-Guest-Name header.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/xraph/tablebill"
	"github.com/xraph/tablebill/realtime"
	"github.com/xraph/tablebill/realtime/ws"
)

// Server routes HTTP requests to an Engine.
type Server struct {
	engine *tablebill.Engine
	hub    *realtime.Hub
	ws     *ws.Handler
	router *mux.Router

	jwtSecret      []byte
	allowedOrigins []string
	metrics        http.Handler
	logger         *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithJWTSecret sets the HS256 key used to verify bearer tokens. Without
// one, only guest identities are accepted.
func WithJWTSecret(secret string) Option {
	return func(s *Server) { s.jwtSecret = []byte(secret) }
}

// WithHub enables the presence and websocket routes.
func WithHub(h *realtime.Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithAllowedOrigins restricts CORS and websocket origins. The default
// allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New builds a Server for engine.
func New(engine *tablebill.Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		router: mux.NewRouter(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.hub != nil {
		s.ws = ws.NewHandler(s.hub,
			ws.WithCheckOrigin(s.checkOrigin),
			ws.WithLogger(s.logger),
		)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	s.router.HandleFunc("/commission", s.handleCommission).Methods(http.MethodGet)
	s.router.HandleFunc("/installments", s.handleInstallments).Methods(http.MethodGet)

	authed := s.router.NewRoute().Subrouter()
	authed.Use(s.identityMiddleware)
	authed.HandleFunc("/intents/{intentID}/confirm", s.handleConfirmIntent).Methods(http.MethodPost)

	table := authed.PathPrefix("/tables/{tableID}").Subrouter()
	table.HandleFunc("/dishes", s.handleListDishes).Methods(http.MethodGet)
	table.HandleFunc("/dishes", s.handleAddDish).Methods(http.MethodPost)
	table.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	table.HandleFunc("/resolve", s.handleResolve).Methods(http.MethodPost)
	table.HandleFunc("/quote", s.handleQuote).Methods(http.MethodPost)
	table.HandleFunc("/splits", s.handleListSplits).Methods(http.MethodGet)
	table.HandleFunc("/splits", s.handleStartSplit).Methods(http.MethodPost)
	table.HandleFunc("/splits", s.handleCancelSplit).Methods(http.MethodDelete)
	table.HandleFunc("/checkout", s.handleCheckout).Methods(http.MethodPost)
	table.HandleFunc("/payments", s.handleRecordPayment).Methods(http.MethodPost)
	table.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)
	if s.hub != nil {
		table.HandleFunc("/presence", s.handlePresence).Methods(http.MethodGet)
		table.HandleFunc("/ws", s.handleWebsocket).Methods(http.MethodGet)
	}
}

// Handler returns the router wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	origins := s.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", headerGuestName, headerRestaurantID},
		// Credentials cannot be combined with a wildcard origin.
		AllowCredentials: len(s.allowedOrigins) > 0,
	})
	return c.Handler(s.router)
}

// ServeHTTP implements http.Handler without CORS.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
