// Package server wires the HTTP surface: the WebSocket upgrade endpoint,
// health check, admin stats, and the coordinated drain-then-stop shutdown
// sequence.
package server

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agilecore/boardsyncd/internal/authn"
	"github.com/agilecore/boardsyncd/internal/broadcast"
	"github.com/agilecore/boardsyncd/internal/config"
	"github.com/agilecore/boardsyncd/internal/idempotency"
	"github.com/agilecore/boardsyncd/internal/logging"
	"github.com/agilecore/boardsyncd/internal/registry"
	"github.com/agilecore/boardsyncd/internal/storage"
	"github.com/agilecore/boardsyncd/internal/wsconn"
)

// Server owns the process's single HTTP listener and every connection
// accepted on it.
type Server struct {
	cfg      *config.Config
	router   *chi.Mux
	httpSrv  *http.Server
	storage  *storage.Manager
	registry *registry.Registry
	bc       *broadcast.Broadcaster
	idem     *idempotency.Store
	verifier *authn.Verifier
	upgrader websocket.Upgrader
	wsDeps   wsconn.Deps
	log      *zap.SugaredLogger

	connIDSeq    atomic.Uint64
	activeConns  sync.Map // connID (string) -> stop (chan struct{})
	shuttingDown atomic.Bool
}

// New builds a Server around its shared collaborators. The caller owns the
// lifetime of storage, registry, bc, and idem (constructed once at process
// startup and passed in here).
func New(cfg *config.Config, mgr *storage.Manager, reg *registry.Registry, bc *broadcast.Broadcaster, idem *idempotency.Store, verifier *authn.Verifier) *Server {
	log := logging.Named("server")

	s := &Server{
		cfg:      cfg,
		storage:  mgr,
		registry: reg,
		bc:       bc,
		idem:     idem,
		verifier: verifier,
		log:      log,
		wsDeps: wsconn.Deps{
			Broadcaster:            bc,
			Idempotency:            idem,
			RequestTimeout:         cfg.RequestTimeout,
			HeartbeatInterval:      cfg.HeartbeatInterval,
			RateLimitWindow:        cfg.RateLimitWindow,
			RateLimitMax:           cfg.RateLimitMax,
			RateLimitMaxViolations: cfg.RateLimitMaxViolations,
		},
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: newOriginChecker(cfg.AllowedOrigins, cfg.AllowAllOrigins, log),
	}

	s.router = chi.NewRouter()
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(corsMiddleware(cfg.AllowedOrigins, cfg.AllowAllOrigins))
	s.routes()

	s.httpSrv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// ListenAndServe blocks serving HTTP until the listener is closed by
// Shutdown (which returns http.ErrServerClosed, not treated as a failure).
func (s *Server) ListenAndServe() error {
	s.log.Infow("listening", "addr", s.cfg.ListenAddr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) nextConnID() string {
	return "c" + strconv.FormatUint(s.connIDSeq.Add(1), 36)
}
