package server

import (
	"encoding/json"
	"net/http"

	"github.com/agilecore/boardsyncd/internal/wsconn"
)

func (s *Server) routes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/stats", s.handleStats)
	s.router.Get("/ws", s.handleWebSocket)
}

// corsMiddleware mirrors the origin policy applied at WebSocket upgrade onto
// the plain HTTP endpoints, so a browser dashboard calling /api/stats is
// held to the same allow-list.
func corsMiddleware(allowed []string, allowAll bool) func(http.Handler) http.Handler {
	checker := newOriginChecker(allowed, allowAll, nil)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && checker(r) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type healthResponse struct {
	Status         string `json:"status"`
	OpenTenantDBs  int    `json:"open_tenant_dbs"`
	OpenTenantConn int    `json:"open_tenant_broadcast_channels"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		OpenTenantDBs:  s.storage.TenantCount(),
		OpenTenantConn: s.bc.TenantCount(),
	})
}

type statsResponse struct {
	GlobalConnections int `json:"global_connections"`
	OpenTenantDBs     int `json:"open_tenant_dbs"`
	IdempotencyCached int `json:"idempotency_cache_size"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		GlobalConnections: s.registry.GlobalCount(),
		OpenTenantDBs:     s.storage.TenantCount(),
		IdempotencyCached: s.idem.Size(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown.Load() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	tenantCtx, err := s.verifier.Verify(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	db, err := s.storage.GetPool(tenantCtx.TenantID)
	if err != nil {
		s.log.Errorw("failed to open tenant storage", "tenant_id", tenantCtx.TenantID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	connID := s.nextConnID()
	guard, err := s.registry.TryRegister(tenantCtx.TenantID, connID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		guard.Release()
		return
	}

	conn := wsconn.New(connID, tenantCtx.TenantID, tenantCtx.UserID, ws, db, guard, s.wsDeps)

	stop := make(chan struct{})
	s.activeConns.Store(connID, stop)
	defer s.activeConns.Delete(connID)

	conn.Run(stop)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
