package server

import (
	"net"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"
)

// newOriginChecker builds the CheckOrigin predicate handed to the WebSocket
// upgrader. allowAll is for local development only; allowed supports exact
// matches and filepath.Match-style wildcards ("http://localhost:*").
func newOriginChecker(allowed []string, allowAll bool, log *zap.SugaredLogger) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}

		origin := r.Header.Get("Origin")
		if origin == "" {
			return originlessFromLocalhost(r, log)
		}

		for _, pattern := range allowed {
			if pattern == "*" || origin == pattern {
				return true
			}
			if matched, err := filepath.Match(pattern, origin); err == nil && matched {
				return true
			}
		}

		if log != nil {
			log.Warnw("rejecting websocket upgrade from disallowed origin", "origin", origin, "remote_addr", r.RemoteAddr)
		}
		return false
	}
}

// originlessFromLocalhost allows the (rare) client that omits the Origin
// header, but only when it's dialing from the loopback interface — some
// WebSocket CLI tools (wscat, websocat) never send one.
func originlessFromLocalhost(r *http.Request, log *zap.SugaredLogger) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return false
	}
	if isLocalhost(host) {
		return true
	}
	if log != nil {
		log.Warnw("rejecting websocket upgrade with no origin from non-local host", "remote_addr", r.RemoteAddr)
	}
	return false
}

func isLocalhost(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	switch host {
	case "localhost", "ip6-localhost", "ip6-loopback":
		return true
	default:
		return false
	}
}
