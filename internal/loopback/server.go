package loopback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const (
	// DefaultPortRangeStart is the first port tried when binding the callback listener.
	DefaultPortRangeStart = 64130
	// DefaultPortRangeEnd is the last port tried when binding the callback listener.
	DefaultPortRangeEnd = 64140

	// MaxBodyBytes is the largest POST body the server accepts.
	// Larger bodies are rejected with 413 before any parsing happens.
	MaxBodyBytes = 4096

	// shutdownGrace is how long Close waits for in-flight connections
	// before forcibly terminating them.
	shutdownGrace = 2 * time.Second
)

// securityHeaders are applied to every response, including error responses.
// A handler may add or override headers on top of this baseline.
var securityHeaders = map[string]string{
	"Content-Security-Policy": "default-src 'none'; connect-src 'self'",
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Cache-Control":           "no-store",
}

// Config configures the port range the server scans when binding.
type Config struct {
	// PortRangeStart and PortRangeEnd bound the sequential port scan.
	// Zero values fall back to the defaults.
	PortRangeStart int
	PortRangeEnd   int
}

// Server is a short-lived HTTP server bound to 127.0.0.1 only.
//
// It exists to receive a single browser-driven token delivery during
// interactive login. Because it is an unauthenticated local listener, every
// request passes Origin and Host loopback validation before reaching the
// handler, defending against cross-origin requests and DNS rebinding.
type Server struct {
	listener net.Listener
	server   *http.Server
	port     int

	closeOnce sync.Once
	closeErr  error
}

// Start binds a listener to the first free port in the configured range and
// begins serving handler behind the security middleware. It returns an error
// if every port in the range is already in use; no socket is left bound in
// that case.
func Start(handler http.Handler, cfg Config) (*Server, error) {
	start := cfg.PortRangeStart
	end := cfg.PortRangeEnd
	if start == 0 {
		start = DefaultPortRangeStart
	}
	if end == 0 {
		end = DefaultPortRangeEnd
	}

	var listener net.Listener
	var port int
	for candidate := start; candidate <= end; candidate++ {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", candidate))
		if err != nil {
			continue
		}
		listener = l
		port = candidate
		break
	}
	if listener == nil {
		return nil, fmt.Errorf("all callback ports between %d and %d are in use", start, end)
	}

	s := &Server{
		listener: listener,
		port:     port,
	}
	s.server = &http.Server{
		Handler:           secure(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Debug("callback server stopped", "port", port, "error", err)
		}
	}()

	slog.Debug("callback server listening", "port", port)
	return s, nil
}

// Port returns the port the server is bound to.
func (s *Server) Port() int {
	return s.port
}

// Close shuts the server down. In-flight connections get a short grace
// period, then are forcibly terminated so Close never hangs. Close is
// idempotent; calling it on an already-closed server is not an error.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			// Grace period elapsed with connections still open.
			s.closeErr = s.server.Close()
		}
	})
	return s.closeErr
}

// secure wraps handler with the security checks every request must pass:
// preflight short-circuit, Origin validation, Host validation, and the POST
// body cap, evaluated in that order.
func secure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		applySecurityHeaders(w)

		// CORS preflight is answered without exposing any endpoint logic.
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		if origin := r.Header.Get("Origin"); origin != "" && !isLoopbackOrigin(origin) {
			slog.Warn("callback request rejected: disallowed origin", "origin", origin)
			w.WriteHeader(http.StatusForbidden)
			return
		}

		// Host validation is independent of the Origin check and protects
		// against DNS rebinding even when Origin is spoofed or absent.
		if r.Host != "" && !isLoopbackHost(r.Host) {
			slog.Warn("callback request rejected: disallowed host", "host", r.Host)
			w.WriteHeader(http.StatusForbidden)
			return
		}

		if r.Method == http.MethodPost {
			body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if len(body) > MaxBodyBytes {
				slog.Warn("callback request rejected: body too large", "bytes", len(body))
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		next.ServeHTTP(w, r)
	})
}

func applySecurityHeaders(w http.ResponseWriter) {
	for name, value := range securityHeaders {
		w.Header().Set(name, value)
	}
}

// isLoopbackOrigin reports whether the Origin header value parses as a URL
// whose hostname is a loopback address.
func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return isLoopbackName(u.Hostname())
}

// isLoopbackHost reports whether a Host header value refers to a loopback
// address. The value carries no scheme, so a synthetic http:// prefix is
// added for parsing.
func isLoopbackHost(host string) bool {
	u, err := url.Parse("http://" + host)
	if err != nil {
		return false
	}
	return isLoopbackName(u.Hostname())
}

func isLoopbackName(hostname string) bool {
	switch hostname {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
