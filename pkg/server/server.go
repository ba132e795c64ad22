// Package server exposes the chat, file and media endpoints used by the
// browser client.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/devagent-ai/devagent/pkg/audit"
	"github.com/devagent-ai/devagent/pkg/budget"
	cachepkg "github.com/devagent-ai/devagent/pkg/cache/sqlite"
	"github.com/devagent-ai/devagent/pkg/catalog"
	"github.com/devagent-ai/devagent/pkg/config"
	"github.com/devagent-ai/devagent/pkg/media"
	"github.com/devagent-ai/devagent/pkg/models"
	"github.com/devagent-ai/devagent/pkg/ratelimit"
	"github.com/devagent-ai/devagent/pkg/tokens"
	"github.com/devagent-ai/devagent/pkg/tracker"
	"github.com/devagent-ai/devagent/pkg/workspace"
)

// Response headers.
const (
	HeaderSession   = "X-Devagent-Session"
	HeaderCache     = "X-Devagent-Cache"
	HeaderRequestID = "X-Request-ID"
)

const (
	msgRateLimited  = "Rate limit exceeded. Please try again later."
	msgAccessDenied = "Access denied: path outside workspace"
	maxBodyBytes    = 10 << 20
)

// Router routes a chat request to the first provider that answers.
type Router interface {
	Route(ctx context.Context, req models.Request) (models.Response, error)
}

// Deps are the components the handlers call into. Router and Catalog are
// required; nil optional fields switch their feature off.
type Deps struct {
	Router    Router
	Catalog   *catalog.Catalog
	Ledger    *tokens.Ledger
	Workspace *workspace.Workspace
	Media     *media.Generator
	Tracker   tracker.Tracker
	Enforcer  *budget.Enforcer
	Cache     *cachepkg.Cache
	Auditor   *audit.Logger
}

// Server is the devagent HTTP API.
type Server struct {
	cfg        *config.Config
	deps       Deps
	chatLimit  *ratelimit.Limiter
	genLimit   *ratelimit.Limiter
	proxies    []netip.Prefix
	mux        *http.ServeMux
	background sync.WaitGroup
}

// New creates a Server wired with all dependencies.
func New(cfg *config.Config, deps Deps) *Server {
	if deps.Ledger == nil {
		deps.Ledger = tokens.NewLedger()
	}
	window := cfg.RateLimit.Window
	if window <= 0 {
		window = ratelimit.DefaultWindow
	}
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		chatLimit: ratelimit.New(cfg.RateLimit.Chat, window),
		genLimit:  ratelimit.New(cfg.RateLimit.Generate, window),
		proxies:   parseProxies(cfg.TrustedProxies),
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/api/files", s.handleFiles)
	s.mux.HandleFunc("/api/generate", s.handleGenerate)
	s.mux.HandleFunc("/api/usage", s.handleUsage)
	s.mux.HandleFunc("/api/models", s.handleModels)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support. Expired
// rate-limit windows are swept once per window while it runs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.sweepLimiters(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("devagent listening on %s", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutCtx)
		s.background.Wait()
		return err
	case err := <-errCh:
		return err
	}
}

func (s *Server) sweepLimiters(ctx context.Context) {
	window := s.cfg.RateLimit.Window
	if window <= 0 {
		window = ratelimit.DefaultWindow
	}
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.chatLimit.Sweep()
			s.genLimit.Sweep()
		}
	}
}

// goBackground runs fn after the response has been handed off. Shutdown
// waits for pending work.
func (s *Server) goBackground(fn func()) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		fn()
	}()
}

// parseProxies turns addresses and CIDR ranges into prefixes, skipping
// entries that parse as neither.
func parseProxies(entries []string) []netip.Prefix {
	var out []netip.Prefix
	for _, e := range entries {
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			out = append(out, netip.PrefixFrom(a.Unmap(), a.Unmap().BitLen()))
			continue
		}
		log.Printf("server: ignoring trusted proxy %q", e)
	}
	return out
}

func (s *Server) clientAddr(r *http.Request) string {
	return clientAddr(r, s.proxies)
}

// clientAddr identifies the caller for rate limiting, budgets and usage:
// the first X-Forwarded-For hop, then X-Real-IP, then the connection's host.
// With a non-empty trusted list the headers count only when the connection
// comes from one of those networks.
func clientAddr(r *http.Request, trusted []netip.Prefix) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		peer = host
	}
	if len(trusted) == 0 || isTrusted(peer, trusted) {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}
	if peer != "" {
		return peer
	}
	return "unknown"
}

func isTrusted(peer string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(peer)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
