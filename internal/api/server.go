package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bpfgate/bpfgate/internal/config"
)

type Server struct {
	cfg     *config.Config
	locator Locator
	engine  Executor
	updates UpdateSubmitter
	pool    ExecPool
	logger  *slog.Logger
	mux     *http.ServeMux
	routes  []route
}

// route is one entry of the static dispatch table. For execution routes the
// slot field carries the per-route storage slot context; the payload never
// selects a slot.
type route struct {
	method  string
	path    string
	slot    string
	handler http.HandlerFunc
}

// NewServer builds the dispatcher from the fixed route table. The table is
// validated once at startup; a malformed table is a construction error, not
// a request-time surprise.
func NewServer(cfg *config.Config, loc Locator, eng Executor, upd UpdateSubmitter, pool ExecPool, logger *slog.Logger) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		locator: loc,
		engine:  eng,
		updates: upd,
		pool:    pool,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	s.routes = s.routeTable()
	if err := validateRoutes(s.routes); err != nil {
		return nil, fmt.Errorf("route table: %w", err)
	}
	for _, rt := range s.routes {
		s.mux.HandleFunc(rt.method+" "+rt.path, rt.handler)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.requestIDMiddleware(s.mux)
}

// routeTable returns the dispatch table, sorted by path (ASCII order).
// Execution routes are generated from the configured slots: /bpf/exec/<i>
// binds slot i, which is the sole mechanism tying a request to a slot.
func (s *Server) routeTable() []route {
	routes := []route{
		{method: http.MethodGet, path: "/.well-known/core", handler: s.handleDiscovery},
	}
	for i, slot := range s.cfg.Slots {
		routes = append(routes, route{
			method:  http.MethodPost,
			path:    fmt.Sprintf("/bpf/exec/%d", i),
			slot:    slot,
			handler: s.handleExec(slot),
		})
	}
	routes = append(routes,
		route{method: http.MethodPost, path: "/fletcher16", handler: s.handleFletcher16},
		route{method: http.MethodGet, path: "/healthz", handler: s.handleHealthz},
		route{method: http.MethodPost, path: "/pull", handler: s.handlePull},
		route{method: http.MethodGet, path: "/riot/board", handler: s.handleBoard},
		route{method: http.MethodPost, path: "/vm/exec", handler: s.handleVMExec},
		route{method: http.MethodGet, path: "/vm/results", handler: s.handleVMResults},
	)
	return routes
}

// validateRoutes enforces table well-formedness: unique paths in ascending
// ASCII order, absolute paths, known methods, and slot context only where an
// execution handler expects it.
func validateRoutes(routes []route) error {
	if len(routes) == 0 {
		return fmt.Errorf("empty table")
	}
	for i, rt := range routes {
		if rt.method != http.MethodGet && rt.method != http.MethodPost {
			return fmt.Errorf("route %q: unsupported method %q", rt.path, rt.method)
		}
		if !strings.HasPrefix(rt.path, "/") {
			return fmt.Errorf("route %q: path must be absolute", rt.path)
		}
		if rt.handler == nil {
			return fmt.Errorf("route %q: nil handler", rt.path)
		}
		if rt.slot != "" && !strings.HasPrefix(rt.path, "/bpf/exec/") {
			return fmt.Errorf("route %q: slot context on non-execution route", rt.path)
		}
		if i > 0 {
			if routes[i-1].path == rt.path {
				return fmt.Errorf("duplicate path %q", rt.path)
			}
			if routes[i-1].path > rt.path {
				return fmt.Errorf("paths not in ASCII order: %q after %q", rt.path, routes[i-1].path)
			}
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
