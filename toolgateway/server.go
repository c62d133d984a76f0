package toolgateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Server exposes a Registry over HTTP per SPEC_FULL.md §4.8:
//   - GET /            health probe
//   - GET /tools       metadata surface (tool descriptors)
//   - POST /tools/{name}  invoke a tool
//
// Per-tool secrets live only in this process's environment; Server never
// forwards anything from its own environment back to a caller.
type Server struct {
	registry *Registry
	logger   *zap.Logger
}

// NewServer builds a Server over registry.
func NewServer(registry *Registry, logger *zap.Logger) *Server {
	return &Server{registry: registry, logger: logger}
}

// Handler returns the http.Handler to mount on a server.Manager.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleHealth)
	mux.HandleFunc("GET /tools", s.handleList)
	mux.HandleFunc("POST /tools/{name}", s.handleInvoke)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.registry.List()); err != nil {
		s.logger.Error("toolgateway: failed to encode tool list", zap.Error(err))
	}
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/tools/")
	if name == "" {
		http.Error(w, "missing tool name", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if !s.registry.Has(name) {
		http.Error(w, "tool not found", http.StatusNotFound)
		return
	}

	result, err := s.registry.Execute(r.Context(), name, body)
	if err != nil {
		s.logger.Warn("toolgateway: tool execution failed", zap.String("tool", name), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(result)
}
