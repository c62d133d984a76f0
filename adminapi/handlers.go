package adminapi

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/BaSui01/llmgateway/credential"
	"github.com/BaSui01/llmgateway/gatewayerr"
	"github.com/BaSui01/llmgateway/internal/config"
	"github.com/BaSui01/llmgateway/internal/httpapi"
	"github.com/BaSui01/llmgateway/internal/server"
	"github.com/BaSui01/llmgateway/reasoning"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Server is the Admin HTTP API of SPEC_FULL.md §6.
type Server struct {
	configs     *config.Store
	configPath  string
	promptsDir  string
	patterns    *reasoning.PatternRegistry
	credentials *credential.Pool
	audit       *AuditLog
	manager     *server.Manager
	jwtSecret   string
	logger      *zap.Logger
}

// Config collects Server's collaborators.
type Config struct {
	Configs     *config.Store
	ConfigPath  string
	PromptsDir  string
	Patterns    *reasoning.PatternRegistry
	Credentials *credential.Pool
	Audit       *AuditLog
	Manager     *server.Manager
	JWTSecret   string
}

// NewServer builds an admin Server.
func NewServer(cfg Config, logger *zap.Logger) *Server {
	return &Server{
		configs:     cfg.Configs,
		configPath:  cfg.ConfigPath,
		promptsDir:  cfg.PromptsDir,
		patterns:    cfg.Patterns,
		credentials: cfg.Credentials,
		audit:       cfg.Audit,
		manager:     cfg.Manager,
		jwtSecret:   cfg.JWTSecret,
		logger:      logger,
	}
}

// Handler returns the admin mux wrapped in JWT bearer-auth middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/config", s.handleGetConfig)
	mux.HandleFunc("POST /admin/config", s.handlePostConfig)
	mux.HandleFunc("GET /admin/prompt_content", s.handleGetPromptContent)
	mux.HandleFunc("POST /admin/prompt_content", s.handlePostPromptContent)
	mux.HandleFunc("GET /admin/prompts", s.handleListPrompts)
	mux.HandleFunc("GET /admin/react_patterns", s.handleReactPatterns)
	mux.HandleFunc("GET /admin/provider_models", s.handleProviderModels)
	mux.HandleFunc("POST /admin/restart", s.handleRestart)
	mux.HandleFunc("GET /admin/credentials", s.handleCredentials)

	return JWTAuth(s.jwtSecret, s.logger)(mux)
}

// handleGetConfig returns the active configuration as YAML.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	data, err := yaml.Marshal(s.configs.Current())
	if err != nil {
		writeInternalErr(w, s.logger, "failed to marshal config", err)
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml")
	_, _ = w.Write(data)
}

// handlePostConfig decodes a full YAML config body, atomically replaces
// the active configuration, and writes an audit row, per SPEC_FULL.md
// §6: "POST triggers in-process reload and writes a config-change audit
// row."
func (s *Server) handlePostConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<22))
	if err != nil {
		writeBadRequestErr(w, s.logger, "failed to read request body")
		return
	}

	var next config.Config
	if err := yaml.Unmarshal(body, &next); err != nil {
		writeBadRequestErr(w, s.logger, "invalid YAML: "+err.Error())
		return
	}

	if s.configPath != "" {
		if err := os.WriteFile(s.configPath, body, 0o644); err != nil {
			writeInternalErr(w, s.logger, "failed to persist config file", err)
			return
		}
	}

	s.configs.Replace(&next)

	if s.audit != nil {
		if err := s.audit.Record(adminActor(r), "config reloaded via POST /admin/config"); err != nil {
			s.logger.Warn("adminapi: failed to write audit row", zap.Error(err))
		}
	}

	httpapi.WriteSuccess(w, map[string]string{"message": "configuration reloaded"})
}

// handleGetPromptContent reads the text file at ?path=… under
// promptsDir.
func (s *Server) handleGetPromptContent(w http.ResponseWriter, r *http.Request) {
	path, ok := s.resolvePromptPath(w, r)
	if !ok {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		writeNotFoundErr(w, s.logger, "prompt content not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(data)
}

// handlePostPromptContent writes the request body to the text file at
// ?path=… under promptsDir.
func (s *Server) handlePostPromptContent(w http.ResponseWriter, r *http.Request) {
	path, ok := s.resolvePromptPath(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeBadRequestErr(w, s.logger, "failed to read request body")
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		writeInternalErr(w, s.logger, "failed to create prompt directory", err)
		return
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		writeInternalErr(w, s.logger, "failed to write prompt content", err)
		return
	}
	httpapi.WriteSuccess(w, map[string]string{"message": "prompt content saved"})
}

// resolvePromptPath validates the ?path=… query parameter against
// directory traversal outside promptsDir.
func (s *Server) resolvePromptPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	rel := r.URL.Query().Get("path")
	if rel == "" {
		writeBadRequestErr(w, s.logger, "path is required")
		return "", false
	}
	clean := filepath.Clean(filepath.Join(s.promptsDir, rel))
	if !strings.HasPrefix(clean, filepath.Clean(s.promptsDir)+string(filepath.Separator)) {
		writeBadRequestErr(w, s.logger, "path escapes the prompts directory")
		return "", false
	}
	return clean, true
}

// handleListPrompts lists prompt/manifest files under promptsDir.
func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.promptsDir)
	if err != nil {
		writeInternalErr(w, s.logger, "failed to list prompts directory", err)
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	httpapi.WriteSuccess(w, names)
}

// handleReactPatterns lists discovered reasoning pattern names.
func (s *Server) handleReactPatterns(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteSuccess(w, s.patterns.List())
}

// providerModel is one row of the GET /admin/provider_models surface.
type providerModel struct {
	ProfileID string `json:"profile_id"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
}

// handleProviderModels returns a UI-only provider->model mapping read
// from config, per SPEC_FULL.md §6.
func (s *Server) handleProviderModels(w http.ResponseWriter, r *http.Request) {
	cfg := s.configs.Current()
	out := make([]providerModel, 0, len(cfg.ModelList))
	for _, m := range cfg.ModelList {
		out = append(out, providerModel{
			ProfileID: m.ModelName,
			Provider:  m.Provider,
			Model:     m.ModelParams.Model,
		})
	}
	httpapi.WriteSuccess(w, out)
}

// handleCredentials returns Pool.Snapshot() per provider, read-only:
// credential secrets themselves never transit this API.
func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteSuccess(w, s.credentials.Snapshot())
}

// handleRestart triggers an orderly process restart: a graceful
// Manager.Shutdown followed by re-exec of the running binary with its
// original arguments and environment, per SPEC_FULL.md §6.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteSuccess(w, map[string]string{"message": "restart initiated"})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if s.manager != nil {
			if err := s.manager.Shutdown(ctx); err != nil {
				s.logger.Error("adminapi: graceful shutdown before restart failed", zap.Error(err))
			}
		}

		exe, err := os.Executable()
		if err != nil {
			s.logger.Error("adminapi: failed to resolve executable path for restart", zap.Error(err))
			os.Exit(1)
		}

		s.logger.Info("adminapi: re-executing for restart", zap.String("exe", exe))
		execErr := syscall.Exec(exe, append([]string{exe}, os.Args[1:]...), os.Environ())
		if execErr != nil {
			s.logger.Error("adminapi: re-exec failed, falling back to process exit", zap.Error(execErr))
			_ = exec.Command(exe, os.Args[1:]...).Start()
			os.Exit(0)
		}
	}()
}

func adminActor(r *http.Request) string {
	if v := r.Header.Get("X-Admin-Actor"); v != "" {
		return v
	}
	return "unknown"
}

// adminErrKind is a local, admin-API-only error kind: the gatewayerr
// taxonomy models the router/credential/reasoning data plane, not this
// surface's generic CRUD failures, so admin errors are reported through
// the same Response envelope without borrowing an unrelated Kind.
const adminErrKind gatewayerr.Kind = "ADMIN_API_ERROR"

func writeInternalErr(w http.ResponseWriter, logger *zap.Logger, message string, cause error) {
	httpapi.WriteError(w, gatewayerr.New(adminErrKind, message).
		WithHTTPStatus(http.StatusInternalServerError).
		WithCause(cause), logger)
}

func writeBadRequestErr(w http.ResponseWriter, logger *zap.Logger, message string) {
	httpapi.WriteErrorMessage(w, http.StatusBadRequest, adminErrKind, message, logger)
}

func writeNotFoundErr(w http.ResponseWriter, logger *zap.Logger, message string) {
	httpapi.WriteErrorMessage(w, http.StatusNotFound, adminErrKind, message, logger)
}
