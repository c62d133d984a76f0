// Package clientapi implements the client-facing, OpenAI-compatible HTTP
// surface of SPEC_FULL.md §6: chat completions, embeddings, speech
// synthesis, ReAct sessions (SSE), and a model-listing endpoint. Request
// decoding, error envelopes, and streaming discipline are grounded on the
// teacher's api/handlers/chat.go.
package clientapi

import (
	"bufio"
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/BaSui01/llmgateway/adapter"
	"github.com/BaSui01/llmgateway/eventbus"
	"github.com/BaSui01/llmgateway/gatewayerr"
	"github.com/BaSui01/llmgateway/internal/config"
	"github.com/BaSui01/llmgateway/internal/httpapi"
	"github.com/BaSui01/llmgateway/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChatRouter is the narrow capability the client API needs from the
// Router for chat/embeddings/speech — kept as an interface so tests can
// substitute a fake rather than building a whole Router.
type ChatRouter interface {
	Route(ctx context.Context, alias string, req *adapter.ChatRequest) (*adapter.ChatResponse, error)
	RouteEmbeddings(ctx context.Context, alias string, req *adapter.EmbeddingsRequest) (*adapter.EmbeddingsResponse, error)
	RouteSpeech(ctx context.Context, alias string, req *adapter.SpeechRequest) (*adapter.SpeechResponse, error)
}

// Server is the client HTTP API.
type Server struct {
	configs    *config.Store
	router     ChatRouter
	tasks      *queue.Queue
	bus        *eventbus.Bus
	sse        *eventbus.SSEBridge
	logger     *zap.Logger
}

// NewServer builds a Server over its collaborators.
func NewServer(configs *config.Store, router ChatRouter, tasks *queue.Queue, bus *eventbus.Bus, logger *zap.Logger) *Server {
	return &Server{
		configs: configs,
		router:  router,
		tasks:   tasks,
		bus:     bus,
		sse:     eventbus.NewSSEBridge(bus, logger),
		logger:  logger,
	}
}

// Handler returns the client API mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("POST /v1/embeddings", s.handleEmbeddings)
	mux.HandleFunc("POST /v1/audio/speech", s.handleSpeech)
	mux.HandleFunc("POST /v1/react/sessions", s.handleReactSessions)
	mux.HandleFunc("GET /v1/models/all-runnable", s.handleListModels)
	return mux
}

// chatCompletionRequest mirrors the OpenAI chat-completions request
// subset SPEC_FULL.md §6 commits to.
type chatCompletionRequest struct {
	Model       string             `json:"model"`
	Messages    []adapter.Message  `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if !httpapi.ValidateContentType(w, r, s.logger) {
		return
	}
	var req chatCompletionRequest
	if err := httpapi.DecodeJSONBody(w, r, &req, s.logger); err != nil {
		return
	}
	if req.Model == "" || len(req.Messages) == 0 {
		httpapi.WriteErrorMessage(w, http.StatusBadRequest, gatewayerr.KindRequestContentInvalid, "model and messages are required", s.logger)
		return
	}

	chatReq := &adapter.ChatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      req.Stream,
	}

	resp, err := s.router.Route(r.Context(), req.Model, chatReq)
	if err != nil {
		s.writeRouteErr(w, err)
		return
	}

	if !req.Stream {
		httpapi.WriteSuccess(w, resp)
		return
	}
	s.streamChatResponse(w, resp)
}

// streamChatResponse simulates token streaming over the response text by
// chunking it word-by-word, per the "proxy" typewriter_mode described in
// SPEC_FULL.md §6: the adapter layer has no true upstream token stream
// (it is a single blocking HTTP call per SPEC_FULL.md §4.2), so the
// gateway fakes the client-visible cadence instead of passing one
// through, grounded on the teacher's chat.go HandleStream chunk-and-flush
// loop.
func (s *Server) streamChatResponse(w http.ResponseWriter, resp *adapter.ChatResponse) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpapi.WriteSuccess(w, resp)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writer := bufio.NewWriter(w)
	for _, choice := range resp.Choices {
		for _, word := range strings.Fields(choice.Message.Content) {
			_, _ = writer.WriteString("data: {\"delta\":\"" + word + " \"}\n\n")
			_ = writer.Flush()
			flusher.Flush()
		}
	}
	_, _ = writer.WriteString("data: [DONE]\n\n")
	_ = writer.Flush()
	flusher.Flush()
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	if !httpapi.ValidateContentType(w, r, s.logger) {
		return
	}
	var req embeddingsRequest
	if err := httpapi.DecodeJSONBody(w, r, &req, s.logger); err != nil {
		return
	}
	if req.Model == "" || len(req.Input) == 0 {
		httpapi.WriteErrorMessage(w, http.StatusBadRequest, gatewayerr.KindRequestContentInvalid, "model and input are required", s.logger)
		return
	}

	resp, err := s.router.RouteEmbeddings(r.Context(), req.Model, &adapter.EmbeddingsRequest{Model: req.Model, Input: req.Input})
	if err != nil {
		s.writeRouteErr(w, err)
		return
	}
	httpapi.WriteSuccess(w, resp)
}

type speechRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Voice string `json:"voice,omitempty"`
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if !httpapi.ValidateContentType(w, r, s.logger) {
		return
	}
	var req speechRequest
	if err := httpapi.DecodeJSONBody(w, r, &req, s.logger); err != nil {
		return
	}
	if req.Model == "" || req.Input == "" {
		httpapi.WriteErrorMessage(w, http.StatusBadRequest, gatewayerr.KindRequestContentInvalid, "model and input are required", s.logger)
		return
	}

	resp, err := s.router.RouteSpeech(r.Context(), req.Model, &adapter.SpeechRequest{Model: req.Model, Input: req.Input, Voice: req.Voice})
	if err != nil {
		s.writeRouteErr(w, err)
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Audio)
}

// reactSessionRequest mirrors SPEC_FULL.md §3's Reasoning session record.
type reactSessionRequest struct {
	UserQuery               string   `json:"user_query"`
	ModelAlias              string   `json:"model_alias"`
	ReasoningMode           string   `json:"reasoning_mode,omitempty"`
	ClientSystemInstruction string   `json:"client_system_instruction,omitempty"`
	ClientManifests         []string `json:"client_manifests,omitempty"`
	SafetyFlags             []string `json:"safety_flags,omitempty"`
}

// handleReactSessions enqueues a reasoning task and streams its progress
// back as SSE, per SPEC_FULL.md §4.4/§4.5: the queue hands the task to a
// Reasoning Engine worker, and the SSE bridge relays that worker's
// published events back to this connection.
func (s *Server) handleReactSessions(w http.ResponseWriter, r *http.Request) {
	if !httpapi.ValidateContentType(w, r, s.logger) {
		return
	}
	var req reactSessionRequest
	if err := httpapi.DecodeJSONBody(w, r, &req, s.logger); err != nil {
		return
	}
	if req.UserQuery == "" || req.ModelAlias == "" {
		httpapi.WriteErrorMessage(w, http.StatusBadRequest, gatewayerr.KindRequestContentInvalid, "user_query and model_alias are required", s.logger)
		return
	}

	cfg := s.configs.Current()
	if _, ok := cfg.ProfileChain(req.ModelAlias); !ok {
		httpapi.WriteErrorMessage(w, http.StatusNotFound, gatewayerr.KindAliasNotFound, "unknown model_alias", s.logger)
		return
	}

	sessionID := uuid.New().String()
	task := &queue.Task{
		SessionID: sessionID,
		Goal:      req.UserQuery,
		ProfileID: req.ModelAlias,
		Metadata: map[string]any{
			"reasoning_mode":            req.ReasoningMode,
			"client_system_instruction": req.ClientSystemInstruction,
			"client_manifests":          req.ClientManifests,
			"safety_flags":              req.SafetyFlags,
		},
	}
	if err := s.tasks.Enqueue(r.Context(), task); err != nil {
		httpapi.WriteErrorMessage(w, http.StatusInternalServerError, gatewayerr.KindLLMUnavailable, "failed to enqueue reasoning task", s.logger)
		return
	}

	if err := s.sse.Serve(r.Context(), w, sessionID); err != nil {
		if gwErr, ok := err.(*gatewayerr.Error); ok {
			httpapi.WriteError(w, gwErr, s.logger)
			return
		}
		s.logger.Warn("clientapi: sse stream ended with error", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// handleListModels lists every configured alias, per SPEC_FULL.md §6.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	cfg := s.configs.Current()

	type runnableModel struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		IsAgent bool   `json:"is_agent"`
	}

	aliases := make([]string, 0, len(cfg.RouterSettings.ModelGroupAlias))
	for alias := range cfg.RouterSettings.ModelGroupAlias {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	out := make([]runnableModel, 0, len(aliases))
	for _, alias := range aliases {
		out = append(out, runnableModel{ID: alias, Name: alias, IsAgent: aliasIsAgent(cfg, alias)})
	}
	httpapi.WriteSuccess(w, out)
}

// aliasIsAgent reports whether alias's first chain profile carries an
// agent_settings override, or a global agent_settings.reasoning_mode is
// set, marking it as agent-capable rather than a plain chat-completion
// alias.
func aliasIsAgent(cfg *config.Config, alias string) bool {
	chain, ok := cfg.ProfileChain(alias)
	if !ok || len(chain) == 0 {
		return false
	}
	profile, ok := cfg.Profile(chain[0])
	if !ok {
		return false
	}
	return profile.ModelParams.AgentSettings != nil || cfg.AgentSettings.ReasoningMode != ""
}

func (s *Server) writeRouteErr(w http.ResponseWriter, err error) {
	if gwErr, ok := err.(*gatewayerr.Error); ok {
		httpapi.WriteError(w, gwErr, s.logger)
		return
	}
	httpapi.WriteErrorMessage(w, http.StatusInternalServerError, gatewayerr.KindNoProviderAvailable, err.Error(), s.logger)
}
