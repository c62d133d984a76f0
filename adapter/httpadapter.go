package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/llmgateway/credential"
)

// openAICompatMessage, openAICompatRequest and openAICompatResponse mirror
// the wire shapes the teacher's llm/providers/common.go defines once and
// every vendor package reused. Here there is exactly one adapter, so the
// types live next to it instead of in a shared helper file.
type openAICompatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

type openAICompatRequest struct {
	Model       string                `json:"model"`
	Messages    []openAICompatMessage `json:"messages"`
	Temperature float64               `json:"temperature,omitempty"`
	MaxTokens   int                   `json:"max_tokens,omitempty"`
	Stream      bool                  `json:"stream,omitempty"`
}

type openAICompatChoice struct {
	Index        int                 `json:"index"`
	FinishReason string              `json:"finish_reason"`
	Message      openAICompatMessage `json:"message"`
}

type openAICompatResponse struct {
	ID      string               `json:"id"`
	Model   string               `json:"model"`
	Choices []openAICompatChoice `json:"choices"`
}

type openAICompatErrorResp struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// HTTPAdapter is a single OpenAI-compatible adapter that serves every
// configured profile by base URL, replacing the teacher's per-vendor SDK
// packages (providers/anthropic, providers/deepseek, ...) per DESIGN.md:
// one generic adapter does the work of eight vendor-specific ones because
// this gateway only ever needs the Chat/Embeddings/Speech capabilities, not
// any vendor's full native SDK surface.
type HTTPAdapter struct {
	tag        string
	httpClient *http.Client
	authHeader func(req *http.Request, apiKey string)
}

// NewHTTPAdapter builds an HTTPAdapter tagged tag. authHeader installs the
// provider's bearer/auth scheme on outgoing requests; if nil, a standard
// "Authorization: Bearer <key>" header is used.
func NewHTTPAdapter(tag string, httpClient *http.Client, authHeader func(*http.Request, string)) *HTTPAdapter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if authHeader == nil {
		authHeader = func(req *http.Request, apiKey string) {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}
	}
	return &HTTPAdapter{tag: tag, httpClient: httpClient, authHeader: authHeader}
}

// Name returns the adapter's provider tag.
func (a *HTTPAdapter) Name() string { return a.tag }

// Call dispatches to the OpenAI-compatible endpoint matching request's
// concrete type (chat, embeddings, or speech), per SPEC_FULL.md §6's
// client API surface. baseURL is the profile's api_base; cred supplies
// the bearer credential. It never touches the credential pool itself
// (SPEC_FULL.md §5) — classification and pool mutation are the
// Key-Rotation Executor's job.
func (a *HTTPAdapter) Call(ctx context.Context, baseURL string, cred *credential.Record, request any) (any, int, string, error) {
	switch req := request.(type) {
	case *ChatRequest:
		return a.callChat(ctx, baseURL, cred, req)
	case *EmbeddingsRequest:
		return a.callEmbeddings(ctx, baseURL, cred, req)
	case *SpeechRequest:
		return a.callSpeech(ctx, baseURL, cred, req)
	default:
		return nil, 0, "", fmt.Errorf("httpadapter: unsupported request type %T", request)
	}
}

func (a *HTTPAdapter) callChat(ctx context.Context, baseURL string, cred *credential.Record, chatReq *ChatRequest) (any, int, string, error) {
	oaReq := openAICompatRequest{
		Model:       chatReq.Model,
		Temperature: chatReq.Temperature,
		MaxTokens:   chatReq.MaxTokens,
		Stream:      chatReq.Stream,
	}
	for _, m := range chatReq.Messages {
		oaReq.Messages = append(oaReq.Messages, openAICompatMessage{Role: m.Role, Content: m.Content})
	}

	payload, err := json.Marshal(oaReq)
	if err != nil {
		return nil, 0, "", fmt.Errorf("httpadapter: marshal request: %w", err)
	}

	endpoint := strings.TrimRight(baseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, "", fmt.Errorf("httpadapter: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	a.authHeader(httpReq, cred.Secret)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, "", fmt.Errorf("httpadapter: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, readErrorMessage(body), nil
	}

	var oaResp openAICompatResponse
	if err := json.Unmarshal(body, &oaResp); err != nil {
		return nil, resp.StatusCode, string(body), fmt.Errorf("httpadapter: decode response: %w", err)
	}

	chatResp := &ChatResponse{ID: oaResp.ID, Model: oaResp.Model, Raw: body}
	for _, c := range oaResp.Choices {
		chatResp.Choices = append(chatResp.Choices, ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      Message{Role: c.Message.Role, Content: c.Message.Content},
		})
	}

	return chatResp, resp.StatusCode, string(body), nil
}

type openAICompatEmbeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAICompatEmbeddingDatum struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

type openAICompatEmbeddingsResponse struct {
	Model string                       `json:"model"`
	Data  []openAICompatEmbeddingDatum `json:"data"`
}

func (a *HTTPAdapter) callEmbeddings(ctx context.Context, baseURL string, cred *credential.Record, embReq *EmbeddingsRequest) (any, int, string, error) {
	payload, err := json.Marshal(openAICompatEmbeddingsRequest{Model: embReq.Model, Input: embReq.Input})
	if err != nil {
		return nil, 0, "", fmt.Errorf("httpadapter: marshal embeddings request: %w", err)
	}

	resp, body, err := a.post(ctx, baseURL, "/embeddings", cred, payload)
	if err != nil {
		return nil, 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, readErrorMessage(body), nil
	}

	var oaResp openAICompatEmbeddingsResponse
	if err := json.Unmarshal(body, &oaResp); err != nil {
		return nil, resp.StatusCode, string(body), fmt.Errorf("httpadapter: decode embeddings response: %w", err)
	}

	embResp := &EmbeddingsResponse{Model: oaResp.Model}
	for _, d := range oaResp.Data {
		embResp.Data = append(embResp.Data, Embedding{Index: d.Index, Embedding: d.Embedding})
	}
	return embResp, resp.StatusCode, string(body), nil
}

type openAICompatSpeechRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Voice string `json:"voice,omitempty"`
}

func (a *HTTPAdapter) callSpeech(ctx context.Context, baseURL string, cred *credential.Record, speechReq *SpeechRequest) (any, int, string, error) {
	payload, err := json.Marshal(openAICompatSpeechRequest{Model: speechReq.Model, Input: speechReq.Input, Voice: speechReq.Voice})
	if err != nil {
		return nil, 0, "", fmt.Errorf("httpadapter: marshal speech request: %w", err)
	}

	resp, body, err := a.post(ctx, baseURL, "/audio/speech", cred, payload)
	if err != nil {
		return nil, 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, readErrorMessage(body), nil
	}

	contentType := resp.Header.Get("Content-Type")
	return &SpeechResponse{ContentType: contentType, Audio: body}, resp.StatusCode, "", nil
}

// post issues one JSON POST against baseURL+path, returning the raw
// *http.Response (caller closes the body) and the fully-read body bytes.
func (a *HTTPAdapter) post(ctx context.Context, baseURL, path string, cred *credential.Record, payload []byte) (*http.Response, []byte, error) {
	endpoint := strings.TrimRight(baseURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("httpadapter: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	a.authHeader(httpReq, cred.Secret)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, nil, fmt.Errorf("httpadapter: read response: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, body, nil
}

// readErrorMessage mirrors the teacher's ReadErrorMessage: try to parse an
// OpenAI-shaped error envelope, fall back to the raw body.
func readErrorMessage(body []byte) string {
	var errResp openAICompatErrorResp
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return string(body)
}
