package adminapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/llmgateway/credential"
	"github.com/BaSui01/llmgateway/internal/config"
	"github.com/BaSui01/llmgateway/reasoning"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-signing-secret"

func signedToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	promptsDir := filepath.Join(dir, "prompts")
	require.NoError(t, os.MkdirAll(promptsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(promptsDir, "greeting.txt"), []byte("hello"), 0o644))

	configPath := filepath.Join(dir, "config.yaml")
	cfg := config.Defaults()
	cfg.ModelList = []config.ModelEntry{
		{ModelName: "p1", Provider: "openai", ModelParams: config.ModelParams{Model: "gpt-4o"}},
	}

	patterns := reasoning.NewPatternRegistry()
	patterns.Register("react", "you are a ReAct agent")

	pool := credential.NewPool(true, time.Minute, zap.NewNop())

	audit, err := OpenAuditLog(filepath.Join(dir, "audit.sqlite"))
	require.NoError(t, err)

	srv := NewServer(Config{
		Configs:     config.NewStore(cfg),
		ConfigPath:  configPath,
		PromptsDir:  promptsDir,
		Patterns:    patterns,
		Credentials: pool,
		Audit:       audit,
		JWTSecret:   testSecret,
	}, zap.NewNop())

	return srv, promptsDir
}

func TestJWTAuth_RejectsMissingHeader(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/config", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTAuth_RejectsBadSignature(t *testing.T) {
	srv, _ := newTestServer(t)
	bad := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"})
	s, err := bad.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin/config", nil)
	req.Header.Set("Authorization", "Bearer "+s)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTAuth_AcceptsValidToken(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/config", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuditLog_RecordAndRecent(t *testing.T) {
	dir := t.TempDir()
	audit, err := OpenAuditLog(filepath.Join(dir, "audit.sqlite"))
	require.NoError(t, err)

	require.NoError(t, audit.Record("alice", "first change"))
	require.NoError(t, audit.Record("bob", "second change"))

	rows, err := audit.Recent(10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "bob", rows[0].Actor)
}

func TestHandlePostConfig_ReloadsAndAudits(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `
model_list:
  - model_name: p2
    provider: anthropic
    model_params:
      model: claude
`
	req := httptest.NewRequest(http.MethodPost, "/admin/config", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signedToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	got := srv.configs.Current()
	require.Len(t, got.ModelList, 1)
	require.Equal(t, "p2", got.ModelList[0].ModelName)

	rows, err := srv.audit.Recent(10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestHandlePromptContent_RoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/prompt_content?path=greeting.txt", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello", rec.Body.String())
}

func TestHandlePromptContent_RejectsTraversal(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/prompt_content?path=../../etc/passwd", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListPrompts(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/prompts", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "greeting.txt")
}

func TestHandleReactPatterns(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/react_patterns", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "react")
}

func TestHandleProviderModels(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/provider_models", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "gpt-4o")
}

func TestHandleCredentials(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/credentials", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
