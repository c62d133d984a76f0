package router

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BaSui01/llmgateway/adapter"
	"github.com/BaSui01/llmgateway/cache"
	"github.com/BaSui01/llmgateway/credential"
	"github.com/BaSui01/llmgateway/gatewayerr"
	"github.com/BaSui01/llmgateway/internal/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAdapter struct {
	tag       string
	responses []fakeResponse
	i         int
}

type fakeResponse struct {
	status int
	body   string
	resp   *adapter.ChatResponse
}

func (f *fakeAdapter) Name() string { return f.tag }

func (f *fakeAdapter) Call(ctx context.Context, baseURL string, cred *credential.Record, request any) (any, int, string, error) {
	r := f.responses[f.i]
	if f.i < len(f.responses)-1 {
		f.i++
	}
	return r.resp, r.status, r.body, nil
}

func seedPool(t *testing.T, tag string, n int) *credential.Pool {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, tag+".txt")
	content := ""
	for i := 0; i < n; i++ {
		content += "key-" + tag + "-" + string(rune('a'+i)) + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	pool := credential.NewPool(true, time.Minute, zap.NewNop())
	require.NoError(t, pool.LoadProviderFile(tag, path))
	return pool
}

func testConfig(chain map[string][]string, profiles []config.ModelEntry) *config.Config {
	cfg := config.Defaults()
	cfg.RouterSettings.ModelGroupAlias = chain
	cfg.ModelList = profiles
	return cfg
}

func TestRouter_HappyDirectCall(t *testing.T) {
	pool := seedPool(t, "x", 1)
	executor := credential.NewExecutor(pool, credential.DefaultMarkerSets(), zap.NewNop())

	adapters := adapter.NewRegistry()
	adapters.Register("x", &fakeAdapter{tag: "x", responses: []fakeResponse{
		{status: 200, resp: &adapter.ChatResponse{ID: "1"}},
	}})

	cfg := testConfig(
		map[string][]string{"m": {"p1"}},
		[]config.ModelEntry{{ModelName: "p1", Provider: "x"}},
	)

	rt := New(config.NewStore(cfg), adapters, executor, cache.New(nil, cache.DefaultConfig(), zap.NewNop()), zap.NewNop())

	resp, err := rt.Route(context.Background(), "m", &adapter.ChatRequest{Messages: []adapter.Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	require.Equal(t, "1", resp.ID)
}

func TestRouter_UnknownAliasFails(t *testing.T) {
	pool := seedPool(t, "x", 1)
	executor := credential.NewExecutor(pool, credential.DefaultMarkerSets(), zap.NewNop())
	adapters := adapter.NewRegistry()
	cfg := testConfig(map[string][]string{}, nil)

	rt := New(config.NewStore(cfg), adapters, executor, cache.New(nil, cache.DefaultConfig(), zap.NewNop()), zap.NewNop())

	_, err := rt.Route(context.Background(), "missing", &adapter.ChatRequest{})
	require.True(t, gatewayerr.Is(err, gatewayerr.KindAliasNotFound))
}

func TestRouter_FallsBackToSecondProfileOnExhaustion(t *testing.T) {
	// Both providers' credentials live in one shared Pool, the way a real
	// deployment's single Pool holds every provider's buckets.
	pool := credential.NewPool(true, time.Minute, zap.NewNop())
	dirX := t.TempDir()
	pathX := filepath.Join(dirX, "x.txt")
	require.NoError(t, os.WriteFile(pathX, []byte("key-x-a\n"), 0o600))
	require.NoError(t, pool.LoadProviderFile("x", pathX))
	dirY := t.TempDir()
	pathY := filepath.Join(dirY, "y.txt")
	require.NoError(t, os.WriteFile(pathY, []byte("key-y-a\n"), 0o600))
	require.NoError(t, pool.LoadProviderFile("y", pathY))

	executor := credential.NewExecutor(pool, credential.DefaultMarkerSets(), zap.NewNop())

	adapters := adapter.NewRegistry()
	adapters.Register("x", &fakeAdapter{tag: "x", responses: []fakeResponse{
		{status: 429, body: "rate limited"},
	}})
	adapters.Register("y", &fakeAdapter{tag: "y", responses: []fakeResponse{
		{status: 200, resp: &adapter.ChatResponse{ID: "from-y"}},
	}})

	cfg := testConfig(
		map[string][]string{"m": {"p1", "p2"}},
		[]config.ModelEntry{
			{ModelName: "p1", Provider: "x"},
			{ModelName: "p2", Provider: "y"},
		},
	)

	rt := New(config.NewStore(cfg), adapters, executor, cache.New(nil, cache.DefaultConfig(), zap.NewNop()), zap.NewNop())

	resp, err := rt.Route(context.Background(), "m", &adapter.ChatRequest{})
	require.NoError(t, err)
	require.Equal(t, "from-y", resp.ID)
}

func TestRouter_AllProfilesExhaustedFails(t *testing.T) {
	pool := seedPool(t, "x", 1)
	executor := credential.NewExecutor(pool, credential.DefaultMarkerSets(), zap.NewNop())

	adapters := adapter.NewRegistry()
	adapters.Register("x", &fakeAdapter{tag: "x", responses: []fakeResponse{
		{status: 500, body: "server error"},
	}})

	cfg := testConfig(
		map[string][]string{"m": {"p1"}},
		[]config.ModelEntry{{ModelName: "p1", Provider: "x"}},
	)

	rt := New(config.NewStore(cfg), adapters, executor, cache.New(nil, cache.DefaultConfig(), zap.NewNop()), zap.NewNop())

	_, err := rt.Route(context.Background(), "m", &adapter.ChatRequest{})
	require.True(t, gatewayerr.Is(err, gatewayerr.KindNoProviderAvailable))
}

func TestRouter_RequestContentInvalidShortCircuits(t *testing.T) {
	pool := seedPool(t, "x", 1)
	executor := credential.NewExecutor(pool, credential.DefaultMarkerSets(), zap.NewNop())

	adapters := adapter.NewRegistry()
	adapters.Register("x", &fakeAdapter{tag: "x", responses: []fakeResponse{
		{status: 400, body: "invalid request"},
	}})

	cfg := testConfig(
		map[string][]string{"m": {"p1", "p2"}},
		[]config.ModelEntry{
			{ModelName: "p1", Provider: "x"},
			{ModelName: "p2", Provider: "x"},
		},
	)

	rt := New(config.NewStore(cfg), adapters, executor, cache.New(nil, cache.DefaultConfig(), zap.NewNop()), zap.NewNop())

	_, err := rt.Route(context.Background(), "m", &adapter.ChatRequest{})
	require.True(t, gatewayerr.Is(err, gatewayerr.KindRequestContentInvalid))
}
