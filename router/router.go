// Package router implements the Router and fallback orchestrator of
// SPEC_FULL.md §4.3: it resolves a client-facing model alias to an
// ordered priority chain of provider profiles, and tries each in turn
// through the Key-Rotation Executor until one succeeds.
//
// Grounded on the teacher's llm/registry.go adapter-lookup shape and the
// general package conventions of llm/router/router.go (zap logging,
// mutex-guarded config read), simplified to ordered-chain fallback: the
// spec has no cost/latency weighted scoring, so WeightedRouter's scoring
// machinery is not carried over.
package router

import (
	"context"
	"fmt"

	"github.com/BaSui01/llmgateway/adapter"
	"github.com/BaSui01/llmgateway/cache"
	"github.com/BaSui01/llmgateway/credential"
	"github.com/BaSui01/llmgateway/gatewayerr"
	"github.com/BaSui01/llmgateway/internal/config"
	"go.uber.org/zap"
)

// Router drives the alias -> profile-chain -> adapter fallback loop.
type Router struct {
	configs   *config.Store
	adapters  *adapter.Registry
	executor  *credential.Executor
	cache     *cache.Cache
	cacheRule func(profileID string) (config.CacheRule, bool)
	logger    *zap.Logger
}

// New builds a Router over the given collaborators. configs is read on
// every Route call so that a config reload (SPEC_FULL.md §5) is picked up
// without restarting the router.
func New(configs *config.Store, adapters *adapter.Registry, executor *credential.Executor, respCache *cache.Cache, logger *zap.Logger) *Router {
	return &Router{
		configs:  configs,
		adapters: adapters,
		executor: executor,
		cache:    respCache,
		logger:   logger,
	}
}

// Route implements SPEC_FULL.md §4.3 steps 1-4: resolve alias, try each
// profile in the chain via the Key-Rotation Executor, and fall back to
// the next profile on PROVIDER_EXHAUSTED. A REQUEST_CONTENT_INVALID error
// short-circuits the chain and is returned immediately.
func (r *Router) Route(ctx context.Context, alias string, req *adapter.ChatRequest) (*adapter.ChatResponse, error) {
	cfg := r.configs.Current()

	chain, ok := cfg.ProfileChain(alias)
	if !ok || len(chain) == 0 {
		return nil, gatewayerr.New(gatewayerr.KindAliasNotFound, fmt.Sprintf("no priority chain configured for alias %q", alias))
	}

	cacheKey, cacheable := r.cacheLookupKey(cfg, chain, req)
	if cacheable {
		if entry, err := r.cache.Get(ctx, cacheKey); err == nil {
			r.logger.Debug("router: cache hit", zap.String("alias", alias))
			return entry.Response, nil
		}
	}

	var lastErr error
	for _, profileID := range chain {
		profile, ok := cfg.Profile(profileID)
		if !ok {
			r.logger.Warn("router: chain references unknown profile", zap.String("profile_id", profileID))
			continue
		}

		a, err := r.adapters.MustGet(profile.Provider)
		if err != nil {
			r.logger.Warn("router: no adapter for provider", zap.String("provider", profile.Provider), zap.Error(err))
			lastErr = err
			continue
		}

		resolved := *req
		if resolved.Model == "" {
			resolved.Model = profile.ModelParams.Model
		}

		result, err := r.executor.Execute(ctx, profile.Provider, profile.ModelParams.APIBase, executorAdapter{a}, &resolved)
		if err == nil {
			resp := result.(*adapter.ChatResponse)
			if cacheable {
				go r.storeAsync(cacheKey, resp, cfg, chain)
			}
			return resp, nil
		}

		if gatewayerr.Is(err, gatewayerr.KindRequestContentInvalid) {
			return nil, err
		}

		r.logger.Info("router: profile exhausted, trying next", zap.String("profile_id", profileID), zap.Error(err))
		lastErr = err
	}

	e := gatewayerr.New(gatewayerr.KindNoProviderAvailable, fmt.Sprintf("no profile in alias %q's chain succeeded", alias)).
		WithHTTPStatus(503)
	if lastErr != nil {
		e = e.WithCause(lastErr)
	}
	return nil, e
}

// RouteEmbeddings resolves alias the same way as Route and tries each
// profile in its chain for an embeddings call. Embeddings responses are
// never cached: SPEC_FULL.md's cache rules are scoped to chat completions
// only (§3 "Cache entry" keys on `internal_model_name, selected_request_
// fields…" drawn from chat requests).
func (r *Router) RouteEmbeddings(ctx context.Context, alias string, req *adapter.EmbeddingsRequest) (*adapter.EmbeddingsResponse, error) {
	cfg := r.configs.Current()
	chain, ok := cfg.ProfileChain(alias)
	if !ok || len(chain) == 0 {
		return nil, gatewayerr.New(gatewayerr.KindAliasNotFound, fmt.Sprintf("no priority chain configured for alias %q", alias))
	}

	var lastErr error
	for _, profileID := range chain {
		profile, ok := cfg.Profile(profileID)
		if !ok {
			r.logger.Warn("router: chain references unknown profile", zap.String("profile_id", profileID))
			continue
		}

		a, err := r.adapters.MustGet(profile.Provider)
		if err != nil {
			lastErr = err
			continue
		}

		resolved := *req
		if resolved.Model == "" {
			resolved.Model = profile.ModelParams.Model
		}

		result, err := r.executor.Execute(ctx, profile.Provider, profile.ModelParams.APIBase, executorAdapter{a}, &resolved)
		if err == nil {
			return result.(*adapter.EmbeddingsResponse), nil
		}
		if gatewayerr.Is(err, gatewayerr.KindRequestContentInvalid) {
			return nil, err
		}
		lastErr = err
	}

	e := gatewayerr.New(gatewayerr.KindNoProviderAvailable, fmt.Sprintf("no profile in alias %q's chain succeeded", alias)).
		WithHTTPStatus(503)
	if lastErr != nil {
		e = e.WithCause(lastErr)
	}
	return nil, e
}

// RouteSpeech resolves alias and tries each profile in its chain for a
// text-to-speech call, mirroring RouteEmbeddings.
func (r *Router) RouteSpeech(ctx context.Context, alias string, req *adapter.SpeechRequest) (*adapter.SpeechResponse, error) {
	cfg := r.configs.Current()
	chain, ok := cfg.ProfileChain(alias)
	if !ok || len(chain) == 0 {
		return nil, gatewayerr.New(gatewayerr.KindAliasNotFound, fmt.Sprintf("no priority chain configured for alias %q", alias))
	}

	var lastErr error
	for _, profileID := range chain {
		profile, ok := cfg.Profile(profileID)
		if !ok {
			continue
		}

		a, err := r.adapters.MustGet(profile.Provider)
		if err != nil {
			lastErr = err
			continue
		}

		resolved := *req
		if resolved.Model == "" {
			resolved.Model = profile.ModelParams.Model
		}

		result, err := r.executor.Execute(ctx, profile.Provider, profile.ModelParams.APIBase, executorAdapter{a}, &resolved)
		if err == nil {
			return result.(*adapter.SpeechResponse), nil
		}
		if gatewayerr.Is(err, gatewayerr.KindRequestContentInvalid) {
			return nil, err
		}
		lastErr = err
	}

	e := gatewayerr.New(gatewayerr.KindNoProviderAvailable, fmt.Sprintf("no profile in alias %q's chain succeeded", alias)).
		WithHTTPStatus(503)
	if lastErr != nil {
		e = e.WithCause(lastErr)
	}
	return nil, e
}

// storeAsync writes resp to the cache on a detached goroutine, matching
// the teacher's fire-and-forget async-DB-update pattern in
// apikey_pool.go: the write never blocks or fails the request, and any
// error is only logged.
func (r *Router) storeAsync(key string, resp *adapter.ChatResponse, cfg *config.Config, chain []string) {
	ctx := context.Background()
	if err := r.cache.Set(ctx, key, resp); err != nil {
		r.logger.Warn("router: async cache write failed", zap.Error(err))
	}
}

// cacheLookupKey reports whether req matches a configured cache rule for
// any profile in chain, and if so returns its fingerprint.
func (r *Router) cacheLookupKey(cfg *config.Config, chain []string, req *adapter.ChatRequest) (string, bool) {
	if r.cache == nil || !cfg.CacheSettings.Enabled || !cache.IsCacheable(req) {
		return "", false
	}

	for _, rule := range cfg.CacheSettings.Rules {
		if ruleMatchesChain(rule, chain) {
			return cache.Fingerprint(req, rule.IncludeInKey), true
		}
	}
	return "", false
}

func ruleMatchesChain(rule config.CacheRule, chain []string) bool {
	for _, name := range rule.ModelNames {
		for _, profileID := range chain {
			if name == profileID {
				return true
			}
		}
	}
	return false
}

// executorAdapter adapts adapter.Adapter (baseURL-keyed Call) to
// credential.Adapter (endpoint-keyed Call) — the two interfaces are
// structurally identical but declared in separate packages to avoid a
// credential -> adapter import cycle, per SPEC_FULL.md §5's requirement
// that the executor never depend on a concrete wire format.
type executorAdapter struct {
	a adapter.Adapter
}

func (e executorAdapter) Call(ctx context.Context, endpoint string, cred *credential.Record, request any) (any, int, string, error) {
	return e.a.Call(ctx, endpoint, cred, request)
}
