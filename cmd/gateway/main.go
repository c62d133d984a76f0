// Command gateway is the LLM gateway's entry point: it wires the Router,
// Credential Pool, Event Bus, Task Queue, Reasoning Engine, Tool Gateway,
// and the client/admin HTTP surfaces into two listeners, then blocks
// until SIGINT/SIGTERM.
//
// Grounded on the teacher's cmd/agentflow/main.go + server.go wiring
// shape (flag-parsed "serve" entrypoint, initLogger, Server.Start/
// WaitForShutdown), simplified to this gateway's flatter component graph
// — there is no database migration subcommand, since persistence here is
// Redis + flat config/credential files, not a SQL schema.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/llmgateway/adapter"
	"github.com/BaSui01/llmgateway/adminapi"
	"github.com/BaSui01/llmgateway/cache"
	"github.com/BaSui01/llmgateway/clientapi"
	"github.com/BaSui01/llmgateway/credential"
	"github.com/BaSui01/llmgateway/eventbus"
	"github.com/BaSui01/llmgateway/internal/ctxkeys"
	"github.com/BaSui01/llmgateway/internal/config"
	"github.com/BaSui01/llmgateway/internal/obs"
	"github.com/BaSui01/llmgateway/internal/server"
	"github.com/BaSui01/llmgateway/internal/tlsutil"
	"github.com/BaSui01/llmgateway/queue"
	"github.com/BaSui01/llmgateway/reasoning"
	"github.com/BaSui01/llmgateway/router"
	"github.com/BaSui01/llmgateway/toolgateway"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	fs := flag.NewFlagSet("gateway", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.yaml")
	credentialsDir := fs.String("credentials-dir", "./keys_pool", "directory of per-provider credential files")
	promptsDir := fs.String("prompts-dir", "./patterns", "directory of reasoning prompt templates")
	toolsAddr := fs.String("tools-addr", ":8090", "tool gateway listen address")
	jwtSecret := fs.String("jwt-secret", os.Getenv("GATEWAY_ADMIN_JWT_SECRET"), "admin API bearer secret")
	devLog := fs.Bool("dev-log", false, "use human-readable development logging")
	_ = fs.Parse(os.Args[1:])

	logger := obs.MustNewLogger(*devLog)
	defer logger.Sync()

	logger.Info("starting gateway", zap.String("version", Version), zap.String("build_time", BuildTime), zap.String("git_commit", GitCommit))

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	configs := config.NewStore(cfg)

	registry := prometheus.NewRegistry()
	obs.NewMetrics(registry)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisSettings.Addr, DB: cfg.RedisSettings.DB})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Warn("redis ping failed at startup, continuing (cache/bus/queue calls will error until it recovers)", zap.Error(err))
	}

	pool := credential.NewPool(cfg.KeyManagementSettings.EnableQuarantine, cfg.QuarantineDuration(), logger)
	if err := pool.LoadDir(*credentialsDir); err != nil {
		logger.Warn("failed to load credential directory", zap.String("dir", *credentialsDir), zap.Error(err))
	}
	pool.StartSweeper(cfg.SweepInterval())
	defer pool.StopSweeper()

	upstreamClient := tlsutil.SecureHTTPClient(60 * time.Second)
	adapters := adapter.NewRegistry()
	for _, providerTag := range distinctProviders(cfg) {
		adapters.Register(providerTag, adapter.NewHTTPAdapter(providerTag, upstreamClient, nil))
	}

	executor := credential.NewExecutor(pool, credential.DefaultMarkerSets(), logger)

	respCache := cache.New(rdb, cache.Config{
		LocalMaxSize: 1000,
		LocalTTL:     5 * time.Minute,
		RedisTTL:     time.Hour,
		EnableLocal:  true,
		EnableRedis:  cfg.CacheSettings.Enabled,
		KeyPrefix:    cfg.CacheSettings.KeyPrefix,
	}, logger)

	llmRouter := router.New(configs, adapters, executor, respCache, logger)

	bus := eventbus.New(rdb, 10*time.Second, logger)
	tasks := queue.New(rdb, "gateway:", logger)

	patterns := reasoning.NewPatternRegistry()
	if err := patterns.LoadDir(*promptsDir); err != nil {
		logger.Warn("failed to load prompt pattern directory", zap.String("dir", *promptsDir), zap.Error(err))
	}
	promptConstructor := reasoning.NewConstructor(patterns)

	toolRegistry := toolgateway.NewRegistry(logger)
	toolServer := toolgateway.NewServer(toolRegistry, logger)
	toolServerManager := server.NewManager(toolServer.Handler(), withAddr(server.DefaultConfig(), *toolsAddr), logger)
	if err := toolServerManager.Start(); err != nil {
		logger.Fatal("failed to start tool gateway listener", zap.Error(err))
	}
	defer toolServerManager.Shutdown(context.Background())

	toolClient := toolgateway.NewClient("http://127.0.0.1"+*toolsAddr, tlsutil.SecureHTTPClient(30*time.Second), 5, 1)

	engineCfg := reasoning.DefaultConfig()
	engineCfg.MaxSteps = cfg.MaxSteps()
	engine := reasoning.NewEngine(engineCfg, llmRouter, toolClient, promptConstructor, bus, logger)
	defer engine.Close()

	stopDequeue := make(chan struct{})
	go runDequeueLoop(tasks, engine, configs, logger, stopDequeue)
	defer close(stopDequeue)

	clientServer := clientapi.NewServer(configs, llmRouter, tasks, bus, logger)
	clientMux := http.NewServeMux()
	clientMux.Handle("/v1/", clientServer.Handler())
	clientMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	clientManager := server.NewManager(clientMux, withAddr(server.DefaultConfig(), cfg.ServerSettings.ListenAddr), logger)

	audit, err := adminapi.OpenAuditLog(configAuditPath(*configPath))
	if err != nil {
		logger.Fatal("failed to open admin audit log", zap.Error(err))
	}

	adminHandler := &handlerRef{}
	adminManager := server.NewManager(adminHandler, withAddr(server.DefaultConfig(), cfg.ServerSettings.AdminListenAddr), logger)
	adminServer := adminapi.NewServer(adminapi.Config{
		Configs:     configs,
		ConfigPath:  *configPath,
		PromptsDir:  *promptsDir,
		Patterns:    patterns,
		Credentials: pool,
		Audit:       audit,
		Manager:     adminManager,
		JWTSecret:   *jwtSecret,
	}, logger)
	adminHandler.set(adminServer.Handler())

	if err := clientManager.Start(); err != nil {
		logger.Fatal("failed to start client listener", zap.Error(err))
	}
	if err := adminManager.Start(); err != nil {
		logger.Fatal("failed to start admin listener", zap.Error(err))
	}

	logger.Info("gateway ready",
		zap.String("client_addr", clientManager.Addr()),
		zap.String("admin_addr", adminManager.Addr()),
		zap.String("tools_addr", toolServerManager.Addr()),
	)

	waitForShutdown(logger, clientManager, adminManager)
}

// distinctProviders collects every provider tag referenced by the model
// list, so exactly one HTTPAdapter is registered per provider.
func distinctProviders(cfg *config.Config) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range cfg.ModelList {
		if !seen[m.Provider] {
			seen[m.Provider] = true
			out = append(out, m.Provider)
		}
	}
	return out
}

// withAddr returns base with Addr overridden, leaving every other
// timeout/size tunable at its default.
func withAddr(base server.Config, addr string) server.Config {
	base.Addr = addr
	return base
}

// configAuditPath derives the audit log's sqlite path from the active
// config file's directory, defaulting to the working directory when no
// config path was given.
func configAuditPath(configPath string) string {
	if configPath == "" {
		return "./gateway_audit.db"
	}
	return configPath + ".audit.db"
}

// runDequeueLoop drains the Task Queue and submits each task to the
// Reasoning Engine as a Job, translating the client-supplied metadata
// clientapi.handleReactSessions attached back out of the generic
// map[string]any it travels in over Redis.
func runDequeueLoop(tasks *queue.Queue, engine *reasoning.Engine, configs *config.Store, logger *zap.Logger, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		task, err := tasks.Dequeue(context.Background(), 5*time.Second)
		if err != nil {
			logger.Error("gateway: dequeue failed", zap.Error(err))
			continue
		}
		if task == nil {
			continue
		}

		cfg := configs.Current()
		job := reasoning.Job{
			SessionID:         task.SessionID,
			ProfileAlias:      task.ProfileID,
			ClientInstruction: metaString(task.Metadata, "client_system_instruction"),
			ClientManifests:   metaStrings(task.Metadata, "client_manifests"),
			PatternID:         resolvePatternID(cfg, task),
		}

		jobCtx := ctxkeys.WithSessionID(context.Background(), task.SessionID)
		if task.TraceID != "" {
			jobCtx = ctxkeys.WithTraceID(jobCtx, task.TraceID)
		}
		if err := engine.Submit(jobCtx, job); err != nil {
			logger.Error("gateway: failed to submit reasoning job",
				zap.String("session_id", task.SessionID), zap.String("trace_id", task.TraceID), zap.Error(err))
		}
	}
}

// resolvePatternID prefers the client's requested reasoning_mode, falling
// back to the agent_settings override of the first profile in the task's
// alias chain, then to the global agent_settings.reasoning_mode.
func resolvePatternID(cfg *config.Config, task *queue.Task) string {
	if mode := metaString(task.Metadata, "reasoning_mode"); mode != "" {
		return mode
	}
	if chain, ok := cfg.ProfileChain(task.ProfileID); ok && len(chain) > 0 {
		if profile, ok := cfg.Profile(chain[0]); ok && profile.ModelParams.AgentSettings != nil {
			return profile.ModelParams.AgentSettings.ReasoningMode
		}
	}
	return cfg.AgentSettings.ReasoningMode
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	s, _ := meta[key].(string)
	return s
}

func metaStrings(meta map[string]any, key string) []string {
	if meta == nil {
		return nil
	}
	raw, ok := meta[key].([]string)
	if ok {
		return raw
	}
	items, ok := meta[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// handlerRef is a swappable http.Handler indirection: it lets a
// server.Manager be constructed (and told to itself, via
// adminapi.Config.Manager) before the handler that closes over it exists.
type handlerRef struct {
	mu sync.RWMutex
	h  http.Handler
}

func (r *handlerRef) set(h http.Handler) {
	r.mu.Lock()
	r.h = h
	r.mu.Unlock()
}

func (r *handlerRef) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	h := r.h
	r.mu.RUnlock()
	if h == nil {
		http.NotFound(w, req)
		return
	}
	h.ServeHTTP(w, req)
}

// waitForShutdown blocks until the first listener (managers[0]) reports an
// unexpected error or the process receives SIGINT/SIGTERM; managers[0]
// shuts itself down, and the remaining listeners are shut down here.
// Errors from the remaining listeners are not watched.
func waitForShutdown(logger *zap.Logger, managers ...*server.Manager) {
	done := make(chan struct{})
	go func() {
		managers[0].WaitForShutdown()
		close(done)
	}()
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, m := range managers[1:] {
		if err := m.Shutdown(ctx); err != nil {
			logger.Error("gateway: shutdown error", zap.Error(err))
		}
	}
	fmt.Println("gateway stopped")
}
