// Package toolgateway implements the Tool Gateway of SPEC_FULL.md §4.8: an
// HTTP service wrapping an in-process tool registry, generalized from the
// teacher's llm/tools/executor.go DefaultRegistry/DefaultExecutor, with
// the hand-rolled tokenBucketLimiter replaced by golang.org/x/time/rate.
package toolgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Func is one tool's implementation.
type Func func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Descriptor is the tool metadata surface served on GET /tools
// (SPEC_FULL.md §3/§4.8): name, a JSON Schema for arguments, a one-line
// summary, and per-parameter descriptions, all supplied by the caller of
// Register. The Reasoning Engine's prompt constructor does not fetch
// descriptors or include them in the prompt.
type Descriptor struct {
	Name      string            `json:"tool_name"`
	Summary   string            `json:"summary"`
	Schema    json.RawMessage   `json:"schema"`
	ParamDocs map[string]string `json:"param_docs,omitempty"`
}

// Metadata pairs a Descriptor with execution controls.
type Metadata struct {
	Descriptor Descriptor
	Timeout    time.Duration
	RateLimit  *RateLimit
}

// RateLimit configures a per-tool token-bucket limiter.
type RateLimit struct {
	RatePerSecond float64
	Burst         int
}

// Registry is a thread-safe tool registry, directly generalized from the
// teacher's DefaultRegistry (Register/Unregister/Get/List/Has), adding a
// Has method already present in the teacher shape.
type Registry struct {
	mu       sync.RWMutex
	fns      map[string]Func
	metadata map[string]Metadata
	limiters map[string]*rate.Limiter
	logger   *zap.Logger
}

// NewRegistry builds an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		fns:      make(map[string]Func),
		metadata: make(map[string]Metadata),
		limiters: make(map[string]*rate.Limiter),
		logger:   logger,
	}
}

// Register adds name to the registry. Re-registering an existing name is
// an error, matching the teacher's DefaultRegistry.Register.
func (r *Registry) Register(name string, fn Func, meta Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.fns[name]; exists {
		return fmt.Errorf("toolgateway: tool %q already registered", name)
	}
	if meta.Descriptor.Name == "" {
		meta.Descriptor.Name = name
	}
	if meta.Timeout == 0 {
		meta.Timeout = 30 * time.Second
	}

	r.fns[name] = fn
	r.metadata[name] = meta

	if meta.RateLimit != nil {
		r.limiters[name] = rate.NewLimiter(rate.Limit(meta.RateLimit.RatePerSecond), meta.RateLimit.Burst)
	}

	r.logger.Info("tool registered", zap.String("name", name), zap.Duration("timeout", meta.Timeout))
	return nil
}

// Unregister removes name.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fns[name]; !exists {
		return fmt.Errorf("toolgateway: tool %q not found", name)
	}
	delete(r.fns, name)
	delete(r.metadata, name)
	delete(r.limiters, name)
	return nil
}

// Get retrieves name's function and metadata.
func (r *Registry) Get(name string) (Func, Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[name]
	if !ok {
		return nil, Metadata{}, fmt.Errorf("toolgateway: tool %q not found", name)
	}
	return fn, r.metadata[name], nil
}

// List returns every registered tool's descriptor.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.metadata))
	for _, m := range r.metadata {
		out = append(out, m.Descriptor)
	}
	return out
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.fns[name]
	return ok
}

// allow checks name's rate limiter, if any. Paced per session in the
// Reasoning Engine's caller, not per process-wide call, per SPEC_FULL.md
// §4.6 ("paced ... per session to bound burstiness") — the limiter here
// bounds the tool's own global call rate as a second, coarser layer.
func (r *Registry) allow(name string) bool {
	r.mu.RLock()
	limiter, ok := r.limiters[name]
	r.mu.RUnlock()
	if !ok {
		return true
	}
	return limiter.Allow()
}

// Execute runs name with args, applying the tool's timeout and rate
// limit. It never panics the caller: a panicking tool function is
// recovered and reported as an error result.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	fn, meta, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	if !r.allow(name) {
		return nil, fmt.Errorf("toolgateway: rate limit exceeded for tool %q", name)
	}

	execCtx, cancel := context.WithTimeout(ctx, meta.Timeout)
	defer cancel()

	type outcome struct {
		res json.RawMessage
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				select {
				case done <- outcome{err: fmt.Errorf("toolgateway: tool %q panicked: %v", name, rec)}:
				case <-execCtx.Done():
				}
			}
		}()
		res, err := fn(execCtx, args)
		select {
		case done <- outcome{res: res, err: err}:
		case <-execCtx.Done():
		}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-execCtx.Done():
		return nil, fmt.Errorf("toolgateway: tool %q timed out after %s", name, meta.Timeout)
	}
}
