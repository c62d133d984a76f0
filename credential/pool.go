// Package credential implements the three-state credential pool
// (SPEC_FULL.md §4.1) and the key-rotation executor (§4.2) that drives
// requests through it.
//
// The pool's locking and FIFO-list shape is grounded on the teacher's
// llm/apikey_pool.go, trimmed from its DB-backed, multi-strategy design
// down to the spec's simpler in-memory three-bucket state machine seeded
// from flat credential files.
package credential

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is one of the three buckets a credential can occupy.
type State string

const (
	StateAvailable  State = "available"
	StateQuarantine State = "quarantined"
	StateRetired    State = "retired"
)

// Record is one credential and its current lifecycle state.
type Record struct {
	ProviderTag     string
	Secret          string
	State           State
	StateSince      time.Time
	QuarantineUntil time.Time
	LastReason      string
}

// ProviderCounts is the per-state tally returned by Snapshot.
type ProviderCounts struct {
	Available  int
	Quarantine int
	Retired    int
}

type providerBucket struct {
	mu         sync.Mutex
	available  []*Record
	quarantine []*Record
	retired    []*Record
}

// Pool is the concurrency-safe, self-healing credential store described
// in SPEC_FULL.md §4.1. One providerBucket (and therefore one lock) exists
// per provider tag, so contention on one provider never blocks another —
// the same per-key locking granularity as the teacher's apikey_pool.go.
type Pool struct {
	mu               sync.RWMutex
	buckets          map[string]*providerBucket
	enableQuarantine bool
	quarantineFor    time.Duration
	logger           *zap.Logger

	stopSweep chan struct{}
	swept     sync.WaitGroup
}

// NewPool creates an empty pool. Call LoadDir (or LoadProviderFile per
// provider) to seed it, then StartSweeper if quarantine is enabled.
func NewPool(enableQuarantine bool, quarantineFor time.Duration, logger *zap.Logger) *Pool {
	return &Pool{
		buckets:          make(map[string]*providerBucket),
		enableQuarantine: enableQuarantine,
		quarantineFor:    quarantineFor,
		logger:           logger,
	}
}

func (p *Pool) bucket(providerTag string) *providerBucket {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.buckets[providerTag]
	if !ok {
		b = &providerBucket{}
		p.buckets[providerTag] = b
	}
	return b
}

// LoadProviderFile seeds the available bucket for providerTag from a flat
// text file, one secret per line; blank and whitespace-only lines are
// ignored, per SPEC_FULL.md §4.1 "Loading".
func (p *Pool) LoadProviderFile(providerTag, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open credential file %s: %w", path, err)
	}
	defer f.Close()

	b := p.bucket(providerTag)
	b.mu.Lock()
	defer b.mu.Unlock()

	scanner := bufio.NewScanner(f)
	now := time.Now()
	count := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		b.available = append(b.available, &Record{
			ProviderTag: providerTag,
			Secret:      line,
			State:       StateAvailable,
			StateSince:  now,
		})
		count++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan credential file %s: %w", path, err)
	}

	p.logger.Info("loaded provider credentials", zap.String("provider", providerTag), zap.Int("count", count))
	return nil
}

// LoadDir loads every keys_pool_<tag>.env file in dir, inferring the
// provider tag from the filename, matching SPEC_FULL.md §6's persisted
// state layout.
func (p *Pool) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read credential dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const prefix, suffix = "keys_pool_", ".env"
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		tag := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
		if err := p.LoadProviderFile(tag, filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// Acquire removes and returns the head of the available list for
// providerTag. Returns ok=false if none are available.
func (p *Pool) Acquire(providerTag string) (*Record, bool) {
	b := p.bucket(providerTag)
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.available) == 0 {
		return nil, false
	}
	cred := b.available[0]
	b.available = b.available[1:]
	return cred, true
}

// Release appends cred to the tail of providerTag's available list. A
// no-op if cred is already sitting in one of this bucket's three lists,
// per SPEC_FULL.md §4.1's defensive guard against double-releasing a
// credential into the FIFO twice.
func (p *Pool) Release(providerTag string, cred *Record) {
	b := p.bucket(providerTag)
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.contains(cred) {
		return
	}

	cred.State = StateAvailable
	cred.StateSince = time.Now()
	b.available = append(b.available, cred)
}

// contains reports whether cred is already tracked in one of b's three
// state lists. Must be called with b.mu held.
func (b *providerBucket) contains(cred *Record) bool {
	for _, c := range b.available {
		if c == cred {
			return true
		}
	}
	for _, c := range b.quarantine {
		if c == cred {
			return true
		}
	}
	for _, c := range b.retired {
		if c == cred {
			return true
		}
	}
	return false
}

// Quarantine moves cred into the quarantined bucket with a future expiry,
// unless quarantine is globally disabled, in which case it behaves as
// Release (SPEC_FULL.md §4.1).
func (p *Pool) Quarantine(providerTag string, cred *Record, reason string) {
	if !p.enableQuarantine {
		p.Release(providerTag, cred)
		return
	}

	b := p.bucket(providerTag)
	b.mu.Lock()
	defer b.mu.Unlock()

	cred.State = StateQuarantine
	cred.StateSince = time.Now()
	cred.QuarantineUntil = time.Now().Add(p.quarantineFor)
	cred.LastReason = reason
	b.quarantine = append(b.quarantine, cred)

	p.logger.Warn("credential quarantined",
		zap.String("provider", providerTag),
		zap.String("reason", reason),
		zap.Time("until", cred.QuarantineUntil))
}

// Retire moves cred to the retired bucket unconditionally. Idempotent: a
// credential already retired is left untouched rather than duplicated.
func (p *Pool) Retire(providerTag string, cred *Record, reason string) {
	b := p.bucket(providerTag)
	b.mu.Lock()
	defer b.mu.Unlock()

	if cred.State == StateRetired {
		return
	}

	cred.State = StateRetired
	cred.StateSince = time.Now()
	cred.LastReason = reason
	b.retired = append(b.retired, cred)

	p.logger.Warn("credential retired", zap.String("provider", providerTag), zap.String("reason", reason))
}

// Snapshot returns aggregate counts per provider per state.
func (p *Pool) Snapshot() map[string]ProviderCounts {
	p.mu.RLock()
	tags := make([]string, 0, len(p.buckets))
	for tag := range p.buckets {
		tags = append(tags, tag)
	}
	p.mu.RUnlock()

	out := make(map[string]ProviderCounts, len(tags))
	for _, tag := range tags {
		b := p.bucket(tag)
		b.mu.Lock()
		out[tag] = ProviderCounts{
			Available:  len(b.available),
			Quarantine: len(b.quarantine),
			Retired:    len(b.retired),
		}
		b.mu.Unlock()
	}
	return out
}

// SnapshotProvider returns the counts for a single provider tag.
func (p *Pool) SnapshotProvider(providerTag string) ProviderCounts {
	b := p.bucket(providerTag)
	b.mu.Lock()
	defer b.mu.Unlock()
	return ProviderCounts{
		Available:  len(b.available),
		Quarantine: len(b.quarantine),
		Retired:    len(b.retired),
	}
}

// StartSweeper launches the background goroutine that periodically moves
// expired quarantined credentials back to available, FIFO-appended
// (SPEC_FULL.md §4.1's "Background task"). A no-op if quarantine is
// disabled. Stop with StopSweeper.
func (p *Pool) StartSweeper(interval time.Duration) {
	if !p.enableQuarantine {
		return
	}
	p.stopSweep = make(chan struct{})
	p.swept.Add(1)
	go func() {
		defer p.swept.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.sweep()
			case <-p.stopSweep:
				return
			}
		}
	}()
}

// StopSweeper stops the background sweeper goroutine and waits for it to
// exit.
func (p *Pool) StopSweeper() {
	if p.stopSweep == nil {
		return
	}
	close(p.stopSweep)
	p.swept.Wait()
}

func (p *Pool) sweep() {
	p.mu.RLock()
	tags := make([]string, 0, len(p.buckets))
	for tag := range p.buckets {
		tags = append(tags, tag)
	}
	p.mu.RUnlock()

	now := time.Now()
	for _, tag := range tags {
		b := p.bucket(tag)
		b.mu.Lock()
		var stillQuarantined []*Record
		var readyAgain []*Record
		for _, cred := range b.quarantine {
			if now.After(cred.QuarantineUntil) || now.Equal(cred.QuarantineUntil) {
				readyAgain = append(readyAgain, cred)
			} else {
				stillQuarantined = append(stillQuarantined, cred)
			}
		}
		if len(readyAgain) > 0 {
			b.quarantine = stillQuarantined
			for _, cred := range readyAgain {
				cred.State = StateAvailable
				cred.StateSince = now
				b.available = append(b.available, cred)
			}
			p.logger.Info("quarantine sweep returned credentials",
				zap.String("provider", tag), zap.Int("count", len(readyAgain)))
		}
		b.mu.Unlock()
	}
}
