package credential

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"pgregory.net/rapid"
)

// TestPool_FIFOPropertyAcrossReleases checks SPEC_FULL.md §8's law: for a
// sequence of K release(p, ci) calls, subsequent acquire(p) returns the ci
// in the same order they were released.
func TestPool_FIFOPropertyAcrossReleases(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		secrets := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,8}`), 1, 20).Draw(t, "secrets")

		p := NewPool(true, time.Hour, zap.NewNop())
		b := p.bucket("p")
		now := time.Now()
		for _, s := range secrets {
			b.available = append(b.available, &Record{ProviderTag: "p", Secret: s, State: StateAvailable, StateSince: now})
		}

		acquired := make([]*Record, 0, len(secrets))
		for range secrets {
			c, ok := p.Acquire("p")
			if !ok {
				t.Fatalf("expected available credential")
			}
			acquired = append(acquired, c)
		}

		for _, c := range acquired {
			p.Release("p", c)
		}

		for _, want := range acquired {
			got, ok := p.Acquire("p")
			if !ok {
				t.Fatalf("expected available credential")
			}
			if got.Secret != want.Secret {
				t.Fatalf("FIFO order violated: got %s want %s", got.Secret, want.Secret)
			}
		}
	})
}
