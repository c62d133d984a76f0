package credential

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeCredsFile(t *testing.T, dir, provider string, secrets []string) {
	t.Helper()
	path := filepath.Join(dir, "keys_pool_"+provider+".env")
	content := "\n  \n" + joinLines(secrets) + "\n\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func TestPool_AcquireReleaseFIFO(t *testing.T) {
	dir := t.TempDir()
	writeCredsFile(t, dir, "openai", []string{"k1", "k2", "k3"})

	p := NewPool(true, time.Minute, zap.NewNop())
	require.NoError(t, p.LoadDir(dir))

	c1, ok := p.Acquire("openai")
	require.True(t, ok)
	assert.Equal(t, "k1", c1.Secret)

	c2, ok := p.Acquire("openai")
	require.True(t, ok)
	assert.Equal(t, "k2", c2.Secret)

	p.Release("openai", c1)

	c3, ok := p.Acquire("openai")
	require.True(t, ok)
	assert.Equal(t, "k3", c3.Secret)

	c4, ok := p.Acquire("openai")
	require.True(t, ok)
	assert.Equal(t, "k1", c4.Secret, "released credential returns at the tail, FIFO order")

	_, ok = p.Acquire("openai")
	assert.False(t, ok, "pool should be exhausted")
}

func TestPool_RetireIsTerminalAndIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeCredsFile(t, dir, "x", []string{"k1"})

	p := NewPool(true, time.Minute, zap.NewNop())
	require.NoError(t, p.LoadDir(dir))

	c, ok := p.Acquire("x")
	require.True(t, ok)

	p.Retire("x", c, "401")
	p.Retire("x", c, "401-again")

	counts := p.SnapshotProvider("x")
	assert.Equal(t, 1, counts.Retired)
	assert.Equal(t, 0, counts.Available)
	assert.Equal(t, StateRetired, c.State)
}

func TestPool_QuarantineDisabledBehavesAsRelease(t *testing.T) {
	dir := t.TempDir()
	writeCredsFile(t, dir, "x", []string{"k1"})

	p := NewPool(false, time.Minute, zap.NewNop())
	require.NoError(t, p.LoadDir(dir))

	c, ok := p.Acquire("x")
	require.True(t, ok)

	p.Quarantine("x", c, "429")

	counts := p.SnapshotProvider("x")
	assert.Equal(t, 1, counts.Available)
	assert.Equal(t, 0, counts.Quarantine)
}

func TestPool_SweepReturnsExpiredQuarantine(t *testing.T) {
	dir := t.TempDir()
	writeCredsFile(t, dir, "x", []string{"k1"})

	p := NewPool(true, 10*time.Millisecond, zap.NewNop())
	require.NoError(t, p.LoadDir(dir))

	c, ok := p.Acquire("x")
	require.True(t, ok)
	p.Quarantine("x", c, "429")

	time.Sleep(20 * time.Millisecond)
	p.sweep()

	counts := p.SnapshotProvider("x")
	assert.Equal(t, 1, counts.Available)
	assert.Equal(t, 0, counts.Quarantine)
}
