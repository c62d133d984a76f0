package reasoning

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TokenBudget is the soft, non-enforced context-window check of
// SPEC_FULL.md §4.6: it logs a warning when a constructed prompt likely
// exceeds the profile's context window, but never blocks dispatch.
// Grounded on the teacher's llm/tokenizer/tiktoken.go TiktokenTokenizer,
// trimmed to the one encoding this gateway needs (cl100k_base covers
// every OpenAI-compatible model family it talks to).
type TokenBudget struct {
	logger *zap.Logger

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTokenBudget builds a TokenBudget.
func NewTokenBudget(logger *zap.Logger) *TokenBudget {
	return &TokenBudget{logger: logger}
}

func (b *TokenBudget) init() error {
	b.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			b.initErr = err
			return
		}
		b.enc = enc
	})
	return b.initErr
}

// CheckPrompt estimates prompt's token count and logs a warning if it
// exceeds contextWindow. It never returns an error: a tokenizer init
// failure is itself logged and treated as "nothing to warn about" rather
// than surfaced to the reasoning loop, since this check is enrichment,
// not an invariant.
func (b *TokenBudget) CheckPrompt(sessionID, prompt string, contextWindow int) {
	if contextWindow <= 0 {
		return
	}
	if err := b.init(); err != nil {
		b.logger.Warn("token budget: tokenizer init failed, skipping check", zap.Error(err))
		return
	}

	count := len(b.enc.Encode(prompt, nil, nil))
	if count > contextWindow {
		b.logger.Warn("constructed prompt exceeds configured context window",
			zap.String("session_id", sessionID),
			zap.Int("estimated_tokens", count),
			zap.Int("context_window", contextWindow))
	}
}
