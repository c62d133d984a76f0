package reasoning

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/llmgateway/gatewayerr"
)

// PatternRegistry holds loadable-text reasoning patterns keyed by name,
// generalizing the teacher's agent/reasoning/patterns.go PatternRegistry
// (Register/Get/List/Unregister/MustGet over Go-typed ReasoningPattern
// values) into data rather than code: SPEC_FULL.md §4.7 requires patterns
// be "loadable text blocks keyed by name", not compiled Go types, so each
// pattern here is the literal system text read from patterns/<name>.txt.
type PatternRegistry struct {
	mu       sync.RWMutex
	patterns map[string]string
}

// NewPatternRegistry returns an empty PatternRegistry.
func NewPatternRegistry() *PatternRegistry {
	return &PatternRegistry{patterns: make(map[string]string)}
}

// Register adds or replaces the text for name.
func (r *PatternRegistry) Register(name, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns[name] = text
}

// Get retrieves the text registered for name.
func (r *PatternRegistry) Get(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.patterns[name]
	return t, ok
}

// List returns the sorted registered pattern names.
func (r *PatternRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.patterns))
	for name := range r.patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister removes name, if present.
func (r *PatternRegistry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.patterns[name]; !ok {
		return false
	}
	delete(r.patterns, name)
	return true
}

// LoadDir enumerates the *.txt files directly in dir (the gateway's
// default is ./patterns), one pattern per file, the
// filename stem becoming the pattern name, per SPEC_FULL.md §4.7's
// pattern-discovery rule.
func (r *PatternRegistry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reasoning: read pattern dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".txt" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".txt")
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("reasoning: read pattern %q: %w", name, err)
		}
		r.Register(name, string(data))
	}
	return nil
}

// Constructor assembles the layered system prompt of SPEC_FULL.md §4.7.
type Constructor struct {
	patterns *PatternRegistry
}

// NewConstructor builds a Constructor over patterns.
func NewConstructor(patterns *PatternRegistry) *Constructor {
	return &Constructor{patterns: patterns}
}

const priorityNotice = "Instructions appear in order of descending priority; earlier sections override later ones."

// Build assembles the four-section prompt. An unknown patternID fails
// with gatewayerr.KindUnknownPattern, per SPEC_FULL.md §4.7.
func (c *Constructor) Build(patternID, clientInstruction string, clientManifests []string, serverInstruction string, serverManifests []string, scratchpad []ScratchpadEntry) (string, error) {
	patternText, ok := c.patterns.Get(patternID)
	if !ok {
		return "", gatewayerr.New(gatewayerr.KindUnknownPattern, fmt.Sprintf("no reasoning pattern registered for %q", patternID))
	}

	var b strings.Builder
	b.WriteString(priorityNotice)
	b.WriteString("\n\n")

	if clientInstruction != "" || len(clientManifests) > 0 {
		b.WriteString("### CLIENT INSTRUCTIONS (HIGHEST PRIORITY)\n")
		if clientInstruction != "" {
			b.WriteString(clientInstruction)
			b.WriteString("\n")
		}
		for _, m := range clientManifests {
			b.WriteString(m)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("### CORE REASONING FRAMEWORK\n")
	b.WriteString(patternText)
	b.WriteString("\n\n")

	if serverInstruction != "" || len(serverManifests) > 0 {
		b.WriteString("### GLOBAL SERVER INSTRUCTIONS (LOWEST PRIORITY)\n")
		if serverInstruction != "" {
			b.WriteString(serverInstruction)
			b.WriteString("\n")
		}
		for _, m := range serverManifests {
			b.WriteString(m)
			b.WriteString("\n")
		}
	}

	if len(scratchpad) > 0 {
		b.WriteString("\n### SCRATCHPAD\n")
		for i, entry := range scratchpad {
			fmt.Fprintf(&b, "Step %d thought: %s\n", i+1, entry.Thought)
			if entry.Action != nil {
				fmt.Fprintf(&b, "Step %d action: %s(%s)\n", i+1, entry.Action.ToolName, string(entry.Action.Arguments))
			}
			if len(entry.Observation) > 0 {
				fmt.Fprintf(&b, "Step %d observation: %s\n", i+1, string(entry.Observation))
			}
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n", nil
}
