package reasoning

import (
	"strings"
	"testing"

	"github.com/BaSui01/llmgateway/gatewayerr"
)

func TestConstructor_AssemblesSectionsInPriorityOrder(t *testing.T) {
	patterns := NewPatternRegistry()
	patterns.Register("react", "think step by step")

	c := NewConstructor(patterns)
	out, err := c.Build("react", "be concise", []string{"manifest A"}, "log everything", []string{"manifest B"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clientIdx := strings.Index(out, "CLIENT INSTRUCTIONS")
	coreIdx := strings.Index(out, "CORE REASONING FRAMEWORK")
	serverIdx := strings.Index(out, "GLOBAL SERVER INSTRUCTIONS")

	if !(clientIdx >= 0 && clientIdx < coreIdx && coreIdx < serverIdx) {
		t.Fatalf("expected client < core < server section ordering, got indices %d %d %d", clientIdx, coreIdx, serverIdx)
	}
	if !strings.Contains(out, "think step by step") {
		t.Fatalf("expected pattern text in output")
	}
}

func TestConstructor_OmitsEmptySections(t *testing.T) {
	patterns := NewPatternRegistry()
	patterns.Register("react", "core text")

	c := NewConstructor(patterns)
	out, err := c.Build("react", "", nil, "", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "CLIENT INSTRUCTIONS") {
		t.Fatalf("expected client section to be omitted when empty")
	}
	if strings.Contains(out, "GLOBAL SERVER INSTRUCTIONS") {
		t.Fatalf("expected server section to be omitted when empty")
	}
}

func TestConstructor_UnknownPatternFails(t *testing.T) {
	c := NewConstructor(NewPatternRegistry())
	_, err := c.Build("nonexistent", "", nil, "", nil, nil)
	if !gatewayerr.Is(err, gatewayerr.KindUnknownPattern) {
		t.Fatalf("expected KindUnknownPattern, got %v", err)
	}
}
