package adapter

import "testing"

func TestRegistry_RegisterGetUnregister(t *testing.T) {
	r := NewRegistry()
	if r.Len() != 0 {
		t.Fatalf("expected empty registry")
	}

	a := NewHTTPAdapter("openai", nil, nil)
	r.Register("openai", a)

	got, ok := r.Get("openai")
	if !ok || got.Name() != "openai" {
		t.Fatalf("expected to find registered adapter")
	}

	if _, err := r.MustGet("missing"); err == nil {
		t.Fatalf("expected error for unregistered provider")
	}

	r.Register("anthropic", NewHTTPAdapter("anthropic", nil, nil))
	tags := r.List()
	if len(tags) != 2 || tags[0] != "anthropic" || tags[1] != "openai" {
		t.Fatalf("expected sorted tags, got %v", tags)
	}

	r.Unregister("openai")
	if r.Len() != 1 {
		t.Fatalf("expected one adapter after unregister")
	}
}
