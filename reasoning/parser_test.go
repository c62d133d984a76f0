package reasoning

import "testing"

func TestParseTurn_FinalAnswer(t *testing.T) {
	raw := `<THOUGHT>I know the answer.</THOUGHT><FINAL_ANSWER>42</FINAL_ANSWER>`
	turn, err := ParseTurn(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if turn.Kind != OutcomeFinal || turn.Final != "42" {
		t.Fatalf("expected final answer 42, got %+v", turn)
	}
	if turn.Thought != "I know the answer." {
		t.Fatalf("unexpected thought: %q", turn.Thought)
	}
}

func TestParseTurn_Action(t *testing.T) {
	raw := `<THOUGHT>need weather</THOUGHT><ACTION>{"tool_name":"weather","arguments":{"city":"nyc"}}</ACTION>`
	turn, err := ParseTurn(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if turn.Kind != OutcomeAction {
		t.Fatalf("expected action outcome, got %v", turn.Kind)
	}
	if turn.Action.ToolName != "weather" {
		t.Fatalf("unexpected tool name: %q", turn.Action.ToolName)
	}
}

func TestParseTurn_EmptyActionIsPause(t *testing.T) {
	raw := `<THOUGHT>let me reconsider</THOUGHT><ACTION></ACTION>`
	turn, err := ParseTurn(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if turn.Kind != OutcomePause {
		t.Fatalf("expected pause outcome, got %v", turn.Kind)
	}
}

func TestParseTurn_MalformedActionBody(t *testing.T) {
	raw := `<ACTION>not json</ACTION>`
	_, err := ParseTurn(raw)
	if err == nil {
		t.Fatalf("expected error for malformed action body")
	}
}

func TestParseTurn_Unparsed(t *testing.T) {
	raw := `just rambling with no tags at all`
	turn, err := ParseTurn(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if turn.Kind != OutcomeUnparsed {
		t.Fatalf("expected unparsed outcome, got %v", turn.Kind)
	}
}
