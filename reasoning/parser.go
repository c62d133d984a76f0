package reasoning

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/BaSui01/llmgateway/gatewayerr"
)

// OutcomeKind classifies what one parsed reasoning turn produced.
type OutcomeKind string

const (
	// OutcomeAction is a non-empty <ACTION> tag: a tool call to run.
	OutcomeAction OutcomeKind = "action"
	// OutcomePause is an <ACTION> tag present but empty: a cooperative
	// reflective pause, never coerced into an error (SPEC_FULL.md §4.6.f).
	OutcomePause OutcomeKind = "pause"
	// OutcomeFinal is a <FINAL_ANSWER> tag: the loop's terminal output.
	OutcomeFinal OutcomeKind = "final"
	// OutcomeUnparsed means neither a well-formed action nor a final
	// answer was found in the turn.
	OutcomeUnparsed OutcomeKind = "unparsed"
)

// ActionCall is the decoded body of a non-empty <ACTION> tag.
type ActionCall struct {
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Turn is the parsed result of one LLM turn in the reasoning loop.
type Turn struct {
	Thought string
	Kind    OutcomeKind
	Action  *ActionCall // set only when Kind == OutcomeAction
	Final   string      // set only when Kind == OutcomeFinal
}

var (
	thoughtTagRe     = regexp.MustCompile(`(?s)<THOUGHT>(.*?)</THOUGHT>`)
	actionTagRe      = regexp.MustCompile(`(?s)<ACTION>(.*?)</ACTION>`)
	finalAnswerTagRe = regexp.MustCompile(`(?s)<FINAL_ANSWER>(.*?)</FINAL_ANSWER>`)
)

// ParseTurn scans raw LLM output for the <THOUGHT>/<ACTION>/<FINAL_ANSWER>
// tag vocabulary of SPEC_FULL.md §4.6.c. This parser is new code — the
// teacher's llm/tools/react.go drives its ReAct loop off native
// tool_calls in the structured response, never off inline tags, so there
// is no teacher file to ground the tag grammar itself on.
func ParseTurn(raw string) (Turn, error) {
	turn := Turn{}

	if m := thoughtTagRe.FindStringSubmatch(raw); m != nil {
		turn.Thought = strings.TrimSpace(m[1])
	}

	if m := finalAnswerTagRe.FindStringSubmatch(raw); m != nil {
		turn.Kind = OutcomeFinal
		turn.Final = strings.TrimSpace(m[1])
		return turn, nil
	}

	if m := actionTagRe.FindStringSubmatch(raw); m != nil {
		body := strings.TrimSpace(m[1])
		if body == "" {
			turn.Kind = OutcomePause
			return turn, nil
		}

		var action ActionCall
		if err := json.Unmarshal([]byte(body), &action); err != nil {
			return turn, gatewayerr.New(gatewayerr.KindParseFailure, "malformed <ACTION> body").WithCause(err)
		}
		turn.Kind = OutcomeAction
		turn.Action = &action
		return turn, nil
	}

	turn.Kind = OutcomeUnparsed
	return turn, nil
}
