package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/inquestlabs/inquest/pkg/llm"
	"github.com/inquestlabs/inquest/pkg/logstore"
)

// queryToolName is the single tool offered to the model on the first call.
const queryToolName = "run_security_query"

// queryToolInput is the wire shape of the tool's arguments.
type queryToolInput struct {
	Query    string `json:"query" jsonschema:"The complete KQL query to execute against the security event workspace."`
	Timespan string `json:"timespan,omitempty" jsonschema:"Look-back window as an ISO-8601 duration: P{n}M, P{n}D or PT{n}H. Defaults to P1D."`
}

// queryToolDeclaration builds the tool declaration. Constructed once at
// orchestrator creation; the schema derivation only fails on programmer error.
func queryToolDeclaration() (llm.ToolDeclaration, error) {
	schema, err := jsonschema.For[queryToolInput](nil)
	if err != nil {
		return llm.ToolDeclaration{}, fmt.Errorf("failed to derive tool schema: %w", err)
	}
	return llm.ToolDeclaration{
		Name:        queryToolName,
		Description: "Execute a read-only KQL query against the security event workspace and return the matching rows.",
		Parameters:  schema,
	}, nil
}

// malformedCallError describes a tool call whose arguments could not be used.
// It is handled exactly like a validation rejection: the run terminates with an
// error result and nothing is executed.
type malformedCallError struct {
	detail string
}

func (e *malformedCallError) Error() string {
	return "malformed tool call: " + e.detail
}

// parseToolCall turns the model's raw tool call into a CandidateQuery. The only
// field ever defaulted is the timespan; a missing or mistyped query is never
// guessed at.
func parseToolCall(call *llm.ToolCall) (CandidateQuery, error) {
	if call.Name != queryToolName {
		return CandidateQuery{}, &malformedCallError{detail: fmt.Sprintf("unknown tool %q", call.Name)}
	}

	var input queryToolInput
	if err := json.Unmarshal([]byte(call.Arguments), &input); err != nil {
		return CandidateQuery{}, &malformedCallError{detail: fmt.Sprintf("arguments are not valid JSON: %v", err)}
	}
	if strings.TrimSpace(input.Query) == "" {
		return CandidateQuery{}, &malformedCallError{detail: "required field 'query' is missing or empty"}
	}

	timespan := logstore.DefaultTimespan
	if strings.TrimSpace(input.Timespan) != "" {
		parsed, err := logstore.ParseTimespan(input.Timespan)
		if err != nil {
			return CandidateQuery{}, &malformedCallError{detail: fmt.Sprintf("invalid timespan %q: %v", input.Timespan, err)}
		}
		timespan = parsed
	}

	return CandidateQuery{Query: input.Query, Timespan: timespan}, nil
}
