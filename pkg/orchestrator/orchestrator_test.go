package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inquestlabs/inquest/pkg/kql"
	"github.com/inquestlabs/inquest/pkg/llm"
	"github.com/inquestlabs/inquest/pkg/logstore"
)

type scriptedLLM struct {
	t       *testing.T
	replies []llm.Reply
	errs    []error

	calls [][]llm.Message
	tools [][]llm.ToolDeclaration
}

func (s *scriptedLLM) Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolDeclaration) (llm.Reply, error) {
	i := len(s.calls)
	s.calls = append(s.calls, messages)
	s.tools = append(s.tools, tools)
	if i < len(s.errs) && s.errs[i] != nil {
		return llm.Reply{}, s.errs[i]
	}
	require.Less(s.t, i, len(s.replies), "unexpected completion call")
	return s.replies[i], nil
}

type storeCall struct {
	query    string
	timespan logstore.Timespan
}

type fakeStore struct {
	outcome logstore.QueryOutcome
	err     error
	calls   []storeCall
}

func (f *fakeStore) Execute(ctx context.Context, query string, timespan logstore.Timespan) (logstore.QueryOutcome, error) {
	f.calls = append(f.calls, storeCall{query: query, timespan: timespan})
	if f.err != nil {
		return logstore.QueryOutcome{}, f.err
	}
	return f.outcome, nil
}

func newTestOrchestrator(t *testing.T, model *scriptedLLM, store *fakeStore) *Orchestrator {
	t.Helper()
	model.t = t
	o, err := New(&Config{
		LLM:   model,
		Store: store,
		Clock: clockwork.NewFakeClock(),
	})
	require.NoError(t, err)
	return o
}

func toolCallReply(args string) llm.Reply {
	return llm.Reply{ToolCall: &llm.ToolCall{Name: queryToolName, Arguments: args}}
}

func TestRun_EmptyQuestionAsksForOne(t *testing.T) {
	model := &scriptedLLM{}
	store := &fakeStore{}
	o := newTestOrchestrator(t, model, store)

	result := o.Run(context.Background(), "   ")
	assert.False(t, result.IsError)
	assert.Contains(t, result.Narrative, "ask a question")
	assert.Empty(t, model.calls, "no model call for an empty question")
	assert.Empty(t, store.calls)
	assert.NotEmpty(t, result.RunID)
}

func TestRun_ClarificationEndsWithoutExecution(t *testing.T) {
	model := &scriptedLLM{replies: []llm.Reply{{Text: "Which time range do you mean?"}}}
	store := &fakeStore{}
	o := newTestOrchestrator(t, model, store)

	result := o.Run(context.Background(), "show me the incidents")
	assert.False(t, result.IsError)
	assert.Equal(t, "Which time range do you mean?", result.Narrative)
	assert.Empty(t, result.GeneratedQuery)
	assert.Len(t, model.calls, 1)
	assert.Empty(t, store.calls, "clarification must not touch the store")
}

func TestRun_HappyPath(t *testing.T) {
	model := &scriptedLLM{replies: []llm.Reply{
		toolCallReply(`{"query": "SecurityIncident | where TimeGenerated > ago(1d) | take 10", "timespan": "P1D"}`),
		{Text: "There were two high severity incidents."},
	}}
	store := &fakeStore{outcome: logstore.QueryOutcome{
		Columns:  []logstore.Column{{Name: "Title", Type: "string"}, {Name: "Severity", Type: "string"}},
		Rows:     []logstore.Row{{"Title": "Beacon", "Severity": "High"}, {"Title": "Phish", "Severity": "High"}},
		RowCount: 2,
	}}
	o := newTestOrchestrator(t, model, store)

	result := o.Run(context.Background(), "any high severity incidents today?")
	require.False(t, result.IsError)
	assert.Equal(t, "There were two high severity incidents.", result.Narrative)
	assert.Equal(t, "SecurityIncident | where TimeGenerated > ago(1d) | take 10", result.GeneratedQuery)
	assert.Equal(t, 2, result.RowCount)
	assert.Len(t, result.Rows, 2)
	assert.Equal(t, []kql.SourceTag{kql.SourceGeneric}, result.Sources)
	assert.Empty(t, result.Warnings)

	require.Len(t, store.calls, 1, "exactly one execution per run")
	assert.Equal(t, logstore.Timespan{Days: 1}, store.calls[0].timespan)

	require.Len(t, model.calls, 2)
	require.Len(t, model.tools[0], 1, "first call offers the query tool")
	assert.Empty(t, model.tools[1], "analysis call offers no tools")

	// The analysis call sees the assistant's tool call and its result.
	analysis := model.calls[1]
	require.Len(t, analysis, 4)
	assert.Equal(t, llm.RoleAssistant, analysis[2].Role)
	assert.Equal(t, llm.RoleTool, analysis[3].Role)
	assert.Contains(t, analysis[3].Content, "returned 2 rows")
	assert.Contains(t, analysis[3].Content, "GenericSecurityProvider")
	assert.Contains(t, analysis[3].Content, "Beacon")
}

func TestRun_ForbiddenQueryRejectedBeforeExecution(t *testing.T) {
	model := &scriptedLLM{replies: []llm.Reply{
		toolCallReply(`{"query": "SecurityIncident | drop something"}`),
	}}
	store := &fakeStore{}
	o := newTestOrchestrator(t, model, store)

	result := o.Run(context.Background(), "clean up old incidents")
	assert.True(t, result.IsError)
	assert.Contains(t, result.Narrative, "drop")
	assert.Contains(t, result.Narrative, "SecurityIncident | drop something", "rejection echoes the query")
	assert.Equal(t, "SecurityIncident | drop something", result.GeneratedQuery)
	assert.Empty(t, store.calls, "rejected query never executes")
	assert.Len(t, model.calls, 1, "no analysis call after rejection")
}

func TestRun_WarningsDoNotBlockExecution(t *testing.T) {
	model := &scriptedLLM{replies: []llm.Reply{
		toolCallReply(`{"query": "SecurityIncident | where Severity == \"High\""}`),
		{Text: "Found some."},
	}}
	store := &fakeStore{outcome: logstore.QueryOutcome{RowCount: 0}}
	o := newTestOrchestrator(t, model, store)

	result := o.Run(context.Background(), "high severity incidents")
	require.False(t, result.IsError)
	require.Len(t, result.Warnings, 2, "missing time bound and missing row limit both warn")
	require.Len(t, store.calls, 1, "warnings are advisory")
	assert.Contains(t, model.calls[1][3].Content, "Validator warnings")
}

func TestRun_MalformedToolCall(t *testing.T) {
	tests := []struct {
		name string
		call *llm.ToolCall
	}{
		{"invalid json", &llm.ToolCall{Name: queryToolName, Arguments: `{"query": `}},
		{"missing query", &llm.ToolCall{Name: queryToolName, Arguments: `{"timespan": "P1D"}`}},
		{"wrong type", &llm.ToolCall{Name: queryToolName, Arguments: `{"query": 42}`}},
		{"bad timespan", &llm.ToolCall{Name: queryToolName, Arguments: `{"query": "SecurityIncident | take 1", "timespan": "tomorrow"}`}},
		{"unknown tool", &llm.ToolCall{Name: "delete_everything", Arguments: `{}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &scriptedLLM{replies: []llm.Reply{{ToolCall: tt.call}}}
			store := &fakeStore{}
			o := newTestOrchestrator(t, model, store)

			result := o.Run(context.Background(), "do the thing")
			assert.True(t, result.IsError)
			assert.Contains(t, result.Narrative, "Nothing was executed")
			assert.Empty(t, store.calls)
			assert.Len(t, model.calls, 1)
		})
	}
}

func TestRun_TimespanDefaultsToOneDay(t *testing.T) {
	model := &scriptedLLM{replies: []llm.Reply{
		toolCallReply(`{"query": "SecurityAlert | take 5"}`),
		{Text: "ok"},
	}}
	store := &fakeStore{outcome: logstore.QueryOutcome{RowCount: 0}}
	o := newTestOrchestrator(t, model, store)

	o.Run(context.Background(), "recent alerts")
	require.Len(t, store.calls, 1)
	assert.Equal(t, logstore.DefaultTimespan, store.calls[0].timespan)
}

func TestRun_ExecutionFailureNarratives(t *testing.T) {
	tests := []struct {
		name     string
		err      *logstore.QueryError
		fragment string
	}{
		{"permission denied names the read role",
			&logstore.QueryError{Kind: logstore.ErrorPermissionDenied, Message: "forbidden"},
			"Log Analytics Reader"},
		{"not found points at workspace id",
			&logstore.QueryError{Kind: logstore.ErrorNotFound, Message: "no such workspace"},
			"workspace ID"},
		{"rate limited suggests retrying",
			&logstore.QueryError{Kind: logstore.ErrorRateLimited, Message: "throttled"},
			"throttling"},
		{"unresolved sentinel table hints at licensing",
			&logstore.QueryError{Kind: logstore.ErrorSyntax, Message: "'SecurityIncident' could not be resolved"},
			"Microsoft Sentinel is enabled"},
		{"transport reports unreachable",
			&logstore.QueryError{Kind: logstore.ErrorTransport, Message: "connection refused"},
			"could not be reached"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &scriptedLLM{replies: []llm.Reply{
				toolCallReply(`{"query": "SecurityIncident | where TimeGenerated > ago(1d) | take 10"}`),
			}}
			store := &fakeStore{err: tt.err}
			o := newTestOrchestrator(t, model, store)

			result := o.Run(context.Background(), "incidents")
			assert.True(t, result.IsError)
			assert.Contains(t, result.Narrative, tt.fragment)
			assert.Contains(t, result.Narrative, result.GeneratedQuery, "failure narrative echoes the query")
			assert.Len(t, model.calls, 1, "no analysis call after execution failure")
		})
	}
}

func TestRun_ModelFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fragment string
	}{
		{"auth", llm.ErrAuth, "credentials"},
		{"rate limited", llm.ErrRateLimited, "rate limiting"},
		{"transport", llm.ErrTransport, "could not be reached"},
		{"wrapped transport", errors.New("dial tcp: connection refused"), "could not be reached"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &scriptedLLM{errs: []error{tt.err}}
			store := &fakeStore{}
			o := newTestOrchestrator(t, model, store)

			result := o.Run(context.Background(), "incidents")
			assert.True(t, result.IsError)
			assert.Contains(t, result.Narrative, tt.fragment)
			assert.Empty(t, store.calls)
		})
	}
}

func TestRun_ZeroRowsStillAnalyzed(t *testing.T) {
	model := &scriptedLLM{replies: []llm.Reply{
		toolCallReply(`{"query": "SignInLogs | where TimeGenerated > ago(1d) | take 10"}`),
		{Text: "No failed sign-ins in the last day."},
	}}
	store := &fakeStore{outcome: logstore.QueryOutcome{
		Columns:  []logstore.Column{{Name: "UserPrincipalName", Type: "string"}},
		RowCount: 0,
	}}
	o := newTestOrchestrator(t, model, store)

	result := o.Run(context.Background(), "failed sign-ins today")
	require.False(t, result.IsError)
	assert.Equal(t, 0, result.RowCount)
	require.Len(t, model.calls, 2, "zero rows is a real answer, not an error")
	assert.Contains(t, model.calls[1][3].Content, "No rows matched")
	assert.Equal(t, []kql.SourceTag{kql.SourceIdentity}, result.Sources)
}

func TestRun_AnalysisRowCap(t *testing.T) {
	rows := make([]logstore.Row, 5)
	for i := range rows {
		rows[i] = logstore.Row{"N": float64(i)}
	}
	model := &scriptedLLM{replies: []llm.Reply{
		toolCallReply(`{"query": "SecurityAlert | where TimeGenerated > ago(1d) | take 100"}`),
		{Text: "lots of alerts"},
	}}
	store := &fakeStore{outcome: logstore.QueryOutcome{
		Columns:  []logstore.Column{{Name: "N", Type: "long"}},
		Rows:     rows,
		RowCount: 5,
	}}

	model.t = t
	o, err := New(&Config{LLM: model, Store: store, Clock: clockwork.NewFakeClock(), MaxAnalysisRows: 2})
	require.NoError(t, err)

	result := o.Run(context.Background(), "alerts")
	require.False(t, result.IsError)
	assert.Len(t, result.Rows, 5, "caller gets every row")
	assert.Contains(t, model.calls[1][3].Content, "first 2 rows")
}

func TestRun_AnalysisFailureKeepsRows(t *testing.T) {
	model := &scriptedLLM{
		replies: []llm.Reply{
			toolCallReply(`{"query": "SecurityIncident | where TimeGenerated > ago(1d) | take 10"}`),
		},
		errs: []error{nil, llm.ErrTransport},
	}
	store := &fakeStore{outcome: logstore.QueryOutcome{
		Columns:  []logstore.Column{{Name: "Title", Type: "string"}},
		Rows:     []logstore.Row{{"Title": "Beacon"}},
		RowCount: 1,
	}}
	o := newTestOrchestrator(t, model, store)

	result := o.Run(context.Background(), "incidents")
	assert.True(t, result.IsError)
	assert.Contains(t, result.Narrative, "returned 1 rows")
	assert.Len(t, result.Rows, 1, "rows survive an analysis failure")
}

func TestRunWithProgress_StageSequence(t *testing.T) {
	model := &scriptedLLM{replies: []llm.Reply{
		toolCallReply(`{"query": "SecurityIncident | where TimeGenerated > ago(1d) | take 10"}`),
		{Text: "done"},
	}}
	store := &fakeStore{outcome: logstore.QueryOutcome{RowCount: 0}}
	o := newTestOrchestrator(t, model, store)

	var stages []Stage
	o.RunWithProgress(context.Background(), "incidents", func(p Progress) {
		stages = append(stages, p.Stage)
	})
	assert.Equal(t, []Stage{StageGenerating, StageValidating, StageExecuting, StageAnalyzing, StageComplete}, stages)
}

func TestRun_DistinctRunIDs(t *testing.T) {
	model := &scriptedLLM{replies: []llm.Reply{{Text: "a"}, {Text: "a"}, {Text: "a"}}}
	model.t = t
	store := &fakeStore{}
	o, err := New(&Config{LLM: model, Store: store, Clock: clockwork.NewFakeClock()})
	require.NoError(t, err)

	// Distinct runs must get distinct run IDs even at the same fake instant.
	r1 := o.Run(context.Background(), "q")
	r2 := o.Run(context.Background(), "q")
	assert.NotEqual(t, r1.RunID, r2.RunID)
}

func TestNew_ConfigValidation(t *testing.T) {
	_, err := New(&Config{Store: &fakeStore{}})
	require.Error(t, err)
	_, err = New(&Config{LLM: &scriptedLLM{}})
	require.Error(t, err)
}
