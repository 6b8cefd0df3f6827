// Package orchestrator drives one natural-language question through query
// generation, validation, guarded execution and result analysis.
//
// A run makes at most two model calls. The first offers a single query tool
// and either yields free text (a clarification, returned as-is) or a tool
// call. A proposed query is validated, executed at most once, and the outcome
// is fed back in a second, tool-less call whose text becomes the narrative.
// Run is total: every failure mode is folded into the returned result rather
// than surfaced as an error.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inquestlabs/inquest/pkg/kql"
	"github.com/inquestlabs/inquest/pkg/llm"
	"github.com/inquestlabs/inquest/pkg/logstore"
)

// Orchestrator runs questions. Safe for concurrent use; each run is
// independent and holds no shared mutable state.
type Orchestrator struct {
	cfg  *Config
	tool llm.ToolDeclaration
	log  *slog.Logger
}

// New creates a new Orchestrator.
func New(cfg *Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tool, err := queryToolDeclaration()
	if err != nil {
		return nil, err
	}
	return &Orchestrator{cfg: cfg, tool: tool, log: cfg.Logger}, nil
}

// Run processes one question to a terminal result. It never returns an error;
// failures are reported through the result's narrative and IsError flag.
func (o *Orchestrator) Run(ctx context.Context, question string) OrchestrationResult {
	return o.RunWithProgress(ctx, question, nil)
}

// RunWithProgress is Run with stage callbacks, invoked synchronously on the
// calling goroutine.
func (o *Orchestrator) RunWithProgress(ctx context.Context, question string, onProgress ProgressFunc) OrchestrationResult {
	runID := uuid.NewString()
	start := o.cfg.Clock.Now()

	result := o.run(ctx, runID, question, onProgress)
	result.RunID = runID
	result.Question = question
	result.Timestamp = o.cfg.Clock.Now().UTC()

	if o.log != nil {
		o.log.Info("orchestrator: run finished",
			"run_id", runID,
			"is_error", result.IsError,
			"rows", result.RowCount,
			"duration", o.cfg.Clock.Now().Sub(start),
		)
	}
	o.emit(onProgress, Progress{Stage: finalStage(result), GeneratedQuery: result.GeneratedQuery, RowCount: result.RowCount})
	return result
}

func (o *Orchestrator) run(ctx context.Context, runID, question string, onProgress ProgressFunc) OrchestrationResult {
	if strings.TrimSpace(question) == "" {
		return OrchestrationResult{
			Narrative: "Please ask a question about your security data, for example: \"show me high severity incidents from the last day\".",
		}
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: o.cfg.SystemPrompt},
		{Role: llm.RoleUser, Content: question},
	}

	o.emit(onProgress, Progress{Stage: StageGenerating})
	reply, err := o.cfg.LLM.Complete(ctx, messages, []llm.ToolDeclaration{o.tool})
	if err != nil {
		if o.log != nil {
			o.log.Error("orchestrator: generation call failed", "run_id", runID, "error", err)
		}
		return OrchestrationResult{IsError: true, Narrative: modelFailureNarrative(err)}
	}

	// Free text on the first call is the model asking for clarification (or
	// declining); the run ends successfully without touching the store.
	if reply.ToolCall == nil {
		return OrchestrationResult{Narrative: reply.Text}
	}

	candidate, err := parseToolCall(reply.ToolCall)
	if err != nil {
		if o.log != nil {
			o.log.Warn("orchestrator: malformed tool call", "run_id", runID, "error", err, "arguments", reply.ToolCall.Arguments)
		}
		return OrchestrationResult{
			IsError: true,
			Narrative: fmt.Sprintf(
				"The model produced a query request that could not be understood (%v). Nothing was executed; try rephrasing the question.", err),
		}
	}

	o.emit(onProgress, Progress{Stage: StageValidating, GeneratedQuery: candidate.Query})
	outcome := kql.Validate(candidate.Query)
	if !outcome.Accepted {
		if o.log != nil {
			o.log.Warn("orchestrator: query rejected", "run_id", runID, "reason", outcome.RejectionReason)
		}
		return OrchestrationResult{
			IsError:        true,
			GeneratedQuery: candidate.Query,
			Narrative: fmt.Sprintf("The generated query was rejected before execution: %s.\n\nGenerated query:\n%s",
				outcome.RejectionReason, candidate.Query),
		}
	}
	sources := kql.Classify(candidate.Query)

	o.emit(onProgress, Progress{Stage: StageExecuting, GeneratedQuery: candidate.Query})
	queryResult, err := o.cfg.Store.Execute(ctx, candidate.Query, candidate.Timespan)
	if err != nil {
		if o.log != nil {
			o.log.Error("orchestrator: execution failed", "run_id", runID, "error", err)
		}
		var qe *logstore.QueryError
		if !errors.As(err, &qe) {
			qe = &logstore.QueryError{Kind: logstore.ErrorTransport, Message: err.Error()}
		}
		return OrchestrationResult{
			IsError:        true,
			GeneratedQuery: candidate.Query,
			Warnings:       outcome.Warnings,
			Sources:        sources,
			Narrative:      remedyFor(qe, candidate.Query),
		}
	}

	o.emit(onProgress, Progress{Stage: StageAnalyzing, GeneratedQuery: candidate.Query, RowCount: queryResult.RowCount})
	messages = append(messages,
		llm.Message{Role: llm.RoleAssistant, ToolName: reply.ToolCall.Name, ToolArgs: reply.ToolCall.Arguments},
		llm.Message{Role: llm.RoleTool, ToolName: reply.ToolCall.Name, Content: o.formatToolResult(candidate, queryResult, outcome.Warnings, sources)},
	)

	// No tools on the analysis call: the model must answer in text.
	analysis, err := o.cfg.LLM.Complete(ctx, messages, nil)
	if err != nil || analysis.Text == "" {
		if o.log != nil {
			o.log.Error("orchestrator: analysis call failed", "run_id", runID, "error", err)
		}
		narrative := modelFailureNarrative(err)
		if err == nil {
			narrative = "The query executed but the model returned no analysis of its results."
		}
		return OrchestrationResult{
			IsError:        true,
			GeneratedQuery: candidate.Query,
			Warnings:       outcome.Warnings,
			Sources:        sources,
			Columns:        queryResult.Columns,
			Rows:           queryResult.Rows,
			RowCount:       queryResult.RowCount,
			Narrative:      fmt.Sprintf("%s The query itself ran and returned %d rows.", narrative, queryResult.RowCount),
		}
	}

	return OrchestrationResult{
		GeneratedQuery: candidate.Query,
		Warnings:       outcome.Warnings,
		Sources:        sources,
		Columns:        queryResult.Columns,
		Rows:           queryResult.Rows,
		RowCount:       queryResult.RowCount,
		Narrative:      analysis.Text,
	}
}

// formatToolResult renders the execution outcome as the tool message for the
// analysis call. Rows are capped so a large result set cannot blow out the
// model's context; the caller still receives every row.
func (o *Orchestrator) formatToolResult(candidate CandidateQuery, result logstore.QueryOutcome, warnings []string, sources []kql.SourceTag) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Query executed over timespan %s and returned %d rows.\n", candidate.Timespan, result.RowCount)

	tags := make([]string, 0, len(sources))
	for _, s := range sources {
		tags = append(tags, string(s))
	}
	fmt.Fprintf(&sb, "Data sources: %s\n", strings.Join(tags, ", "))

	if len(warnings) > 0 {
		sb.WriteString("Validator warnings:\n")
		for _, w := range warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
	}

	if result.RowCount == 0 {
		sb.WriteString("No rows matched.")
		return sb.String()
	}

	names := make([]string, 0, len(result.Columns))
	for _, col := range result.Columns {
		names = append(names, col.Name)
	}
	fmt.Fprintf(&sb, "Columns: %s\n", strings.Join(names, ", "))

	shown := result.Rows
	if len(shown) > o.cfg.MaxAnalysisRows {
		shown = shown[:o.cfg.MaxAnalysisRows]
		fmt.Fprintf(&sb, "Showing the first %d rows:\n", len(shown))
	} else {
		sb.WriteString("Rows:\n")
	}
	for _, row := range shown {
		cells := make([]string, 0, len(names))
		for _, name := range names {
			cells = append(cells, formatCell(row[name]))
		}
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func (o *Orchestrator) emit(onProgress ProgressFunc, p Progress) {
	if onProgress != nil {
		onProgress(p)
	}
}

func finalStage(result OrchestrationResult) Stage {
	if result.IsError {
		return StageError
	}
	return StageComplete
}
