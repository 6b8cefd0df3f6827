package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/inquestlabs/inquest/pkg/kql"
	"github.com/inquestlabs/inquest/pkg/llm"
	"github.com/inquestlabs/inquest/pkg/logstore"
)

// Store executes validated queries against the event workspace.
type Store interface {
	Execute(ctx context.Context, query string, timespan logstore.Timespan) (logstore.QueryOutcome, error)
}

// Config holds the configuration for the Orchestrator.
type Config struct {
	Logger *slog.Logger
	LLM    llm.Client
	Store  Store
	Clock  clockwork.Clock

	// MaxAnalysisRows caps the number of rows resubmitted to the model for the
	// analysis pass. The full row set is still returned to the caller.
	MaxAnalysisRows int

	// SystemPrompt overrides the built-in domain context. Mostly for tests.
	SystemPrompt string
}

func (cfg *Config) Validate() error {
	if cfg.LLM == nil {
		return fmt.Errorf("LLM client is required")
	}
	if cfg.Store == nil {
		return fmt.Errorf("store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.MaxAnalysisRows == 0 {
		cfg.MaxAnalysisRows = 50
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = systemPrompt
	}
	return nil
}

// CandidateQuery is a query proposed by the model, parsed from a tool call.
type CandidateQuery struct {
	Query    string
	Timespan logstore.Timespan
}

// OrchestrationResult is the terminal artifact of one run. Run always returns
// one; a conversational UI renders success and failure through the same shape.
type OrchestrationResult struct {
	RunID          string              `json:"runId"`
	Question       string              `json:"question"`
	GeneratedQuery string              `json:"generatedQuery,omitempty"`
	Narrative      string              `json:"narrative"`
	Warnings       []string            `json:"warnings,omitempty"`
	Sources        []kql.SourceTag     `json:"sources,omitempty"`
	Columns        []logstore.Column   `json:"columns,omitempty"`
	Rows           []logstore.Row      `json:"rows,omitempty"`
	RowCount       int                 `json:"rowCount"`
	IsError        bool                `json:"isError"`
	Timestamp      time.Time           `json:"timestamp"`
}

// Stage identifies where a run currently is, for progress reporting.
type Stage string

const (
	StageGenerating Stage = "generating"
	StageValidating Stage = "validating"
	StageExecuting  Stage = "executing"
	StageAnalyzing  Stage = "analyzing"
	StageComplete   Stage = "complete"
	StageError      Stage = "error"
)

// Progress is a point-in-time snapshot of a run, delivered to ProgressFunc.
type Progress struct {
	Stage          Stage
	GeneratedQuery string
	RowCount       int
}

// ProgressFunc receives stage transitions during a run. Optional.
type ProgressFunc func(Progress)
