// Package logstore executes KQL against a remote workspace query service and
// normalizes its column-oriented table responses into row-oriented records.
package logstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/inquestlabs/inquest/pkg/auth"
)

// ErrorKind classifies a failed query execution.
type ErrorKind string

const (
	ErrorPermissionDenied ErrorKind = "PermissionDenied"
	ErrorNotFound         ErrorKind = "NotFound"
	ErrorRateLimited      ErrorKind = "RateLimited"
	ErrorSyntax           ErrorKind = "SyntaxOrSemanticError"
	ErrorTransport        ErrorKind = "TransportError"
)

// QueryError is a classified execution failure. Message carries the store's own
// error text where available; callers key remediation hints off Kind first and
// message substrings second.
type QueryError struct {
	Kind    ErrorKind
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("logstore: %s: %s", e.Kind, e.Message)
}

// Column describes one result column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Row is a single result record keyed by column name.
type Row map[string]any

// QueryOutcome is a normalized successful result.
type QueryOutcome struct {
	Columns  []Column
	Rows     []Row
	RowCount int
}

// Config holds the configuration for the workspace client.
type Config struct {
	Logger      *slog.Logger
	Endpoint    string // e.g. https://api.loganalytics.io
	WorkspaceID string
	Tokens      auth.TokenProvider
	Timeout     time.Duration
	HTTPClient  *http.Client // optional, for tests
}

func (cfg *Config) Validate() error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if cfg.WorkspaceID == "" {
		return fmt.Errorf("workspace ID is required")
	}
	if cfg.Tokens == nil {
		return fmt.Errorf("token provider is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return nil
}

// Client talks to the workspace query API.
type Client struct {
	cfg  *Config
	http *http.Client
	log  *slog.Logger
}

// New creates a new workspace client.
func New(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: hc, log: cfg.Logger}, nil
}

// Wire types for the workspace query API.
type queryRequest struct {
	Query    string `json:"query"`
	Timespan string `json:"timespan"`
}

type queryResponse struct {
	Tables []struct {
		Name    string   `json:"name"`
		Columns []Column `json:"columns"`
		Rows    [][]any  `json:"rows"`
	} `json:"tables"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Execute runs the query over the given timespan. On success the engine's
// column-oriented table is denormalized into self-describing rows so that
// downstream consumers never depend on column position.
func (c *Client) Execute(ctx context.Context, query string, timespan Timespan) (QueryOutcome, error) {
	token, err := c.cfg.Tokens.Token(ctx, c.cfg.Endpoint)
	if err != nil {
		return QueryOutcome{}, &QueryError{Kind: ErrorTransport, Message: fmt.Sprintf("failed to acquire token: %v", err)}
	}

	body, err := json.Marshal(queryRequest{Query: query, Timespan: timespan.String()})
	if err != nil {
		return QueryOutcome{}, &QueryError{Kind: ErrorTransport, Message: err.Error()}
	}

	url := fmt.Sprintf("%s/v1/workspaces/%s/query", strings.TrimSuffix(c.cfg.Endpoint, "/"), c.cfg.WorkspaceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return QueryOutcome{}, &QueryError{Kind: ErrorTransport, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return QueryOutcome{}, &QueryError{Kind: ErrorTransport, Message: err.Error()}
	}
	defer resp.Body.Close()

	if c.log != nil {
		c.log.Debug("logstore: query finished", "status", resp.StatusCode, "duration", time.Since(start))
	}

	if resp.StatusCode != http.StatusOK {
		return QueryOutcome{}, classifyHTTPError(resp)
	}

	var parsed queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return QueryOutcome{}, &QueryError{Kind: ErrorTransport, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}
	if len(parsed.Tables) == 0 {
		return QueryOutcome{}, &QueryError{Kind: ErrorTransport, Message: "response contains no tables"}
	}

	// The primary table is first; the engine may append diagnostics tables.
	table := parsed.Tables[0]
	rows := make([]Row, 0, len(table.Rows))
	for _, values := range table.Rows {
		row := make(Row, len(table.Columns))
		for i, col := range table.Columns {
			if i < len(values) {
				row[col.Name] = values[i]
			}
		}
		rows = append(rows, row)
	}

	return QueryOutcome{Columns: table.Columns, Rows: rows, RowCount: len(rows)}, nil
}

// Ping checks workspace reachability. Used as a startup readiness probe; any
// authenticated response (including 403) proves the endpoint is up.
func (c *Client) Ping(ctx context.Context) error {
	token, err := c.cfg.Tokens.Token(ctx, c.cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to acquire token: %w", err)
	}
	url := fmt.Sprintf("%s/v1/workspaces/%s", strings.TrimSuffix(c.cfg.Endpoint, "/"), c.cfg.WorkspaceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("workspace unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("workspace returned status %d", resp.StatusCode)
	}
	return nil
}

// classifyHTTPError maps a non-200 response to a QueryError kind, extracting the
// store's error message when the body carries one.
func classifyHTTPError(resp *http.Response) *QueryError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	message := strings.TrimSpace(string(raw))
	var parsed errorResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}

	var kind ErrorKind
	switch resp.StatusCode {
	case http.StatusForbidden, http.StatusUnauthorized:
		kind = ErrorPermissionDenied
	case http.StatusNotFound:
		kind = ErrorNotFound
	case http.StatusTooManyRequests:
		kind = ErrorRateLimited
	case http.StatusBadRequest:
		// The store rejecting query text it alone can parse is expected, not a
		// validator bug; it gets its own bucket so the caller can hint on it.
		kind = ErrorSyntax
	default:
		kind = ErrorTransport
	}
	if message == "" {
		message = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return &QueryError{Kind: kind, Message: message}
}
