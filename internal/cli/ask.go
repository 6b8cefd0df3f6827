package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/inquestlabs/inquest/pkg/orchestrator"
)

type AskCmd struct {
	serverURL *string
	timeout   time.Duration
	showQuery bool
	maxRows   int
}

func NewAskCmd(serverURL *string) *AskCmd {
	return &AskCmd{serverURL: serverURL}
}

func (c *AskCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question and print the answer with its result rows.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, strings.Join(args, " "))
		},
	}
	cmd.Flags().DurationVar(&c.timeout, "timeout", 3*time.Minute, "Request timeout")
	cmd.Flags().BoolVar(&c.showQuery, "show-query", false, "Print the generated KQL query")
	cmd.Flags().IntVar(&c.maxRows, "max-rows", 25, "Maximum result rows to print (0 for all)")
	return cmd
}

func (c *AskCmd) run(cmd *cobra.Command, question string) error {
	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: c.timeout}
	url := strings.TrimSuffix(*c.serverURL, "/") + "/api/v1/chat"
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result orchestrator.OrchestrationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	c.render(cmd, result)
	if result.IsError {
		return fmt.Errorf("run %s failed", result.RunID)
	}
	return nil
}

func (c *AskCmd) render(cmd *cobra.Command, result orchestrator.OrchestrationResult) {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, result.Narrative)

	if c.showQuery && result.GeneratedQuery != "" {
		fmt.Fprintf(out, "\nGenerated query:\n%s\n", result.GeneratedQuery)
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(out, "\nwarning: %s", w)
	}
	if len(result.Warnings) > 0 {
		fmt.Fprintln(out)
	}

	if len(result.Rows) == 0 {
		return
	}

	headers := make([]string, 0, len(result.Columns))
	for _, col := range result.Columns {
		headers = append(headers, col.Name)
	}

	rows := result.Rows
	truncated := false
	if c.maxRows > 0 && len(rows) > c.maxRows {
		rows = rows[:c.maxRows]
		truncated = true
	}

	fmt.Fprintln(out)
	table := tablewriter.NewWriter(out)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader(headers)
	for _, row := range rows {
		cells := make([]string, 0, len(headers))
		for _, name := range headers {
			cells = append(cells, renderCell(row[name]))
		}
		table.Append(cells)
	}
	table.Render()

	if truncated {
		fmt.Fprintf(out, "(showing %d of %d rows)\n", len(rows), result.RowCount)
	}
}

func renderCell(v any) string {
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
	default:
		return fmt.Sprintf("%v", t)
	}
}
