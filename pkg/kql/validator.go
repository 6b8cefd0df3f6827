// Package kql inspects candidate KQL query text before execution.
//
// The validator is deliberately one-sided: only destructive constructs reject a
// query outright. Everything else degrades to a warning, because the query
// generator is a language model and advisory feedback can be threaded back into
// its next turn, while a hard failure ends the run.
package kql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MaxRowLimit is the ceiling above which an explicit take/top/limit draws a warning.
const MaxRowLimit = 10000

// ValidationOutcome is the result of validating one candidate query.
type ValidationOutcome struct {
	Accepted        bool
	RejectionReason string
	Warnings        []string
}

// forbiddenRule rejects a query outright. The construct name is echoed in the
// rejection reason so the caller can surface what was blocked.
type forbiddenRule struct {
	pattern   *regexp.Regexp
	construct string
}

// forbiddenRules is the one safety-critical rule set: a match here blocks
// execution regardless of anything else in the query.
var forbiddenRules = []forbiddenRule{
	{regexp.MustCompile(`(?i)\.drop\b`), ".drop"},
	{regexp.MustCompile(`(?i)\bdrop\b`), "drop"},
	{regexp.MustCompile(`(?i)\.delete\b`), ".delete"},
	{regexp.MustCompile(`(?i)\bdelete\b`), "delete"},
	{regexp.MustCompile(`(?i)\.purge\b`), ".purge"},
	{regexp.MustCompile(`(?i)\bpurge\b`), "purge"},
	{regexp.MustCompile(`(?i)\.set-or-replace\b`), ".set-or-replace"},
	{regexp.MustCompile(`(?i)\.clear\b`), ".clear"},
}

// namingRule suggests the correct identifier for a commonly hallucinated one.
type namingRule struct {
	pattern *regexp.Regexp
	correct string
	message string
}

var namingRules = []namingRule{
	{regexp.MustCompile(`\bSecurityIncidents\b`), "SecurityIncident",
		"table 'SecurityIncidents' does not exist; the table is named 'SecurityIncident' (singular)"},
	{regexp.MustCompile(`\bSecurityAlerts\b`), "SecurityAlert",
		"table 'SecurityAlerts' does not exist; the table is named 'SecurityAlert' (singular)"},
	{regexp.MustCompile(`\bSigninLogs\b`), "SignInLogs",
		"table 'SigninLogs' is misspelled; the table is named 'SignInLogs'"},
	{regexp.MustCompile(`\bCommonSecurityLogs\b`), "CommonSecurityLog",
		"table 'CommonSecurityLogs' does not exist; the table is named 'CommonSecurityLog' (singular)"},
	{regexp.MustCompile(`\bTimestamp\b`), "TimeGenerated",
		"column 'Timestamp' does not exist on workspace tables; use 'TimeGenerated'"},
	{regexp.MustCompile(`\bEventTime\b`), "TimeGenerated",
		"column 'EventTime' does not exist on workspace tables; use 'TimeGenerated'"},
}

// dynamicColumns are semi-structured (JSON-in-string) columns that are almost
// always useless without parse_json/todynamic.
var dynamicColumns = []string{"Entities", "ExtendedProperties", "AdditionalData"}

// correlationTokens identify provider-correlation fields; their presence means
// the query is pinned to a specific upstream provider.
var correlationTokens = []string{"SystemAlertId", "ProviderIncidentId", "VendorOriginalId"}

var (
	timeBoundPattern  = regexp.MustCompile(`(?i)TimeGenerated\s*(>=|>|between)|\bago\s*\(`)
	rowBoundPattern   = regexp.MustCompile(`(?i)\|\s*(take|top|limit)\b`)
	aggregatePattern  = regexp.MustCompile(`(?i)\|\s*summarize\b`)
	parseDynPattern   = regexp.MustCompile(`(?i)\b(parse_json|todynamic)\s*\(`)
	explicitLimitExpr = regexp.MustCompile(`(?i)\|\s*(?:take|top|limit)\s+(\d+)`)
)

// Validate runs the full rule set against the query text. Deterministic, no I/O.
func Validate(query string) ValidationOutcome {
	if strings.TrimSpace(query) == "" {
		return ValidationOutcome{Accepted: false, RejectionReason: "empty query"}
	}

	for _, rule := range forbiddenRules {
		if rule.pattern.MatchString(query) {
			return ValidationOutcome{
				Accepted:        false,
				RejectionReason: fmt.Sprintf("query contains forbidden operation %q", rule.construct),
			}
		}
	}

	var warnings []string

	if !timeBoundPattern.MatchString(query) {
		warnings = append(warnings,
			"query has no time filter (TimeGenerated comparison or ago()); it will scan the full retention window")
	}

	if !rowBoundPattern.MatchString(query) && !aggregatePattern.MatchString(query) {
		warnings = append(warnings,
			"query has no row limit (take/top/limit) and no summarize; result size is unbounded")
	}

	if m := explicitLimitExpr.FindStringSubmatch(query); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > MaxRowLimit {
			warnings = append(warnings,
				fmt.Sprintf("row limit %d exceeds the recommended maximum of %d", n, MaxRowLimit))
		}
	}

	for _, rule := range namingRules {
		if rule.pattern.MatchString(query) {
			warnings = append(warnings, rule.message)
		}
	}

	if !parseDynPattern.MatchString(query) {
		for _, col := range dynamicColumns {
			if strings.Contains(query, col) {
				warnings = append(warnings, fmt.Sprintf(
					"column '%s' holds JSON as a string; apply parse_json() or todynamic() before filtering on it", col))
			}
		}
	}

	for _, token := range correlationTokens {
		if strings.Contains(query, token) {
			warnings = append(warnings, fmt.Sprintf(
				"'%s' is a provider correlation field; this query is specific to a single upstream provider", token))
		}
	}

	return ValidationOutcome{Accepted: true, Warnings: warnings}
}
