package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/inquestlabs/inquest/pkg/llm"
	"github.com/inquestlabs/inquest/pkg/logstore"
)

// remedyFor renders a user-facing narrative for a failed query execution.
// Kind selects the base message; for engine-side syntax and semantic errors
// the store's own message is scanned for known misconfiguration signatures.
func remedyFor(qe *logstore.QueryError, query string) string {
	var sb strings.Builder

	switch qe.Kind {
	case logstore.ErrorPermissionDenied:
		sb.WriteString("The workspace refused the query because the service identity lacks read access. ")
		sb.WriteString("Grant it the Log Analytics Reader role (or Microsoft Sentinel Reader) on the workspace and try again.")
	case logstore.ErrorNotFound:
		sb.WriteString("The workspace could not be found. ")
		sb.WriteString("Check that the configured workspace ID is correct and that the workspace still exists.")
	case logstore.ErrorRateLimited:
		sb.WriteString("The workspace is throttling queries right now. Wait a moment and ask again.")
	case logstore.ErrorSyntax:
		sb.WriteString("The query engine rejected the generated query: ")
		sb.WriteString(qe.Message)
		if hint := engineHint(qe.Message); hint != "" {
			sb.WriteString("\n\n")
			sb.WriteString(hint)
		}
	default:
		sb.WriteString("The workspace could not be reached: ")
		sb.WriteString(qe.Message)
	}

	if query != "" {
		fmt.Fprintf(&sb, "\n\nGenerated query:\n%s", query)
	}
	return sb.String()
}

// engineHint matches store error text against known environment problems that
// present as semantic errors, such as querying tables a workspace tier does
// not provision.
func engineHint(message string) string {
	lower := strings.ToLower(message)
	if !strings.Contains(lower, "could not be resolved") && !strings.Contains(lower, "failed to resolve") {
		return ""
	}
	switch {
	case strings.Contains(message, "SecurityIncident"), strings.Contains(message, "SecurityAlert"):
		return "The SecurityIncident and SecurityAlert tables only exist when Microsoft Sentinel is enabled on the workspace."
	case strings.Contains(message, "Device"), strings.Contains(message, "AlertEvidence"):
		return "Device and evidence tables require the Defender XDR connector to be streaming into this workspace."
	case strings.Contains(message, "SignInLogs"), strings.Contains(message, "AAD"):
		return "Identity tables require the Entra ID diagnostic settings to export into this workspace."
	}
	return "The referenced table may not be provisioned in this workspace; its data connector may be disabled."
}

// modelFailureNarrative renders a user-facing narrative for a failed model call.
func modelFailureNarrative(err error) string {
	switch {
	case errors.Is(err, llm.ErrAuth):
		return "The language model rejected this service's credentials. The API key is missing, expired or revoked."
	case errors.Is(err, llm.ErrRateLimited):
		return "The language model is rate limiting this service. Wait a moment and ask again."
	default:
		return fmt.Sprintf("The language model could not be reached (%v). Try again shortly.", err)
	}
}
