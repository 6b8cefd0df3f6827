package kql

import "strings"

// SourceTag labels the upstream security-data provider a query appears to target.
// Tags annotate responses only; they never influence routing or execution.
type SourceTag string

const (
	SourceDefender SourceTag = "MicrosoftDefender"
	SourceCloudApp SourceTag = "CloudAppSecurity"
	SourceIdentity SourceTag = "IdentityProtection"
	SourceGeneric  SourceTag = "GenericSecurityProvider"
	SourceAll      SourceTag = "AllProviders"
)

// sourcePatterns maps known identifier fragments (tables, provider codes,
// provider-field names) to tags. Order fixes the order of the returned set.
var sourcePatterns = []struct {
	needle string
	tag    SourceTag
}{
	{"MDATP", SourceDefender},
	{"WindowsDefenderAtp", SourceDefender},
	{"DeviceEvents", SourceDefender},
	{"DeviceInfo", SourceDefender},
	{"AlertEvidence", SourceDefender},
	{"MCAS", SourceCloudApp},
	{"CloudAppEvents", SourceCloudApp},
	{"McasShadowItReporting", SourceCloudApp},
	{"IPC", SourceIdentity},
	{"AADUserRiskEvents", SourceIdentity},
	{"AADRiskyUsers", SourceIdentity},
	{"IdentityInfo", SourceIdentity},
	{"SignInLogs", SourceIdentity},
	{"SecurityIncident", SourceGeneric},
	{"SecurityAlert", SourceGeneric},
	{"CommonSecurityLog", SourceGeneric},
}

// Classify returns the set of provider tags referenced by the query text.
// The result is never empty: a query matching nothing is tagged AllProviders.
func Classify(query string) []SourceTag {
	var tags []SourceTag
	seen := make(map[SourceTag]bool)
	for _, p := range sourcePatterns {
		if seen[p.tag] {
			continue
		}
		if strings.Contains(query, p.needle) {
			seen[p.tag] = true
			tags = append(tags, p.tag)
		}
	}
	if len(tags) == 0 {
		return []SourceTag{SourceAll}
	}
	return tags
}
