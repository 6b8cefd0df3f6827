package kql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_KnownProviders(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []SourceTag
	}{
		{
			"defender alert provider code",
			"SecurityAlert | where ProviderName == 'MDATP' | take 10",
			[]SourceTag{SourceDefender, SourceGeneric},
		},
		{
			"defender device table",
			"DeviceEvents | where ActionType == 'ProcessCreated' | take 10",
			[]SourceTag{SourceDefender},
		},
		{
			"cloud app",
			"McasShadowItReporting | summarize count() by AppName",
			[]SourceTag{SourceCloudApp},
		},
		{
			"identity protection",
			"AADUserRiskEvents | where RiskLevel == 'high' | take 20",
			[]SourceTag{SourceIdentity},
		},
		{
			"generic incident table",
			"SecurityIncident | where Severity == 'High' | take 10",
			[]SourceTag{SourceGeneric},
		},
		{
			"multiple providers in one query",
			"SecurityAlert | where ProviderName in ('MDATP', 'IPC') | take 10",
			[]SourceTag{SourceDefender, SourceIdentity, SourceGeneric},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, Classify(tt.query))
		})
	}
}

func TestClassify_NoMatchReturnsAllProviders(t *testing.T) {
	got := Classify("Heartbeat | summarize count() by Computer")
	assert.Equal(t, []SourceTag{SourceAll}, got)
}

func TestClassify_NeverReturnsEmptySet(t *testing.T) {
	for _, q := range []string{"", "   ", "no tables here at all"} {
		require.NotEmpty(t, Classify(q))
	}
}

func TestClassify_Idempotent(t *testing.T) {
	q := "SecurityAlert | where ProviderName == 'MDATP' | take 10"
	first := Classify(q)
	second := Classify(q)
	assert.Equal(t, first, second)
}
