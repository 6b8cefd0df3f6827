package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("INQUEST_LLM_API_KEY", "sk-test")
	t.Setenv("INQUEST_STORE_WORKSPACE_ID", "ws-123")
	t.Setenv("INQUEST_STORE_TOKEN", "tok")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	assert.Equal(t, "https://api.openai.com/v1", cfg.LLMBaseURL)
	assert.Equal(t, "gpt-4o", cfg.LLMModel)
	assert.Equal(t, 50, cfg.MaxAnalysisRows)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("INQUEST_LLM_API_KEY", "sk-test")
	t.Setenv("INQUEST_STORE_WORKSPACE_ID", "")
	t.Setenv("INQUEST_STORE_TOKEN", "tok")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INQUEST_STORE_WORKSPACE_ID")
}

func TestLoad_UnknownProvider(t *testing.T) {
	t.Setenv("INQUEST_LLM_PROVIDER", "llamafarm")
	t.Setenv("INQUEST_STORE_WORKSPACE_ID", "ws")
	t.Setenv("INQUEST_STORE_TOKEN", "tok")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_AnthropicDoesNotRequireAPIKeyVar(t *testing.T) {
	// The anthropic SDK reads its key from its own environment variable.
	t.Setenv("INQUEST_LLM_PROVIDER", "anthropic")
	t.Setenv("INQUEST_STORE_WORKSPACE_ID", "ws")
	t.Setenv("INQUEST_STORE_TOKEN", "tok")

	_, err := Load()
	require.NoError(t, err)
}
